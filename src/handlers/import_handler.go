package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/oggew2/Pengamannen-sub001/src/config"
	"github.com/oggew2/Pengamannen-sub001/src/logger"
	"github.com/oggew2/Pengamannen-sub001/src/models"
	"github.com/oggew2/Pengamannen-sub001/src/security/validation"
	"github.com/oggew2/Pengamannen-sub001/src/services"
	"github.com/oggew2/Pengamannen-sub001/src/utils"
)

// ImportHandler exposes the three steps of the import contract: upload to
// preview, confirm, and sync-to-holdings.
type ImportHandler struct {
	importService services.ImportService
}

func NewImportHandler(service services.ImportService) *ImportHandler {
	return &ImportHandler{
		importService: service,
	}
}

// HandleUpload accepts a multipart transaction export and returns an
// ImportPreview. Nothing is persisted here.
func (h *ImportHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())

	if err := r.ParseMultipartForm(config.Cfg.MaxUploadSizeBytes); err != nil {
		ctxLogger.Warn("Failed to parse multipart form or request too large", "error", err, "limit", config.Cfg.MaxUploadSizeBytes)
		utils.SendJSONError(w, fmt.Sprintf("failed to process upload or file too large (max %d MB)", config.Cfg.MaxUploadSizeBytes/(1024*1024)), http.StatusBadRequest)
		return
	}

	source := r.FormValue("source")
	if source == "" {
		source = "avanza"
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		ctxLogger.Warn("Failed to retrieve file from request", "error", err)
		utils.SendJSONError(w, "failed to retrieve file from request, ensure the 'file' field is used", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if fileHeader.Size > config.Cfg.MaxUploadSizeBytes {
		ctxLogger.Warn("Uploaded file header reports size too large", "fileSize", fileHeader.Size, "limit", config.Cfg.MaxUploadSizeBytes)
		utils.SendJSONError(w, fmt.Sprintf("file too large, max %d MB", config.Cfg.MaxUploadSizeBytes/(1024*1024)), http.StatusBadRequest)
		return
	}

	clientContentType := fileHeader.Header.Get("Content-Type")
	if err := validation.ValidateClientContentType(clientContentType); err != nil {
		ctxLogger.Warn("Invalid client-declared file type", "contentType", clientContentType, "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := validation.ValidateFileContentByMagicBytes(file); err != nil {
		ctxLogger.Warn("Server-side file content validation failed", "filename", fileHeader.Filename, "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctxLogger.Info("Processing upload request", "filename", fileHeader.Filename, "source", source)

	preview, err := h.importService.Preview(file, source)
	if err != nil {
		if errors.Is(err, services.ErrParsingFailed) {
			ctxLogger.Warn("Upload could not be parsed", "filename", fileHeader.Filename, "error", err)
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		ctxLogger.Error("Error building import preview", "error", err)
		utils.SendJSONError(w, "error building import preview", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(preview); err != nil {
		ctxLogger.Error("Error encoding JSON response for import preview", "error", err)
	}
}

// HandleConfirm commits a previewed transaction set under the chosen merge mode.
func (h *ImportHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())

	var req models.ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctxLogger.Warn("Invalid confirm request body", "error", err)
		utils.SendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Transactions) == 0 {
		utils.SendJSONError(w, "no transactions to import", http.StatusBadRequest)
		return
	}

	result, err := h.importService.Confirm(req.Transactions, req.Mode)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNothingToImport):
			ctxLogger.Info("Confirm rejected, nothing new to import")
			utils.SendJSONError(w, err.Error(), http.StatusConflict)
		case errors.Is(err, services.ErrInvalidMergeMode):
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		default:
			ctxLogger.Error("Error confirming import", "error", err)
			utils.SendJSONError(w, "error committing import", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		ctxLogger.Error("Error encoding JSON response for import result", "error", err)
	}
}

// HandleSync projects committed transaction history into the live holdings
// snapshot. A warning in the response is advisory, never an error.
func (h *ImportHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())

	result, err := h.importService.SyncHoldings()
	if err != nil {
		ctxLogger.Error("Error syncing holdings", "error", err)
		utils.SendJSONError(w, "error syncing holdings", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		ctxLogger.Error("Error encoding JSON response for holdings sync", "error", err)
	}
}

// HandleGetHoldings returns the current holdings snapshot.
func (h *ImportHandler) HandleGetHoldings(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())

	holdings, err := h.importService.GetHoldings()
	if err != nil {
		ctxLogger.Error("Error retrieving holdings", "error", err)
		utils.SendJSONError(w, "error retrieving holdings", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(holdings); err != nil {
		ctxLogger.Error("Error encoding JSON response for holdings", "error", err)
	}
}
