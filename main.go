package main

import (
	"context"
	stdlog "log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/oggew2/Pengamannen-sub001/src/config"
	"github.com/oggew2/Pengamannen-sub001/src/database"
	"github.com/oggew2/Pengamannen-sub001/src/handlers"
	"github.com/oggew2/Pengamannen-sub001/src/logger"
	"github.com/oggew2/Pengamannen-sub001/src/offline"
	"github.com/oggew2/Pengamannen-sub001/src/processors"
	"github.com/oggew2/Pengamannen-sub001/src/services"
)

var limiter *rate.Limiter

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded", "path", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigins := map[string]bool{
			"http://localhost:3000": true,
			"http://localhost:5173": true,
		}

		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-Requested-With")
		} else if origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)

	logger.L.Info("Pengamannen backend server starting...")

	limiter = rate.NewLimiter(rate.Every(config.Cfg.RateLimitInterval), config.Cfg.RateLimitBurst)

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	database.RunMigrations(config.Cfg.DatabasePath)

	reportCache := cache.New(config.Cfg.ReportCacheExpiration, config.Cfg.ReportCacheCleanup)

	// Offline cache rollout: install the current version's static asset set
	// and activate it. A failed install only cancels this version; the
	// switchboard keeps routing through its fallback transport.
	cacheStore := offline.NewStore(database.DB)
	switchboard := offline.NewSwitchboard(nil)
	controller := offline.NewController(cacheStore, config.Cfg.UpstreamBaseURL, config.Cfg.AppVersion, nil)

	installCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := controller.Install(installCtx); err != nil {
		logger.L.Warn("Offline cache install failed, continuing without offline support", "error", err)
	} else if err := controller.Activate(installCtx, switchboard); err != nil {
		logger.L.Warn("Offline cache activation failed, continuing without offline support", "error", err)
	}
	cancel()

	upstreamClient := &http.Client{
		Transport: switchboard,
		Timeout:   15 * time.Second,
	}

	transactionProcessor := processors.NewTransactionProcessor(database.DB)
	importService := services.NewImportService(database.DB, transactionProcessor, reportCache)

	importHandler := handlers.NewImportHandler(importService)
	proxyHandler := handlers.NewProxyHandler(config.Cfg.UpstreamBaseURL, upstreamClient)

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(handlers.ContextualLoggerMiddleware)
	r.Use(enableCORS)
	r.Use(rateLimitMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Post("/import", importHandler.HandleUpload)
		r.Post("/import/confirm", importHandler.HandleConfirm)
		r.Post("/import/sync", importHandler.HandleSync)
		r.Get("/holdings", importHandler.HandleGetHoldings)

		// Everything computed upstream goes through the offline switchboard.
		r.Get("/strategies/{name}", proxyHandler.HandleProxy)
		r.Get("/portfolio/default", proxyHandler.HandleProxy)
		r.Get("/backtests/{id}", proxyHandler.HandleProxy)
	})

	// Static assets fall through to the upstream origin, cache-first.
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			proxyHandler.HandleProxy(w, r)
			return
		}
		http.NotFound(w, r)
	})

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stdlog.Fatalf("Failed to start server: %v", err)
	}
}
