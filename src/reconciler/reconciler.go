package reconciler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/oggew2/Pengamannen-sub001/src/models"
)

// State of the import flow. The preview only exists in Previewing and later
// states; illegal operations (confirming without a preview, syncing before
// completion) are rejected rather than representable.
type State int

const (
	StateIdle State = iota
	StateParsing
	StatePreviewing
	StateConfirming
	StateCompleted
	StateSyncing
)

func (s State) String() string {
	switch s {
	case StateParsing:
		return "parsing"
	case StatePreviewing:
		return "previewing"
	case StateConfirming:
		return "confirming"
	case StateCompleted:
		return "completed"
	case StateSyncing:
		return "syncing"
	default:
		return "idle"
	}
}

var (
	// ErrBusy means a request for the current step is already outstanding.
	ErrBusy = errors.New("a request is already in progress")
	// ErrInvalidState means the operation is not available from the current state.
	ErrInvalidState = errors.New("operation not available in current state")
	// ErrNothingNew rejects an add_new confirm when every parsed transaction
	// is already committed.
	ErrNothingNew = errors.New("no new transactions to import, switch to replace mode to re-import")
	// ErrSuperseded means a Reset discarded the request while it was in flight.
	ErrSuperseded = errors.New("request discarded by reset")
)

// Reconciler drives the upload, preview, confirm, sync sequence and keeps the
// client-side view of reconciliation state consistent. State transitions are
// strictly sequential; one outstanding request per step.
type Reconciler struct {
	client *Client

	mu         sync.Mutex
	state      State
	busy       bool
	gen        uint64 // bumped by Reset; stale completions are discarded
	mode       models.MergeMode
	preview    *models.ImportPreview
	imported   int
	holdings   []models.Holding
	warning    string
	errMsg     string
	celebrated bool
}

func NewReconciler(client *Client) *Reconciler {
	return &Reconciler{
		client: client,
		state:  StateIdle,
		mode:   models.MergeAddNew,
	}
}

// SubmitFile uploads a transaction export. On success the flow moves to
// Previewing holding the fresh preview (replacing any previous one); on
// failure it returns to Idle with a displayable error message attached.
func (r *Reconciler) SubmitFile(ctx context.Context, filename string, file io.Reader, source string) error {
	r.mu.Lock()
	if r.busy {
		r.mu.Unlock()
		return ErrBusy
	}
	r.busy = true
	r.state = StateParsing
	r.errMsg = ""
	gen := r.gen
	r.mu.Unlock()

	preview, err := r.client.UploadFile(ctx, filename, file, source)

	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.gen {
		return ErrSuperseded
	}
	r.busy = false
	if err != nil {
		r.state = StateIdle
		r.preview = nil
		r.errMsg = displayable(err)
		return err
	}
	r.state = StatePreviewing
	r.preview = preview
	r.mode = models.MergeAddNew
	r.celebrated = false
	return nil
}

// SelectMergeMode records the merge policy. Pure local state change, only
// meaningful while a preview is staged.
func (r *Reconciler) SelectMergeMode(mode models.MergeMode) error {
	if !mode.Valid() {
		return fmt.Errorf("unknown merge mode %q", mode)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StatePreviewing {
		return ErrInvalidState
	}
	r.mode = mode
	return nil
}

// ConfirmImport commits the staged preview under the selected merge mode.
// With add_new and zero new transactions the operation is rejected locally;
// on a backend failure the flow stays in Previewing so the user can retry
// without re-uploading.
func (r *Reconciler) ConfirmImport(ctx context.Context) error {
	r.mu.Lock()
	if r.busy {
		r.mu.Unlock()
		return ErrBusy
	}
	if r.state != StatePreviewing || r.preview == nil {
		r.mu.Unlock()
		return ErrInvalidState
	}
	if r.mode == models.MergeAddNew && r.preview.New == 0 {
		r.mu.Unlock()
		return ErrNothingNew
	}
	txs := r.preview.Transactions
	mode := r.mode
	r.busy = true
	r.state = StateConfirming
	r.errMsg = ""
	gen := r.gen
	r.mu.Unlock()

	result, err := r.client.ConfirmImport(ctx, txs, mode)

	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.gen {
		return ErrSuperseded
	}
	r.busy = false
	if err != nil {
		r.state = StatePreviewing
		r.errMsg = displayable(err)
		return err
	}
	r.state = StateCompleted
	r.imported = result.Imported
	return nil
}

// SyncToHoldings projects the committed history into live holdings. Only
// available once an import has completed. A warning in the response is shown
// alongside the applied holdings, never instead of them.
func (r *Reconciler) SyncToHoldings(ctx context.Context) error {
	r.mu.Lock()
	if r.busy {
		r.mu.Unlock()
		return ErrBusy
	}
	if r.state != StateCompleted {
		r.mu.Unlock()
		return ErrInvalidState
	}
	r.busy = true
	r.state = StateSyncing
	r.errMsg = ""
	gen := r.gen
	r.mu.Unlock()

	result, err := r.client.SyncToHoldings(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.gen {
		return ErrSuperseded
	}
	r.busy = false
	r.state = StateCompleted
	if err != nil {
		r.errMsg = displayable(err)
		return err
	}
	r.holdings = result.Holdings
	r.warning = result.Warning
	return nil
}

// Reset returns to Idle from any state and discards the staged preview. A
// request still in flight is orphaned: its completion sees the bumped
// generation and discards its result instead of resurrecting the old state.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	r.state = StateIdle
	r.busy = false
	r.preview = nil
	r.mode = models.MergeAddNew
	r.imported = 0
	r.holdings = nil
	r.warning = ""
	r.errMsg = ""
	r.celebrated = false
}

// State returns the current flow state.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Preview returns the staged preview, or nil outside Previewing and later states.
func (r *Reconciler) Preview() *models.ImportPreview {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.preview
}

// MergeMode returns the currently selected merge policy.
func (r *Reconciler) MergeMode() models.MergeMode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

// Imported returns the committed transaction count of the completed cycle.
func (r *Reconciler) Imported() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.imported
}

// Holdings returns the holdings applied by the last sync.
func (r *Reconciler) Holdings() []models.Holding {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.holdings
}

// Warning returns the advisory message of the last sync, if any.
func (r *Reconciler) Warning() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.warning
}

// ErrMessage returns the displayable error attached to the current state.
func (r *Reconciler) ErrMessage() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errMsg
}

// AllDuplicates reports whether the staged preview parsed transactions but
// found nothing new. The UI presents this as its own state, pointing the user
// at replace mode rather than a generic success.
func (r *Reconciler) AllDuplicates() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.preview != nil && r.preview.New == 0 && r.preview.DuplicatesSkipped > 0
}

// ConsumeCelebration reports true exactly once after a completed import, for
// the one-time celebratory UI signal.
func (r *Reconciler) ConsumeCelebration() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateCompleted && r.state != StateSyncing {
		return false
	}
	if r.celebrated {
		return false
	}
	r.celebrated = true
	return true
}

// displayable extracts a message that is always safe to show the user.
func displayable(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Detail
	}
	return err.Error()
}
