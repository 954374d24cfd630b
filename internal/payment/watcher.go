package payment

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dukerupert/gatekeep/internal/model"
)

// ErrAlreadyWatching is returned when a watch already exists for the
// transaction id.
var ErrAlreadyWatching = errors.New("payment: transaction already being watched")

// Gateway is the slice of the provider client the watcher needs.
type Gateway interface {
	Status(ctx context.Context, transactionID string) (model.PaymentStatus, error)
}

// Hooks receive the terminal outcomes a user should hear about. Each fires at
// most once per watch.
type Hooks struct {
	// OnApproved runs when the first approved status is observed.
	OnApproved func()
	// OnRejected runs when the payment is rejected or cancelled.
	OnRejected func()
}

// Watcher polls payment statuses until a terminal outcome or the watch
// ceiling. One watch per transaction id; watches are process-memory only.
type Watcher struct {
	gateway       Gateway
	interval      time.Duration
	ceiling       time.Duration
	retryInterval time.Duration
	maxRetries    uint64
	logger        *slog.Logger

	mu      sync.Mutex
	watches map[string]*watch
	wg      sync.WaitGroup
}

type watch struct {
	cancel  context.CancelFunc
	pending model.PendingPayment
}

type WatcherOption func(*Watcher)

// WithInterval sets the poll interval (default 10s).
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.interval = d
	}
}

// WithCeiling sets the maximum watch duration (default 30m).
func WithCeiling(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.ceiling = d
	}
}

// WithRetry tunes the transient-error policy: up to n extra attempts spaced d
// apart before a watch is abandoned (defaults: 3 and 2s).
func WithRetry(n uint64, d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.maxRetries = n
		w.retryInterval = d
	}
}

// NewWatcher creates a watcher over the given gateway.
func NewWatcher(g Gateway, logger *slog.Logger, opts ...WatcherOption) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Watcher{
		gateway:       g,
		interval:      10 * time.Second,
		ceiling:       30 * time.Minute,
		retryInterval: 2 * time.Second,
		maxRetries:    3,
		logger:        logger,
		watches:       make(map[string]*watch),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Watch starts polling the pending payment until approval, rejection, the
// retry budget is exhausted, or the ceiling elapses. Starting a second watch
// for a transaction id that is still active returns ErrAlreadyWatching.
func (w *Watcher) Watch(ctx context.Context, pending model.PendingPayment, hooks Hooks) error {
	if pending.CreatedAt.IsZero() {
		pending.CreatedAt = time.Now()
	}
	pending.Status = model.StatusPending

	w.mu.Lock()
	if _, exists := w.watches[pending.TransactionID]; exists {
		w.mu.Unlock()
		return ErrAlreadyWatching
	}
	ctx, cancel := context.WithTimeout(ctx, w.ceiling)
	w.watches[pending.TransactionID] = &watch{cancel: cancel, pending: pending}
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run(ctx, pending.TransactionID, hooks)
	return nil
}

// Watching reports whether a watch is active for the transaction id.
func (w *Watcher) Watching(transactionID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.watches[transactionID]
	return ok
}

// Pending returns a snapshot of an active watch's payment record.
func (w *Watcher) Pending(transactionID string) (model.PendingPayment, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	wt, ok := w.watches[transactionID]
	if !ok {
		return model.PendingPayment{}, false
	}
	return wt.pending, true
}

func (w *Watcher) setStatus(transactionID string, status model.PaymentStatus) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if wt, ok := w.watches[transactionID]; ok {
		wt.pending.Status = status
	}
}

// StopAll cancels every active watch and waits for their goroutines to exit.
func (w *Watcher) StopAll() {
	w.mu.Lock()
	for id, wt := range w.watches {
		wt.cancel()
		delete(w.watches, id)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *Watcher) run(ctx context.Context, transactionID string, hooks Hooks) {
	defer w.wg.Done()
	defer w.remove(transactionID)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Ceiling reached (or shutdown): the payment never went terminal.
			w.logger.Info("payment watch stopped", "transaction", transactionID, "reason", ctx.Err())
			return
		case <-ticker.C:
			status, err := w.poll(ctx, transactionID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				w.logger.Error("payment watch abandoned after retries",
					"transaction", transactionID, "error", err)
				return
			}
			w.setStatus(transactionID, status)

			switch status {
			case model.StatusApproved:
				w.logger.Info("payment approved", "transaction", transactionID)
				if hooks.OnApproved != nil {
					hooks.OnApproved()
				}
				return
			case model.StatusRejected, model.StatusCancelled:
				w.logger.Info("payment not approved", "transaction", transactionID, "status", status)
				if hooks.OnRejected != nil {
					hooks.OnRejected()
				}
				return
			case model.StatusError:
				// Provider answered but with something unusable.
				w.logger.Error("payment watch abandoned on provider error", "transaction", transactionID)
				return
			default:
				// Still pending; next tick.
			}
		}
	}
}

// poll asks the gateway for the status, retrying transport failures on a
// constant backoff up to the configured budget.
func (w *Watcher) poll(ctx context.Context, transactionID string) (model.PaymentStatus, error) {
	var status model.PaymentStatus
	backoff := retry.WithMaxRetries(w.maxRetries, retry.NewConstant(w.retryInterval))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		s, err := w.gateway.Status(ctx, transactionID)
		if err != nil {
			return retry.RetryableError(err)
		}
		status = s
		return nil
	})
	if err != nil {
		return model.StatusError, err
	}
	return status, nil
}

func (w *Watcher) remove(transactionID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if wt, ok := w.watches[transactionID]; ok {
		wt.cancel()
		delete(w.watches, transactionID)
	}
}
