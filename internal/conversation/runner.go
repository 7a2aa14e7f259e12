package conversation

import (
	"context"
	"errors"
	"sync"

	"github.com/rsg-tillsyn/tillsyn-assist/internal/voice"
	"github.com/rsg-tillsyn/tillsyn-assist/pkg/logger"
)

// ErrNotRunning is returned when stopping or waiting without a live conversation
var ErrNotRunning = errors.New("no conversation running")

// Runner drives a live voice session and runs the pipeline when it ends.
// One conversation runs at a time.
type Runner struct {
	session    *voice.Session
	controller *Controller
	logger     *logger.Logger

	mu     sync.Mutex
	done   chan struct{}
	result Result
	err    error
}

// NewRunner creates a runner for session
func NewRunner(session *voice.Session, controller *Controller, log *logger.Logger) *Runner {
	return &Runner{
		session:    session,
		controller: controller,
		logger:     log.Named("runner"),
	}
}

// Start opens the session and pumps its events in the background.
// The pipeline runs detached from ctx once the provider disconnects.
func (r *Runner) Start(ctx context.Context, agentID string) error {
	r.mu.Lock()
	if r.done != nil {
		select {
		case <-r.done:
		default:
			r.mu.Unlock()
			return voice.ErrSessionActive
		}
	}
	r.mu.Unlock()

	if err := r.session.Start(ctx, agentID); err != nil {
		return err
	}

	done := make(chan struct{})
	r.mu.Lock()
	r.done = done
	r.result, r.err = Result{}, nil
	r.mu.Unlock()

	bg := context.WithoutCancel(ctx)
	go func() {
		defer close(done)

		if err := r.session.Run(bg, r.controller); err != nil {
			r.logger.Warn("Session event loop stopped", logger.Error(err))
		}

		result, err := r.controller.Finish(bg)
		if err != nil {
			r.logger.Error("Conversation pipeline failed",
				logger.String("conversation_id", result.ConversationID),
				logger.Error(err))
		}

		r.mu.Lock()
		r.result, r.err = result, err
		r.mu.Unlock()
	}()

	return nil
}

// Stop ends the provider session; the pipeline still runs to completion
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	running := r.done != nil
	r.mu.Unlock()
	if !running {
		return ErrNotRunning
	}
	return r.session.Stop(ctx)
}

// SetMuted mutes or unmutes the agent voice
func (r *Runner) SetMuted(muted bool) error {
	return r.session.SetMuted(muted)
}

// Snapshot returns the session state
func (r *Runner) Snapshot() voice.Snapshot {
	return r.session.Snapshot()
}

// Wait blocks until the pipeline of the current conversation has finished
func (r *Runner) Wait(ctx context.Context) (Result, error) {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done == nil {
		return Result{}, ErrNotRunning
	}

	select {
	case <-done:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result, r.err
}

// Outcome is a finished pipeline run
type Outcome struct {
	Result Result
	Err    error
}

// Last returns the outcome of the last finished conversation
func (r *Runner) Last() (Outcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done == nil {
		return Outcome{}, false
	}
	select {
	case <-r.done:
		return Outcome{Result: r.result, Err: r.err}, true
	default:
		return Outcome{}, false
	}
}
