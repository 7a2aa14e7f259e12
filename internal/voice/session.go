package voice

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rsg-tillsyn/tillsyn-assist/internal/audio"
	"github.com/rsg-tillsyn/tillsyn-assist/pkg/logger"
)

// ErrMicrophoneUnavailable is returned when the audio source cannot be opened
var ErrMicrophoneUnavailable = errors.New("microphone unavailable")

// ErrSessionActive is returned when starting a session that is already running
var ErrSessionActive = errors.New("session already active")

// Client is the conversational-voice provider contract
type Client interface {
	// StartSession opens the session and returns the provider conversation id
	StartSession(ctx context.Context, agentID string) (string, error)
	EndSession(ctx context.Context) error
	// SetVolume sets agent output volume in [0, 1]
	SetVolume(volume float64) error
	Events() <-chan Event
}

// Status is the session lifecycle state
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// Permission is the last known microphone permission
type Permission string

const (
	PermissionUnknown Permission = "unknown"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// Snapshot is a read-only view of the session
type Snapshot struct {
	ID         string     `json:"id"`
	Status     Status     `json:"status"`
	Muted      bool       `json:"muted"`
	Permission Permission `json:"microphone"`
}

// Session drives one provider client through its lifecycle. It never reconnects on its own.
type Session struct {
	client     Client
	microphone audio.Source
	logger     *logger.Logger

	mu         sync.RWMutex
	id         string
	status     Status
	muted      bool
	permission Permission
}

// NewSession creates a disconnected session
func NewSession(client Client, microphone audio.Source, log *logger.Logger) *Session {
	return &Session{
		client:     client,
		microphone: microphone,
		logger:     log.Named("session"),
		status:     StatusDisconnected,
		permission: PermissionUnknown,
	}
}

// CheckMicrophone acquires the audio source and releases it immediately
func (s *Session) CheckMicrophone() error {
	stream, err := s.microphone.Open()
	if err != nil {
		s.setPermission(PermissionDenied)
		s.logger.Warn("Microphone check failed", logger.Error(err))
		return fmt.Errorf("%w: %v", ErrMicrophoneUnavailable, err)
	}
	if err := stream.Close(); err != nil {
		s.logger.Warn("Failed to release microphone after check", logger.Error(err))
	}
	s.setPermission(PermissionGranted)
	return nil
}

// Start checks the microphone and opens a provider session
func (s *Session) Start(ctx context.Context, agentID string) error {
	s.mu.Lock()
	if s.status == StatusConnecting || s.status == StatusConnected {
		s.mu.Unlock()
		return ErrSessionActive
	}
	s.mu.Unlock()

	if err := s.CheckMicrophone(); err != nil {
		return err
	}

	s.setStatus(StatusConnecting)
	s.logger.Info("Starting session", logger.String("agent_id", agentID))

	id, err := s.client.StartSession(ctx, agentID)
	if err != nil {
		s.setStatus(StatusDisconnected)
		s.logger.Error("Failed to start session", logger.Error(err))
		return fmt.Errorf("failed to start session: %w", err)
	}

	s.mu.Lock()
	s.id = id
	s.status = StatusConnected
	s.mu.Unlock()

	s.logger.Info("Session started", logger.String("conversation_id", id))
	return nil
}

// Stop ends the provider session
func (s *Session) Stop(ctx context.Context) error {
	err := s.client.EndSession(ctx)
	s.setStatus(StatusDisconnected)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	return nil
}

// SetMuted silences or restores agent output
func (s *Session) SetMuted(muted bool) error {
	volume := 1.0
	if muted {
		volume = 0
	}
	if err := s.client.SetVolume(volume); err != nil {
		return fmt.Errorf("failed to set volume: %w", err)
	}

	s.mu.Lock()
	s.muted = muted
	s.mu.Unlock()
	return nil
}

// Run pumps provider events into h until the events channel closes, the
// provider disconnects, or ctx is done
func (s *Session) Run(ctx context.Context, h Handler) error {
	events := s.client.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				s.setStatus(StatusDisconnected)
				return nil
			}

			if conn, isConn := ev.(Connection); isConn {
				s.observeConnection(conn)
			}

			if err := Dispatch(ev, h); err != nil {
				s.logger.Warn("Dropping event", logger.Error(err))
				continue
			}

			if conn, isConn := ev.(Connection); isConn && conn.State != Connected {
				return nil
			}
		}
	}
}

func (s *Session) observeConnection(conn Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch conn.State {
	case Connected:
		s.status = StatusConnected
		if conn.ConversationID != "" {
			s.id = conn.ConversationID
		}
	case Disconnected:
		s.status = StatusDisconnected
	case Errored:
		// Provider errors reset the session; the user starts a new one
		s.status = StatusDisconnected
		s.logger.Error("Provider error", logger.Error(conn.Err))
	}
}

// ID returns the provider conversation id of the current or last session
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// Status returns the lifecycle state
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Snapshot returns the current state
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{ID: s.id, Status: s.status, Muted: s.muted, Permission: s.permission}
}

func (s *Session) setStatus(status Status) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func (s *Session) setPermission(p Permission) {
	s.mu.Lock()
	s.permission = p
	s.mu.Unlock()
}
