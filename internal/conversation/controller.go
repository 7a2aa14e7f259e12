package conversation

import (
	"context"
	"sync"

	"github.com/rsg-tillsyn/tillsyn-assist/internal/notify"
	"github.com/rsg-tillsyn/tillsyn-assist/internal/transcript"
	"github.com/rsg-tillsyn/tillsyn-assist/internal/voice"
	"github.com/rsg-tillsyn/tillsyn-assist/pkg/logger"
)

// Controller holds the state of one live voice conversation and hands it to
// the pipeline when the conversation ends.
type Controller struct {
	pipeline *Pipeline
	notifier notify.Notifier
	logger   *logger.Logger

	mu             sync.Mutex
	acc            *transcript.Accumulator
	conversationID string
	collected      map[string]string
	ended          bool
}

var _ voice.Handler = (*Controller)(nil)

// NewController creates a controller feeding pipeline
func NewController(pipeline *Pipeline, notifier notify.Notifier, log *logger.Logger) *Controller {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Controller{
		pipeline:  pipeline,
		notifier:  notifier,
		logger:    log.Named("conversation"),
		acc:       transcript.NewAccumulator(),
		collected: make(map[string]string),
	}
}

func (c *Controller) OnAssistantUtterance(text string) {
	c.acc.Append(transcript.RoleAssistant, text)
}

func (c *Controller) OnUserUtterance(text string) {
	c.acc.Append(transcript.RoleUser, text)
}

// OnDataCollection merges provider-native fields; later values win
func (c *Controller) OnDataCollection(values map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range values {
		c.collected[k] = v
	}
	c.logger.Debug("Data collection received", logger.Int("fields", len(values)))
}

// OnConnect starts a fresh conversation
func (c *Controller) OnConnect(conversationID string) {
	c.mu.Lock()
	c.conversationID = conversationID
	c.collected = make(map[string]string)
	c.ended = false
	c.mu.Unlock()
	c.acc.Reset()

	c.logger.Info("Conversation started", logger.String("conversation_id", conversationID))
	c.notifyBackground(notify.Notification{
		Level:          notify.LevelInfo,
		Title:          "Connected to AI assistant",
		Message:        "You can now start speaking",
		ConversationID: conversationID,
	})
}

func (c *Controller) OnDisconnect(conversationID string) {
	c.mu.Lock()
	if conversationID != "" {
		c.conversationID = conversationID
	}
	c.ended = true
	id := c.conversationID
	c.mu.Unlock()

	c.logger.Info("Conversation ended", logger.String("conversation_id", id))
	c.notifyBackground(notify.Notification{
		Level:          notify.LevelInfo,
		Title:          "Disconnected from AI assistant",
		Message:        "Conversation ended",
		ConversationID: id,
	})
}

func (c *Controller) OnError(err error) {
	c.mu.Lock()
	c.ended = true
	id := c.conversationID
	c.mu.Unlock()

	c.logger.Error("Conversation error", logger.Error(err))
	message := "Connection to the assistant failed"
	if err != nil {
		message = err.Error()
	}
	c.notifyBackground(notify.Notification{
		Level:          notify.LevelError,
		Title:          "Error",
		Message:        message,
		ConversationID: id,
	})
}

// ConversationID returns the id of the current or last conversation
func (c *Controller) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationID
}

// Ended reports whether the provider ended the conversation
func (c *Controller) Ended() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ended
}

// Entries returns the transcript so far
func (c *Controller) Entries() []transcript.Entry {
	return c.acc.Entries()
}

// Finish drains the accumulated conversation into the pipeline
func (c *Controller) Finish(ctx context.Context) (Result, error) {
	c.mu.Lock()
	conv := Conversation{
		ID:        c.conversationID,
		Collected: c.collected,
	}
	c.collected = make(map[string]string)
	c.mu.Unlock()
	conv.Entries = c.acc.Drain()

	return c.pipeline.Process(ctx, conv)
}

func (c *Controller) notifyBackground(n notify.Notification) {
	if err := c.notifier.Notify(context.Background(), n); err != nil {
		c.logger.Warn("Failed to deliver notification", logger.Error(err))
	}
}
