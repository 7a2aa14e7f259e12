package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/rsg-tillsyn/tillsyn-assist/internal/audio"
	"github.com/rsg-tillsyn/tillsyn-assist/internal/voice"
	"github.com/rsg-tillsyn/tillsyn-assist/pkg/logger"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	writeTimeout            = 5 * time.Second
	eventBuffer             = 64
)

// Server message types
const (
	msgInitiationMetadata = "conversation_initiation_metadata"
	msgUserTranscript     = "user_transcript"
	msgAgentResponse      = "agent_response"
	msgAudio              = "audio"
	msgPing               = "ping"
	msgInterruption       = "interruption"
	msgDataCollection     = "data_collection"
)

// ConversationOptions configures the realtime socket
type ConversationOptions struct {
	APIKey       string
	WebSocketURL string
	Microphone   audio.Source
	ChunkMs      int
	// Output receives agent PCM16 audio scaled by the volume; nil discards it
	Output io.Writer
	// Pace sends microphone frames in real time instead of as fast as they are read
	Pace             bool
	HandshakeTimeout time.Duration
	Dialer           *websocket.Dialer
}

// Conversation implements voice.Client over the ConvAI WebSocket
type Conversation struct {
	opts   ConversationOptions
	dialer *websocket.Dialer
	logger *logger.Logger

	mu      sync.Mutex
	volume  float64
	conn    *websocket.Conn
	events  chan voice.Event
	cancel  context.CancelFunc
	done    chan struct{}
	id      string
	micOnce *sync.Once
	mic     audio.Stream

	writeMu sync.Mutex
}

// NewConversation creates an idle conversation client
func NewConversation(opts ConversationOptions, log *logger.Logger) *Conversation {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
		}
	}

	closed := make(chan voice.Event)
	close(closed)

	return &Conversation{
		opts:   opts,
		dialer: dialer,
		logger: log.Named("convai"),
		volume: 1,
		events: closed,
	}
}

// Events returns the event stream of the current session. It is closed when the session ends.
func (c *Conversation) Events() <-chan voice.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events
}

// SetVolume scales agent audio; 0 mutes it
func (c *Conversation) SetVolume(volume float64) error {
	if volume < 0 || volume > 1 || math.IsNaN(volume) {
		return fmt.Errorf("volume must be within [0, 1]: %v", volume)
	}
	c.mu.Lock()
	c.volume = volume
	c.mu.Unlock()
	return nil
}

// StartSession opens the microphone, dials the agent and waits for the conversation id
func (c *Conversation) StartSession(ctx context.Context, agentID string) (string, error) {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return "", voice.ErrSessionActive
	}
	c.mu.Unlock()

	mic, err := c.opts.Microphone.Open()
	if err != nil {
		return "", fmt.Errorf("%w: %v", voice.ErrMicrophoneUnavailable, err)
	}

	chunker, err := audio.NewChunker(mic.Format(), c.opts.ChunkMs)
	if err != nil {
		mic.Close()
		return "", fmt.Errorf("failed to create audio chunker: %w", err)
	}

	endpoint, err := url.Parse(c.opts.WebSocketURL)
	if err != nil {
		mic.Close()
		return "", fmt.Errorf("invalid websocket url: %w", err)
	}
	query := endpoint.Query()
	query.Set("agent_id", agentID)
	endpoint.RawQuery = query.Encode()

	header := http.Header{}
	header.Set(apiKeyHeader, c.opts.APIKey)

	c.logger.Info("Connecting to agent", logger.String("agent_id", agentID))

	conn, resp, err := c.dialer.DialContext(ctx, endpoint.String(), header)
	if err != nil {
		mic.Close()
		if resp != nil {
			return "", fmt.Errorf("failed to connect to agent: status %d: %w", resp.StatusCode, err)
		}
		return "", fmt.Errorf("failed to connect to agent: %w", err)
	}

	id, err := c.awaitMetadata(ctx, conn)
	if err != nil {
		conn.Close()
		mic.Close()
		return "", err
	}

	sessCtx, cancel := context.WithCancel(context.Background())
	events := make(chan voice.Event, eventBuffer)
	done := make(chan struct{})

	c.mu.Lock()
	c.conn = conn
	c.events = events
	c.cancel = cancel
	c.done = done
	c.id = id
	c.mic = mic
	c.micOnce = &sync.Once{}
	c.mu.Unlock()

	events <- voice.Connection{State: voice.Connected, ConversationID: id}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.readLoop(sessCtx, conn, events, id)
	}()
	go func() {
		defer wg.Done()
		c.pumpAudio(sessCtx, conn, mic, chunker)
	}()
	go func() {
		wg.Wait()
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		close(events)
		close(done)
	}()

	c.logger.Info("Conversation started", logger.String("conversation_id", id))
	return id, nil
}

// EndSession closes the socket and waits until the session goroutines have exited
func (c *Conversation) EndSession(ctx context.Context) error {
	c.mu.Lock()
	conn, done := c.conn, c.done
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeTimeout))
	c.writeMu.Unlock()

	c.stop()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stop cancels the session, closes the socket and releases the microphone
func (c *Conversation) stop() {
	c.mu.Lock()
	cancel, conn := c.cancel, c.conn
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	c.releaseMicrophone()
}

func (c *Conversation) releaseMicrophone() {
	c.mu.Lock()
	once, mic := c.micOnce, c.mic
	c.mu.Unlock()

	if once == nil {
		return
	}
	once.Do(func() {
		if err := mic.Close(); err != nil {
			c.logger.Warn("Failed to release microphone", logger.Error(err))
		}
	})
}

func (c *Conversation) awaitMetadata(ctx context.Context, conn *websocket.Conn) (string, error) {
	deadline := time.Now().Add(c.opts.HandshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetReadDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return "", fmt.Errorf("failed to receive conversation metadata: %w", err)
		}

		msg := gjson.ParseBytes(data)
		switch msg.Get("type").String() {
		case msgInitiationMetadata:
			id := msg.Get("conversation_initiation_metadata_event.conversation_id").String()
			if id == "" {
				return "", fmt.Errorf("conversation metadata without conversation id")
			}
			return id, nil
		case msgPing:
			if err := c.pong(conn, msg); err != nil {
				return "", err
			}
		default:
			c.logger.Debug("Ignoring message before metadata", logger.String("type", msg.Get("type").String()))
		}
	}
}

func (c *Conversation) readLoop(ctx context.Context, conn *websocket.Conn, events chan<- voice.Event, id string) {
	defer c.stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			terminal := voice.Connection{State: voice.Disconnected, ConversationID: id}
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Error("Conversation socket failed", logger.Error(err))
				terminal = voice.Connection{State: voice.Errored, ConversationID: id, Err: err}
			} else {
				c.logger.Info("Conversation ended", logger.String("conversation_id", id))
			}

			select {
			case events <- terminal:
			default:
				c.logger.Warn("Event buffer full, dropping terminal event")
			}
			return
		}

		if ev := c.handleMessage(conn, data); ev != nil {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		}
	}
}

// handleMessage answers protocol messages and returns the event to publish, if any
func (c *Conversation) handleMessage(conn *websocket.Conn, data []byte) voice.Event {
	msg := gjson.ParseBytes(data)
	msgType := msg.Get("type").String()

	switch msgType {
	case msgUserTranscript:
		if text := msg.Get("user_transcription_event.user_transcript").String(); text != "" {
			return voice.UserUtterance{Text: text}
		}
	case msgAgentResponse:
		if text := msg.Get("agent_response_event.agent_response").String(); text != "" {
			return voice.AssistantUtterance{Text: text}
		}
	case msgDataCollection:
		// Same shape as the REST data_collection_results
		if values := dataCollectionValues(msg.Get("data_collection_event")); len(values) > 0 {
			return voice.DataCollection{Values: values}
		}
	case msgAudio:
		c.playAudio(msg.Get("audio_event.audio_base_64").String())
	case msgPing:
		if err := c.pong(conn, msg); err != nil {
			c.logger.Warn("Failed to answer ping", logger.Error(err))
		}
	case msgInterruption:
		c.logger.Debug("Agent interrupted")
	default:
		c.logger.Debug("Unhandled message", logger.String("type", msgType))
	}
	return nil
}

func (c *Conversation) pong(conn *websocket.Conn, ping gjson.Result) error {
	eventID := ping.Get("ping_event.event_id").Int()
	if delay := ping.Get("ping_event.ping_ms").Int(); delay > 0 {
		time.Sleep(time.Duration(delay) * time.Millisecond)
	}
	return c.writeJSON(conn, map[string]interface{}{"type": "pong", "event_id": eventID})
}

func (c *Conversation) playAudio(encoded string) {
	if c.opts.Output == nil || encoded == "" {
		return
	}

	c.mu.Lock()
	volume := c.volume
	c.mu.Unlock()
	if volume == 0 {
		return
	}

	pcm, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		c.logger.Warn("Invalid agent audio", logger.Error(err))
		return
	}

	if _, err := c.opts.Output.Write(scalePCM16(pcm, volume)); err != nil {
		c.logger.Warn("Failed to write agent audio", logger.Error(err))
	}
}

// scalePCM16 multiplies little-endian 16-bit samples by volume
func scalePCM16(pcm []byte, volume float64) []byte {
	if volume == 1 {
		return pcm
	}
	out := make([]byte, len(pcm)-len(pcm)%2)
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int16(binary.LittleEndian.Uint16(pcm[i:]))
		binary.LittleEndian.PutUint16(out[i:], uint16(int16(float64(sample)*volume)))
	}
	return out
}

// pumpAudio streams microphone frames until the source ends or the session stops
func (c *Conversation) pumpAudio(ctx context.Context, conn *websocket.Conn, mic audio.Stream, chunker *audio.Chunker) {
	defer c.releaseMicrophone()

	buf := make([]byte, chunker.ChunkSize())
	sent := 0
	for {
		n, readErr := mic.Read(buf)
		if n > 0 {
			chunks, err := chunker.Write(buf[:n])
			if err != nil {
				c.logger.Error("Failed to chunk microphone audio", logger.Error(err))
				return
			}
			for _, chunk := range chunks {
				if !c.sendAudio(ctx, conn, chunk, chunker.ChunkDuration()) {
					return
				}
				sent++
			}
		}

		if readErr != nil {
			if !errors.Is(readErr, io.EOF) && ctx.Err() == nil {
				c.logger.Warn("Microphone read failed", logger.Error(readErr))
			}
			if rest := chunker.Flush(); len(rest) > 0 && ctx.Err() == nil {
				if c.sendAudio(ctx, conn, rest, 0) {
					sent++
				}
			}
			c.logger.Debug("Microphone stream finished", logger.Int("chunks", sent))
			return
		}
	}
}

func (c *Conversation) sendAudio(ctx context.Context, conn *websocket.Conn, chunk []byte, frame time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}

	msg := map[string]string{"user_audio_chunk": base64.StdEncoding.EncodeToString(chunk)}
	if err := c.writeJSON(conn, msg); err != nil {
		if ctx.Err() == nil {
			c.logger.Warn("Failed to send audio", logger.Error(err))
		}
		return false
	}

	if c.opts.Pace && frame > 0 {
		timer := time.NewTimer(frame)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
		}
	}
	return true
}

func (c *Conversation) writeJSON(conn *websocket.Conn, v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(v); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}
