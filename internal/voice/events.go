package voice

import "fmt"

// Event is one provider event. The set of variants is closed.
type Event interface {
	isEvent()
}

// AssistantUtterance is a final agent turn
type AssistantUtterance struct {
	Text string
}

// UserUtterance is a final transcription of the user
type UserUtterance struct {
	Text string
}

// DataCollection carries provider-native structured results delivered during the session
type DataCollection struct {
	Values map[string]string
}

// ConnectionState is the transport state reported by the provider
type ConnectionState string

const (
	Connected    ConnectionState = "connected"
	Disconnected ConnectionState = "disconnected"
	Errored      ConnectionState = "error"
)

// Connection reports a transport state change
type Connection struct {
	State          ConnectionState
	ConversationID string
	Err            error
}

func (AssistantUtterance) isEvent() {}
func (UserUtterance) isEvent()      {}
func (DataCollection) isEvent()     {}
func (Connection) isEvent()         {}

// Handler receives dispatched events
type Handler interface {
	OnAssistantUtterance(text string)
	OnUserUtterance(text string)
	OnDataCollection(values map[string]string)
	OnConnect(conversationID string)
	OnDisconnect(conversationID string)
	OnError(err error)
}

// Dispatch routes an event to the matching handler method
func Dispatch(ev Event, h Handler) error {
	switch e := ev.(type) {
	case AssistantUtterance:
		h.OnAssistantUtterance(e.Text)
	case UserUtterance:
		h.OnUserUtterance(e.Text)
	case DataCollection:
		h.OnDataCollection(e.Values)
	case Connection:
		switch e.State {
		case Connected:
			h.OnConnect(e.ConversationID)
		case Disconnected:
			h.OnDisconnect(e.ConversationID)
		case Errored:
			h.OnError(e.Err)
		default:
			return fmt.Errorf("unknown connection state %q", e.State)
		}
	default:
		return fmt.Errorf("unknown event type %T", ev)
	}
	return nil
}
