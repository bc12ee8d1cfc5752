package domain

// Phase is the lifecycle step of the room session.
type Phase int

const (
	Idle Phase = iota
	Authenticating
	Loading
	Active
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Authenticating:
		return "authenticating"
	case Loading:
		return "loading"
	case Active:
		return "active"
	default:
		return "unknown"
	}
}

// ConnectionStatus mirrors the transport subscription state.
type ConnectionStatus string

const (
	StatusConnecting ConnectionStatus = "connecting"
	StatusSubscribed ConnectionStatus = "subscribed"
	StatusError      ConnectionStatus = "error"
	StatusTimedOut   ConnectionStatus = "timedOut"
	StatusClosed     ConnectionStatus = "closed"
)

// Failed reports whether the status is a transport failure.
func (s ConnectionStatus) Failed() bool {
	return s == StatusError || s == StatusTimedOut
}

// State is the unified view handed to subscribers on every change.
type State struct {
	User             User
	Room             RoomID
	Phase            Phase
	Messages         []Message
	MessagesRoom     RoomID // differs from Room while the new room is loading
	ReplyTo          *Message
	OnlineUsers      []PresenceEntry
	OnlineCount      int
	TypingUsers      []TypingSignal
	ConnectionStatus ConnectionStatus
	Err              error
}

// NotificationKind tells how a notification should be rendered.
type NotificationKind int

const (
	UserJoined NotificationKind = iota
	Failure
)

// Notification is a one-shot, dismissible event for the caller.
type Notification struct {
	Kind NotificationKind
	Room RoomID
	User PresenceEntry
	Err  error
}
