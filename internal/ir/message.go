package ir

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Scope distinguishes group-level from per-user notifications.
type Scope string

const (
	ScopeGroup Scope = "group"
	ScopeUser  Scope = "user"

	// ScopeSelf marks a signal about the local participant itself.
	ScopeSelf Scope = "self"
)

// token returns the message token for the scope. Group scope has none.
func (s Scope) token() string {
	if s == ScopeUser {
		return string(ScopeUser)
	}
	return ""
}

// Feed is the audience a group notification describes. The voice room
// is the default and adds no message token.
type Feed string

const (
	FeedRoom   Feed = ""
	FeedStream Feed = "stream"
)

// KindLocal is the kind of local participant signals. It is not a group
// check: signals have no cache entry and cannot be toggled.
const KindLocal CheckKind = "local"

// Signal sources.
const (
	SignalStream = "stream"
	SignalMute   = "mute"
	SignalDeafen = "deafen"
)

// signalMessages holds the off and on message of each signal.
var signalMessages = map[string][2]string{
	SignalStream: {"stream-stop", "stream-start"},
	SignalMute:   {"self-unmute", "self-mute"},
	SignalDeafen: {"self-undeafen", "self-deafen"},
}

// Status is the direction of a notification.
type Status string

const (
	StatusEnter Status = "enter"
	StatusLeave Status = "leave"
)

// StatusFor maps a satisfaction value to its status.
func StatusFor(satisfied bool) Status {
	if satisfied {
		return StatusEnter
	}
	return StatusLeave
}

// Message joins the non-empty parts with "-" and lowercases the result.
//
// Consumers parse these strings, so the format is fixed:
//
//	Message("muted", "", "enter")  // "muted-enter"
//	Message("VIP", "user", "enter") // "vip-user-enter"
func Message(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return cases.Lower(language.Und).String(strings.Join(nonEmpty, "-"))
}

// Notification is one emitted transition.
type Notification struct {
	// Session identifies the membership context that produced it.
	Session string `json:"session,omitempty"`

	// Pass is the evaluation pass number within the session.
	Pass int64 `json:"pass"`

	Kind     CheckKind  `json:"kind"`
	Source   string     `json:"source,omitempty"`
	Feed     Feed       `json:"feed,omitempty"`
	Scope    Scope      `json:"scope"`
	Status   Status     `json:"status"`
	Entities []EntityID `json:"entities,omitempty"`

	// Message is the control message string, see Message.
	Message string `json:"message"`
}

// NewNotification builds a notification and its message string.
func NewNotification(kind CheckKind, source string, scope Scope, status Status, entities []EntityID) Notification {
	n := Notification{
		Kind:     kind,
		Source:   source,
		Scope:    scope,
		Status:   status,
		Entities: entities,
	}
	n.Message = n.groupMessage()
	return n
}

// OnFeed returns n attributed to feed f with its message rebuilt:
//
//	vip-enter       -> vip-stream-enter
//	some-user-leave -> some-stream-user-leave
func (n Notification) OnFeed(f Feed) Notification {
	n.Feed = f
	n.Message = n.groupMessage()
	return n
}

func (n Notification) groupMessage() string {
	name := n.Source
	if name == "" {
		name = n.Kind.Token()
	}
	return Message(name, string(n.Feed), n.Scope.token(), string(n.Status))
}

// NewSignal builds a local participant signal. on selects the start,
// mute or deafen message over its counterpart.
func NewSignal(source string, on bool) Notification {
	n := Notification{
		Kind:   KindLocal,
		Source: source,
		Scope:  ScopeSelf,
		Status: StatusFor(on),
	}
	if msgs, ok := signalMessages[source]; ok {
		n.Message = msgs[0]
		if on {
			n.Message = msgs[1]
		}
	} else {
		n.Message = Message("self", source, string(n.Status))
	}
	return n
}

// IsSatisfied reports the satisfaction value carried by the notification.
// For user scope it is the direction: joined satisfying entities are
// reported as satisfied, departed ones as not.
func (n Notification) IsSatisfied() bool {
	return n.Status == StatusEnter
}
