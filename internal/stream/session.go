// Package stream watches the live transport session for new channel messages
// and forwards keyword matches to the trusted recipient.
package stream

import (
	"context"
	"encoding/json"
)

type EventKind int

const (
	// KindMessage is a new message in a monitored channel.
	KindMessage EventKind = iota
	// KindAppData is a service event carrying an embedded control-panel
	// payload, delivered through the live session instead of the Bot API.
	KindAppData
)

// Event is the closed variant of everything a session can emit. It is
// decoded once at the transport boundary; consumers switch on Kind.
type Event struct {
	Kind   EventKind
	ChatID int64
	Text   string          // KindMessage
	Data   json.RawMessage // KindAppData
}

// Session is the live transport collaborator. One Session corresponds to one
// connection; after Run returns the session is spent and the listener builds
// a fresh one.
type Session interface {
	// Events yields decoded events for the channel set the session was
	// created with.
	Events() <-chan Event
	// SendSelf posts text back to the trusted recipient over this session.
	// Used as the fallback path when the notifier fails.
	SendSelf(ctx context.Context, text string) error
	// Run connects and blocks until disconnect or ctx cancellation.
	Run(ctx context.Context) error
	Close()
}

// Factory builds a session subscribed to the given channel set.
type Factory func(channels []int64) (Session, error)
