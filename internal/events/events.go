// Package events announces conversation changes on NATS.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectPrefix is followed by the event type, for example
// "fipsync.conversation.created".
const SubjectPrefix = "fipsync.conversation."

type Type string

const (
	Created Type = "created"
	Updated Type = "updated"
	Closed  Type = "closed"
)

// ConversationEvent is the JSON payload of every event.
type ConversationEvent struct {
	Type      Type      `json:"type"`
	RunID     string    `json:"runId"`
	Repo      string    `json:"repo"`
	ZID       int64     `json:"zid"`
	PRNumber  int       `json:"prNumber"`
	FIPNumber int       `json:"fipNumber,omitempty"`
	Title     string    `json:"title,omitempty"`
	IsActive  bool      `json:"isActive"`
	Merged    bool      `json:"merged"`
	At        time.Time `json:"at"`
}

func (e ConversationEvent) Subject() string {
	return SubjectPrefix + string(e.Type)
}

type conn interface {
	Publish(subject string, data []byte) error
}

type Publisher struct {
	conn conn
	nc   *nats.Conn
}

// Connect dials url and returns a publisher that owns the connection.
func Connect(url string) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("fipsync"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Publisher{conn: nc, nc: nc}, nil
}

func (p *Publisher) Publish(event ConversationEvent) error {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.conn.Publish(event.Subject(), data); err != nil {
		return fmt.Errorf("publish %s: %w", event.Subject(), err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}
