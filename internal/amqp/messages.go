package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"bilancio/internal/core"
	"bilancio/internal/events"
)

// ChangeMessage is the wire form of a transaction change. It carries only
// identifiers; consumers reload whatever they need from storage.
type ChangeMessage struct {
	OwnerID       uuid.UUID     `json:"owner_id"`
	TransactionID uuid.UUID     `json:"transaction_id"`
	Action        events.Action `json:"action"`
	Date          string        `json:"date"`
	Timestamp     time.Time     `json:"timestamp"`
}

func NewChangeMessage(c events.Change) *ChangeMessage {
	ts := c.At
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &ChangeMessage{
		OwnerID:       c.OwnerID,
		TransactionID: c.TransactionID,
		Action:        c.Action,
		Date:          c.Date.String(),
		Timestamp:     ts,
	}
}

// Validate rejects messages a consumer could not act on.
func (m *ChangeMessage) Validate() error {
	if m.OwnerID == uuid.Nil {
		return errors.New("missing owner_id")
	}
	switch m.Action {
	case events.ActionCreated, events.ActionDeleted:
	default:
		return fmt.Errorf("unknown action %q", m.Action)
	}
	if _, err := core.ParseDate(m.Date); err != nil {
		return fmt.Errorf("date: %w", err)
	}
	return nil
}

// ToChange converts the wire form back to a hub change.
func (m *ChangeMessage) ToChange() (events.Change, error) {
	d, err := core.ParseDate(m.Date)
	if err != nil {
		return events.Change{}, err
	}
	return events.Change{
		OwnerID:       m.OwnerID,
		TransactionID: m.TransactionID,
		Action:        m.Action,
		Date:          d,
		At:            m.Timestamp,
	}, nil
}

func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ChangeMessageFromJSON decodes and validates a message body.
func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid change message: %w", err)
	}
	return &msg, nil
}
