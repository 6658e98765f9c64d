package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// EventsChannel is the Postgres NOTIFY channel carrying row change events
// for realtime delivery
const EventsChannel = "swiftride_events"

// ChangeEvent is the payload published on EventsChannel. New holds the
// changed row serialized as JSON.
type ChangeEvent struct {
	Table     string          `json:"table"`
	EventType string          `json:"event_type"`
	New       json.RawMessage `json:"new"`
}

// Change event types
const (
	EventBookingCreated   = "booking_created"
	EventBookingPaid      = "booking_paid"
	EventBookingCancelled = "booking_cancelled"
	EventMessageCreated   = "message_created"
)

// sqlExecer is satisfied by both DB and *sqlx.Tx so events can be
// published inside or outside a transaction
type sqlExecer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// notifyEvent publishes a row change on EventsChannel. Events published
// inside a transaction are only delivered on commit, so listeners never
// see changes from rolled back writes.
func notifyEvent(exec sqlExecer, table, eventType string, row interface{}) error {
	rowJSON, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event payload: %w", eventType, err)
	}
	payload, err := json.Marshal(ChangeEvent{Table: table, EventType: eventType, New: rowJSON})
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}
	_, err = exec.Exec(`SELECT pg_notify($1, $2)`, EventsChannel, string(payload))
	return err
}
