package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventKind says what happened to an expense.
type EventKind string

const (
	ExpenseCreated EventKind = "expense.created"
	ExpenseUpdated EventKind = "expense.updated"
	ExpenseDeleted EventKind = "expense.deleted"
)

// ExpenseEvent is the message published after an expense write. It
// carries only the id and version; the journal worker loads the full
// row from the database.
type ExpenseEvent struct {
	Kind      EventKind `json:"kind"`
	ID        int64     `json:"id"`
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

func NewExpenseEvent(kind EventKind, id, version int64) *ExpenseEvent {
	return &ExpenseEvent{
		Kind:      kind,
		ID:        id,
		Version:   version,
		Timestamp: time.Now(),
	}
}

func (e *ExpenseEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}

func DecodeExpenseEvent(data []byte) (*ExpenseEvent, error) {
	var ev ExpenseEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	switch ev.Kind {
	case ExpenseCreated, ExpenseUpdated, ExpenseDeleted:
	default:
		return nil, fmt.Errorf("unknown event kind %q", ev.Kind)
	}
	return &ev, nil
}
