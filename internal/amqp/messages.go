package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ChangeMessage is the wire form of one committed ledger write.
type ChangeMessage struct {
	ID        uuid.UUID `json:"id"`
	Tables    []string  `json:"tables"`
	Timestamp time.Time `json:"timestamp"`
}

func NewChangeMessage(tables []string, at time.Time) *ChangeMessage {
	if at.IsZero() {
		at = time.Now()
	}
	return &ChangeMessage{
		ID:        uuid.New(),
		Tables:    append([]string(nil), tables...),
		Timestamp: at.UTC(),
	}
}

func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == uuid.Nil {
		return nil, errors.New("change message without id")
	}
	if len(msg.Tables) == 0 {
		return nil, errors.New("change message without tables")
	}
	return &msg, nil
}
