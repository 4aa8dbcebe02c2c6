package amqp

import (
	"encoding/json"
	"time"
)

// ChangeMessage tells the worker that a transaction changed and needs its
// spreadsheet export refreshed. It carries only the id; the worker reads the
// current record from the database, so a stale message is harmless.
type ChangeMessage struct {
	TransactionID string    `json:"transaction_id"`
	Op            string    `json:"op"` // "created", "updated" or "deleted"
	Timestamp     time.Time `json:"timestamp"`
}

func NewChangeMessage(transactionID, op string) *ChangeMessage {
	return &ChangeMessage{
		TransactionID: transactionID,
		Op:            op,
		Timestamp:     time.Now(),
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
	return &msg, nil
}
