package amqp

import (
	"encoding/json"
	"time"
)

// LedgerSyncMessage tells the sync worker that a new snapshot exists. It only
// carries the version; the worker reads the snapshot from the database.
type LedgerSyncMessage struct {
	Version   uint64    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

func NewLedgerSyncMessage(version uint64) *LedgerSyncMessage {
	return &LedgerSyncMessage{
		Version:   version,
		Timestamp: time.Now(),
	}
}

func (m *LedgerSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerSyncMessageFromJSON(data []byte) (*LedgerSyncMessage, error) {
	var msg LedgerSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
