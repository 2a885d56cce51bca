package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"ledger/internal/core"
)

// LedgerChangedMessage announces that a holder's ledger changed. It carries
// no record data: consumers reload the full ledger.
type LedgerChangedMessage struct {
	HolderID  string          `json:"holderId"`
	RecordID  string          `json:"recordId,omitempty"`
	Kind      core.ChangeKind `json:"kind"`
	Origin    string          `json:"origin,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewLedgerChangedMessage builds the message for change, tagged with the
// publishing process.
func NewLedgerChangedMessage(change core.LedgerChange, origin string) *LedgerChangedMessage {
	ts := change.At
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &LedgerChangedMessage{
		HolderID:  change.HolderID,
		RecordID:  change.RecordID,
		Kind:      change.Kind,
		Origin:    origin,
		Timestamp: ts,
	}
}

// Change converts the message back into a domain change.
func (m *LedgerChangedMessage) Change() core.LedgerChange {
	return core.LedgerChange{HolderID: m.HolderID, RecordID: m.RecordID, Kind: m.Kind, At: m.Timestamp}
}

// ToJSON converts the message to JSON bytes
func (m *LedgerChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerChangedMessageFromJSON parses a message; a missing holder is an
// error.
func LedgerChangedMessageFromJSON(data []byte) (*LedgerChangedMessage, error) {
	var msg LedgerChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.HolderID == "" {
		return nil, errors.New("ledger change without holder")
	}
	return &msg, nil
}
