package amqp

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ForecastRefreshMessage asks the worker to recompute one owner's forecast.
// It carries only the owner id; the worker reads the ledger itself.
type ForecastRefreshMessage struct {
	MessageID string    `json:"message_id"`
	OwnerID   string    `json:"owner_id"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Refresh reasons.
const (
	ReasonRequested = "requested"
	ReasonStale     = "stale"
)

var errMissingOwner = errors.New("refresh message without owner_id")

func NewForecastRefreshMessage(ownerID, reason string) *ForecastRefreshMessage {
	return &ForecastRefreshMessage{
		MessageID: uuid.NewString(),
		OwnerID:   ownerID,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ForecastRefreshMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ForecastRefreshMessageFromJSON decodes a message and rejects ones without an owner.
func ForecastRefreshMessageFromJSON(data []byte) (*ForecastRefreshMessage, error) {
	var msg ForecastRefreshMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(msg.OwnerID) == "" {
		return nil, errMissingOwner
	}
	return &msg, nil
}
