// Package event defines the immutable Event envelope, its closed
// payload union, and per-family routing-key construction.
package event

import (
	"encoding/json"
	"fmt"

	"github.com/galatea-ims/event-hub/internal/domain/model"
)

// Event is the self-describing tagged record decoded off the log.
// It is immutable once constructed — handlers must not mutate Payload.
type Event struct {
	EventID       string          `json:"eventId"`
	EventType     model.EventType `json:"eventType"`
	EventTime     int64           `json:"eventTime"`
	CorrelationID string          `json:"correlationId"`
	Source        string          `json:"source"`
	SchemaVersion int             `json:"schemaVersion"`
	Payload       any             `json:"payload"`
}

// rawEvent mirrors Event but keeps Payload as raw JSON so it can be decoded
// into the concrete type selected by EventType.
type rawEvent struct {
	EventID       string          `json:"eventId"`
	EventType     model.EventType `json:"eventType"`
	EventTime     int64           `json:"eventTime"`
	CorrelationID string          `json:"correlationId"`
	Source        string          `json:"source"`
	SchemaVersion int             `json:"schemaVersion"`
	Payload       json.RawMessage `json:"payload"`
}

// Decode parses a log record into an Event, selecting the payload's concrete
// Go type from the closed set by eventType. A
// payload that fails to unmarshal is a Permanent error — the
// caller quarantines the record and commits the offset.
func Decode(raw []byte) (Event, error) {
	var re rawEvent
	if err := json.Unmarshal(raw, &re); err != nil {
		return Event{}, fmt.Errorf("event: decode envelope: %w", err)
	}

	payload, err := decodePayload(re.EventType, re.Payload)
	if err != nil {
		return Event{}, fmt.Errorf("event: decode payload for %s: %w", re.EventType, err)
	}

	return Event{
		EventID:       re.EventID,
		EventType:     re.EventType,
		EventTime:     re.EventTime,
		CorrelationID: re.CorrelationID,
		Source:        re.Source,
		SchemaVersion: re.SchemaVersion,
		Payload:       payload,
	}, nil
}

func decodePayload(t model.EventType, raw json.RawMessage) (any, error) {
	var target any
	switch t {
	case model.EventReferenceDataUpdate:
		target = &model.ReferenceDataUpdate{}
	case model.EventMarketDataTick:
		target = &model.MarketDataTick{}
	case model.EventPositionSnapshot:
		target = &model.PositionSnapshot{}
	case model.EventInventorySnapshot:
		target = &model.InventorySnapshot{}
	case model.EventLocateDecision:
		target = &model.LocateDecision{}
	case model.EventLimitUpdate:
		target = &model.LimitUpdate{}
	case model.EventAlertNotice:
		target = &model.AlertNotice{}
	case model.EventWorkflowTransition:
		target = &model.WorkflowTransition{}
	default:
		return nil, fmt.Errorf("unknown event type %q", t)
	}

	if err := json.Unmarshal(raw, target); err != nil {
		return nil, err
	}
	return target, nil
}

// Validate checks the invariants every handler must confirm before routing:
// required identifying fields present.
func (e Event) Validate() error {
	if e.EventID == "" {
		return fmt.Errorf("event: missing eventId")
	}
	if e.EventTime <= 0 {
		return fmt.Errorf("event: non-positive eventTime")
	}
	if e.Payload == nil {
		return fmt.Errorf("event: missing payload")
	}
	return nil
}
