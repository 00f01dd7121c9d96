// Package wire defines the JSON message envelope exchanged with clients
// and the mapping from a decoded domain Event to its outbound messageType.
package wire

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/galatea-ims/event-hub/internal/domain/event"
	"github.com/galatea-ims/event-hub/internal/domain/model"
	"github.com/google/uuid"
)

// MessageType is the closed set of server- and client-initiated message
// discriminators.
type MessageType string

const (
	MessageConnectionAck         MessageType = "CONNECTION_ACK"
	MessageSubscriptionConfirmed MessageType = "SUBSCRIPTION_CONFIRMED"
	MessagePositionUpdate        MessageType = "POSITION_UPDATE"
	MessageReferenceDataUpdate   MessageType = "REFERENCE_DATA_UPDATE"
	MessageMarketDataTick        MessageType = "MARKET_DATA_TICK"
	MessageSettlementLadder      MessageType = "SETTLEMENT_LADDER_UPDATE"
	MessageInventoryForLoan      MessageType = "INVENTORY_FOR_LOAN"
	MessageInventoryForPledge    MessageType = "INVENTORY_FOR_PLEDGE"
	MessageInventoryShortSell    MessageType = "INVENTORY_SHORT_SELL"
	MessageInventoryLocate       MessageType = "INVENTORY_LOCATE"
	MessageInventoryOverborrow   MessageType = "INVENTORY_OVERBORROW"
	MessageLocateRequest         MessageType = "LOCATE_REQUEST"
	MessageLocateApproval        MessageType = "LOCATE_APPROVAL"
	MessageLocateRejection       MessageType = "LOCATE_REJECTION"
	MessageLocateCancellation    MessageType = "LOCATE_CANCELLATION"
	MessageLocateExpiry          MessageType = "LOCATE_EXPIRY"
	MessageWorkflowTransition    MessageType = "WORKFLOW_TRANSITION"
	MessageLimitUpdate           MessageType = "LIMIT_UPDATE"
	MessageAlert                 MessageType = "ALERT"
	MessagePong                  MessageType = "PONG"
	MessageError                 MessageType = "ERROR"

	// Inbound-only.
	MessagePing MessageType = "PING"
)

// ErrorCode is the closed set of ERROR payload codes.
type ErrorCode string

const (
	ErrorAuthFailed             ErrorCode = "AUTH_FAILED"
	ErrorMessageParsing         ErrorCode = "MESSAGE_PARSING_ERROR"
	ErrorUnsupportedMessageType ErrorCode = "UNSUPPORTED_MESSAGE_TYPE"
	ErrorChannelNotAuthorized   ErrorCode = "CHANNEL_NOT_AUTHORIZED"
)

// Envelope is the outer JSON frame every server message is wrapped in.
type Envelope struct {
	MessageID     string      `json:"messageId"`
	MessageType   MessageType `json:"messageType"`
	Timestamp     int64       `json:"timestamp"`
	CorrelationID string      `json:"correlationId,omitempty"`
	Payload       any         `json:"payload,omitempty"`
}

// InboundMessage is the envelope a client sends; Payload stays raw until
// the message type selects its shape.
type InboundMessage struct {
	MessageType MessageType     `json:"messageType"`
	Payload     json.RawMessage `json:"payload"`
}

// SubscribePayload is the filter-field tuple carried by SUBSCRIBE_<CHANNEL>
// and UNSUBSCRIBE_<CHANNEL> messages.
type SubscribePayload map[string]string

// BuildEnvelope serializes e into the wire Envelope the Dispatcher sends
// once per event. The serialized bytes are immutable and safely shared by
// every enqueuing worker.
func BuildEnvelope(e event.Event, now time.Time) ([]byte, error) {
	msgType, err := messageTypeFor(e)
	if err != nil {
		return nil, err
	}

	env := Envelope{
		MessageID:     uuid.NewString(),
		MessageType:   msgType,
		Timestamp:     now.UnixMilli(),
		CorrelationID: e.CorrelationID,
		Payload:       e.Payload,
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal envelope: %w", err)
	}
	return data, nil
}

// messageTypeFor derives the client-facing messageType from the event's
// type and, for families whose wire vocabulary is finer than the log's
// eventType, from a payload sub-field: the server-initiated vocabulary
// distinguishes INVENTORY_FOR_LOAN/FOR_PLEDGE/SHORT_SELL/LOCATE/OVERBORROW
// from one INVENTORY_SNAPSHOT eventType, and LOCATE_REQUEST/APPROVAL/
// REJECTION/CANCELLATION/EXPIRY from one LOCATE_DECISION eventType.
func messageTypeFor(e event.Event) (MessageType, error) {
	switch p := e.Payload.(type) {
	case *model.PositionSnapshot:
		return MessagePositionUpdate, nil
	case *model.ReferenceDataUpdate:
		return MessageReferenceDataUpdate, nil
	case *model.MarketDataTick:
		return MessageMarketDataTick, nil
	case *model.InventorySnapshot:
		return inventoryMessageType(p.CalcType)
	case *model.LocateDecision:
		return locateMessageType(p.Status)
	case *model.LimitUpdate:
		return MessageLimitUpdate, nil
	case *model.AlertNotice:
		return MessageAlert, nil
	case *model.WorkflowTransition:
		return MessageWorkflowTransition, nil
	default:
		return "", fmt.Errorf("wire: no messageType mapping for payload type %T", p)
	}
}

func inventoryMessageType(calcType string) (MessageType, error) {
	switch calcType {
	case "FOR_LOAN":
		return MessageInventoryForLoan, nil
	case "FOR_PLEDGE":
		return MessageInventoryForPledge, nil
	case "SHORT_SELL":
		return MessageInventoryShortSell, nil
	case "LOCATE":
		return MessageInventoryLocate, nil
	case "OVERBORROW":
		return MessageInventoryOverborrow, nil
	default:
		return "", fmt.Errorf("wire: unknown inventory calcType %q", calcType)
	}
}

func locateMessageType(status string) (MessageType, error) {
	switch status {
	case "REQUESTED":
		return MessageLocateRequest, nil
	case "APPROVED":
		return MessageLocateApproval, nil
	case "REJECTED":
		return MessageLocateRejection, nil
	case "CANCELLED":
		return MessageLocateCancellation, nil
	case "EXPIRED":
		return MessageLocateExpiry, nil
	default:
		return "", fmt.Errorf("wire: unknown locate status %q", status)
	}
}
