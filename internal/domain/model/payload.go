package model

// EventType is the closed-set discriminator carried on the wire.
type EventType string

const (
	EventReferenceDataUpdate EventType = "REFERENCE_DATA_UPDATE"
	EventMarketDataTick      EventType = "MARKET_DATA_TICK"
	EventPositionSnapshot    EventType = "POSITION_SNAPSHOT"
	EventInventorySnapshot   EventType = "INVENTORY_SNAPSHOT"
	EventLocateDecision      EventType = "LOCATE_DECISION"
	EventLimitUpdate         EventType = "LIMIT_UPDATE"
	EventAlertNotice         EventType = "ALERT_NOTICE"
	EventWorkflowTransition  EventType = "WORKFLOW_TRANSITION"
)

// ReferenceDataUpdate carries static/reference data changes (security master,
// book definitions, ...). Routing follows the Position family's combining
// rule over book/security (it carries no date).
type ReferenceDataUpdate struct {
	SecurityID string `json:"securityId"`
	BookID     string `json:"bookId,omitempty"`
	Field      string `json:"field"`
	Value      string `json:"value"`
}

// MarketDataTick is a price/quote update for a security.
type MarketDataTick struct {
	SecurityID string  `json:"securityId"`
	Price      float64 `json:"price"`
	Size       int64   `json:"size"`
}

// PositionSnapshot is a point-in-time position for (book, security, date).
type PositionSnapshot struct {
	BookID     string  `json:"bookId"`
	SecurityID string  `json:"securityId"`
	Date       string  `json:"date"`
	Quantity   float64 `json:"quantity"`
	SettledQty float64 `json:"settledQty"`
}

// InventorySnapshot is an inventory calculation result.
type InventorySnapshot struct {
	SecurityID string  `json:"securityId"`
	CalcType   string  `json:"calcType"`
	Date       string  `json:"date"`
	Available  float64 `json:"available"`
	Encumbered float64 `json:"encumbered"`
}

// LocateDecision represents a locate request/approval/rejection/cancellation/expiry.
type LocateDecision struct {
	LocateID   string  `json:"locateId"`
	SecurityID string  `json:"securityId"`
	ClientID   string  `json:"clientId"`
	Status     string  `json:"status"` // REQUESTED | APPROVED | REJECTED | CANCELLED | EXPIRED
	Quantity   float64 `json:"quantity"`
}

// LimitUpdate carries a change to a book/security risk limit.
type LimitUpdate struct {
	BookID     string  `json:"bookId"`
	SecurityID string  `json:"securityId"`
	LimitType  string  `json:"limitType"`
	NewValue   float64 `json:"newValue"`
}

// AlertNotice is a system alert broadcast, optionally scoped by severity/category.
type AlertNotice struct {
	Severity string `json:"severity"`
	Category string `json:"category"`
	Message  string `json:"message"`
}

// WorkflowTransition describes an approval-workflow state change.
type WorkflowTransition struct {
	WorkflowID    string `json:"workflowId"`
	CorrelationID string `json:"correlationId"`
	FromState     string `json:"fromState"`
	ToState       string `json:"toState"`
}
