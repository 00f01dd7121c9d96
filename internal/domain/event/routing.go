package event

import (
	"fmt"

	"github.com/galatea-ims/event-hub/internal/domain/model"
)

// Channel returns the logical channel an event belongs to.
// ReferenceData and MarketData are routing-only inputs to handler enrichment
// in the full system and are not delivered on a dedicated client channel in
// this core; they are classified onto "positions" (reference data informs
// position display) purely so the router's dispatch table stays total.
func (e Event) Channel() model.Channel {
	switch e.EventType {
	case model.EventPositionSnapshot, model.EventReferenceDataUpdate, model.EventMarketDataTick:
		return model.ChannelPositions
	case model.EventInventorySnapshot:
		return model.ChannelInventory
	case model.EventLocateDecision, model.EventWorkflowTransition:
		return model.ChannelLocates
	case model.EventLimitUpdate:
		return model.ChannelPositions
	case model.EventAlertNotice:
		return model.ChannelAlerts
	default:
		return ""
	}
}

// RoutingKeys computes the routing-key set a conforming subscription on this
// event's channel would need to match it.
func (e Event) RoutingKeys() ([]string, error) {
	switch p := e.Payload.(type) {
	case *model.PositionSnapshot:
		return model.CombineKeys(
			model.KV{Name: "book", Value: p.BookID},
			model.KV{Name: "security", Value: p.SecurityID},
			model.KV{Name: "date", Value: p.Date},
		), nil

	case *model.ReferenceDataUpdate:
		return model.CombineKeys(
			model.KV{Name: "book", Value: p.BookID},
			model.KV{Name: "security", Value: p.SecurityID},
		), nil

	case *model.MarketDataTick:
		return model.CombineKeys(
			model.KV{Name: "security", Value: p.SecurityID},
		), nil

	case *model.InventorySnapshot:
		return model.CombineKeys(
			model.KV{Name: "security", Value: p.SecurityID},
			model.KV{Name: "type", Value: p.CalcType},
			model.KV{Name: "date", Value: p.Date},
		), nil

	case *model.LocateDecision:
		return model.SingleKeys(
			model.KV{Name: "securityId", Value: p.SecurityID},
			model.KV{Name: "clientId", Value: p.ClientID},
			model.KV{Name: "status", Value: p.Status},
		), nil

	case *model.WorkflowTransition:
		// Workflow shares Locate's single-field shape, keyed on workflow id
		// and resulting state.
		return model.SingleKeys(
			model.KV{Name: "workflowId", Value: p.WorkflowID},
			model.KV{Name: "status", Value: p.ToState},
		), nil

	case *model.LimitUpdate:
		return model.CombineKeys(
			model.KV{Name: "book", Value: p.BookID},
			model.KV{Name: "security", Value: p.SecurityID},
		), nil

	case *model.AlertNotice:
		return model.SingleKeys(
			model.KV{Name: "severity", Value: p.Severity},
			model.KV{Name: "category", Value: p.Category},
		), nil

	default:
		return nil, fmt.Errorf("event: no routing rule for payload type %T", p)
	}
}
