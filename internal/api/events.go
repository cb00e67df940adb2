package api

import (
	"time"

	"fixengine/internal/fix"
	"fixengine/pkg/types"
)

// EngineEvent is the wrapper for everything pushed to the dashboard
// WebSocket hub.
type EngineEvent struct {
	Type      string      `json:"type"` // "execution", "venue_status", "reject", "kill"
	Timestamp time.Time   `json:"timestamp"`
	Venue     string      `json:"venue,omitempty"`
	Data      interface{} `json:"data"`
}

// ExecutionEventData carries the fields an operator cares about from an
// order's current state after an execution report.
type ExecutionEventData struct {
	ClOrdID   string `json:"cl_ord_id"`
	VenueOrdID string `json:"venue_ord_id"`
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`
	Status    string `json:"status"`
	FilledQty string `json:"filled_qty"`
	LeavesQty string `json:"leaves_qty"`
	AvgPx     string `json:"avg_px"`
}

// VenueStatusEventData mirrors types.VenueStatus for a single venue change.
type VenueStatusEventData struct {
	Connected bool    `json:"connected"`
	Phase     string  `json:"phase"`
	Message   string  `json:"message,omitempty"`
	ErrorRate float64 `json:"error_rate"`
}

// RejectEventData surfaces a Reject(3) or OrderCancelReject(9) message's
// reason text without exposing raw FIX tags to the dashboard.
type RejectEventData struct {
	RefSeqNum int64  `json:"ref_seq_num,omitempty"`
	Text      string `json:"text,omitempty"`
}

// KillEventData is emitted when an operator or the engine itself halts
// routing to a venue.
type KillEventData struct {
	Venue   string `json:"venue"`
	Reason  string `json:"reason"`
	Details string `json:"details,omitempty"`
}

// NewExecutionEvent builds an execution event from a resolved order snapshot.
func NewExecutionEvent(venue string, ord types.Order) EngineEvent {
	return EngineEvent{
		Type:  "execution",
		Venue: venue,
		Data: ExecutionEventData{
			ClOrdID:    ord.ClOrdID,
			VenueOrdID: ord.VenueOrdID,
			Symbol:     ord.Symbol,
			Side:       string(ord.Side),
			Status:     string(ord.Status),
			FilledQty:  ord.FilledQty.String(),
			LeavesQty:  ord.LeavesQty.String(),
			AvgPx:      ord.AvgPx.String(),
		},
	}
}

// NewVenueStatusEvent builds a venue-status event from the callback the
// session layer fires on connect/disconnect/fault transitions.
func NewVenueStatusEvent(venue string, connected bool, message string, errorRate float64) EngineEvent {
	phase := "Disconnected"
	if connected {
		phase = "LoggedOn"
	}
	return EngineEvent{
		Type:  "venue_status",
		Venue: venue,
		Data: VenueStatusEventData{
			Connected: connected,
			Phase:     phase,
			Message:   message,
			ErrorRate: errorRate,
		},
	}
}

// NewRejectEvent builds a reject event from a raw Reject/OrderCancelReject message.
func NewRejectEvent(venue string, m fix.Message) EngineEvent {
	refSeq, _ := m.GetInt(45)
	text, _ := m.Get(fix.TagText)
	return EngineEvent{
		Type:  "reject",
		Venue: venue,
		Data: RejectEventData{
			RefSeqNum: refSeq,
			Text:      text,
		},
	}
}

// NewKillEvent builds a kill event for an operator-initiated or
// automatic venue shutdown.
func NewKillEvent(venue, reason, details string) EngineEvent {
	return EngineEvent{
		Type:  "kill",
		Venue: venue,
		Data: KillEventData{
			Venue:   venue,
			Reason:  reason,
			Details: details,
		},
	}
}
