// Package types defines shared data structures used across all packages.
//
// This is the common vocabulary for the engine — order sides, statuses,
// the Order and Execution records, and venue/session identifiers. It has
// no dependency on any internal package so it can be imported by any layer.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side is the direction of an order: Buy or Sell.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// FIXTag renders the side as FIX tag 54 value.
func (s Side) FIXTag() string {
	if s == Buy {
		return "1"
	}
	return "2"
}

// SideFromFIXTag parses FIX tag 54.
func SideFromFIXTag(v string) Side {
	if v == "1" {
		return Buy
	}
	return Sell
}

// OrdType enumerates the supported order types (FIX tag 40).
type OrdType string

const (
	OrdTypeMarket    OrdType = "MARKET"
	OrdTypeLimit     OrdType = "LIMIT"
	OrdTypeStop      OrdType = "STOP"
	OrdTypeStopLimit OrdType = "STOP_LIMIT"
)

// FIXTag renders the order type as FIX tag 40 value.
func (t OrdType) FIXTag() string {
	switch t {
	case OrdTypeMarket:
		return "1"
	case OrdTypeLimit:
		return "2"
	case OrdTypeStop:
		return "3"
	case OrdTypeStopLimit:
		return "4"
	default:
		return "2"
	}
}

// TimeInForce enumerates order lifetimes (FIX tag 59).
type TimeInForce string

const (
	TIFDay TimeInForce = "DAY"
	TIFGTC TimeInForce = "GTC"
	TIFOPG TimeInForce = "OPG"
	TIFIOC TimeInForce = "IOC"
	TIFFOK TimeInForce = "FOK"
	TIFGTD TimeInForce = "GTD"
)

// FIXTag renders the time-in-force as FIX tag 59 value.
func (t TimeInForce) FIXTag() string {
	switch t {
	case TIFDay:
		return "0"
	case TIFGTC:
		return "1"
	case TIFOPG:
		return "2"
	case TIFIOC:
		return "3"
	case TIFFOK:
		return "4"
	case TIFGTD:
		return "6"
	default:
		return "0"
	}
}

// OrdStatus is the order's lifecycle state, per the state machine in the
// order manager. Terminal states are absorbing: Filled, Canceled, Rejected,
// Expired.
type OrdStatus string

const (
	StatusPendingNew     OrdStatus = "PENDING_NEW"
	StatusNew            OrdStatus = "NEW"
	StatusPartiallyFill  OrdStatus = "PARTIALLY_FILLED"
	StatusFilled         OrdStatus = "FILLED"
	StatusPendingCancel  OrdStatus = "PENDING_CANCEL"
	StatusCanceled       OrdStatus = "CANCELED"
	StatusPendingReplace OrdStatus = "PENDING_REPLACE"
	StatusReplaced       OrdStatus = "REPLACED"
	StatusRejected       OrdStatus = "REJECTED"
	StatusExpired        OrdStatus = "EXPIRED"
	StatusUnknown        OrdStatus = "UNKNOWN"
)

// Terminal reports whether the status is absorbing.
func (s OrdStatus) Terminal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusRejected, StatusExpired:
		return true
	default:
		return false
	}
}

// OrdStatusFromFIXTag maps FIX tag 39 (OrdStatus) to the engine's status.
func OrdStatusFromFIXTag(v string) OrdStatus {
	switch v {
	case "0":
		return StatusNew
	case "1":
		return StatusPartiallyFill
	case "2":
		return StatusFilled
	case "4":
		return StatusCanceled
	case "5":
		return StatusReplaced
	case "6":
		return StatusPendingCancel
	case "8":
		return StatusRejected
	case "A":
		return StatusPendingNew
	case "E":
		return StatusPendingReplace
	default:
		return StatusUnknown
	}
}

// ExecType is the category of an execution report (FIX tag 150).
type ExecType string

const (
	ExecNew       ExecType = "NEW"
	ExecPartial   ExecType = "PARTIAL_FILL"
	ExecTrade     ExecType = "TRADE"
	ExecCanceled  ExecType = "CANCELED"
	ExecRejected  ExecType = "REJECTED"
	ExecReplaced  ExecType = "REPLACED"
	ExecExpired   ExecType = "EXPIRED"
	ExecUnknown   ExecType = "UNKNOWN"
)

// ExecTypeFromFIXTag maps FIX tag 150 to ExecType.
func ExecTypeFromFIXTag(v string) ExecType {
	switch v {
	case "0":
		return ExecNew
	case "1":
		return ExecPartial
	case "F":
		return ExecTrade
	case "4":
		return ExecCanceled
	case "8":
		return ExecRejected
	case "5":
		return ExecReplaced
	case "C":
		return ExecExpired
	default:
		return ExecUnknown
	}
}

// ————————————————————————————————————————————————————————————————————————
// Orders and executions
// ————————————————————————————————————————————————————————————————————————

// Order is the engine's view of one order submission. ClOrdID is chosen by
// the order manager and is unique per session for the life of the process.
type Order struct {
	ClOrdID     string
	OrigClOrdID string // set on replace/cancel requests, tag 41
	VenueOrdID  string // assigned by the first execution report, tag 37

	Symbol    string
	Side      Side
	OrdType   OrdType
	TIF       TimeInForce

	OrigQty  decimal.Decimal
	FilledQty decimal.Decimal
	LeavesQty decimal.Decimal
	AvgPx     decimal.Decimal

	LimitPrice decimal.Decimal
	StopPrice  decimal.Decimal
	ExpireTime time.Time

	Status OrdStatus

	AlgorithmID      string
	TradingCapacity  string

	SessionID string // which session this order was routed to

	CreatedAt    time.Time
	LastUpdateAt time.Time
}

// Execution is an immutable record of one execution report event.
type Execution struct {
	ExecID      string
	ClOrdID     string
	VenueOrdID  string
	ExecType    ExecType
	LastQty     decimal.Decimal
	LastPx      decimal.Decimal
	CumQty      decimal.Decimal
	AvgPx       decimal.Decimal
	ExecTime    time.Time
	HWTimestamp int64 // monotonic nanoseconds, never rendered to the wire
}

// NewOrderRequest is the caller-facing request to submit_order. ClOrdID
// may be left blank to let the order manager generate one.
type NewOrderRequest struct {
	ClOrdID    string
	Symbol     string
	Side       Side
	OrdType    OrdType
	TIF        TimeInForce
	Qty        decimal.Decimal
	LimitPrice decimal.Decimal
	StopPrice  decimal.Decimal
	ExpireTime time.Time

	AlgorithmID     string
	TradingCapacity string

	// Venue optionally pins the request to a specific session ID; empty
	// lets the routing engine's selector choose.
	Venue string
}

// ReplaceRequest is the caller-facing request to replace_order.
type ReplaceRequest struct {
	OrigClOrdID   string
	NewQty        decimal.Decimal
	NewLimitPrice decimal.Decimal
	StopPrice     decimal.Decimal
	TIF           TimeInForce
}

// ————————————————————————————————————————————————————————————————————————
// Market data
// ————————————————————————————————————————————————————————————————————————

// MDEntryType enumerates market-data entry kinds (FIX tag 269).
type MDEntryType string

const (
	MDBid   MDEntryType = "BID"
	MDOffer MDEntryType = "OFFER"
	MDTrade MDEntryType = "TRADE"
)

// FIXTag renders the entry type as FIX tag 269 value.
func (t MDEntryType) FIXTag() string {
	switch t {
	case MDBid:
		return "0"
	case MDOffer:
		return "1"
	case MDTrade:
		return "2"
	default:
		return "0"
	}
}

// PriceLevel is a single bid or ask level.
type PriceLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// NormalizedUpdate is the normalized view of a symbol's top of book plus
// last trade, delivered to market-data subscribers after a snapshot or
// incremental refresh is applied.
type NormalizedUpdate struct {
	Symbol    string
	BidPrice  decimal.Decimal
	BidSize   decimal.Decimal
	AskPrice  decimal.Decimal
	AskSize   decimal.Decimal
	LastPrice decimal.Decimal
	LastSize  decimal.Decimal
	Timestamp time.Time
}

// ————————————————————————————————————————————————————————————————————————
// Venue / session status
// ————————————————————————————————————————————————————————————————————————

// VenueStatus is a point-in-time health view of one session, surfaced by
// venue_statuses().
type VenueStatus struct {
	SessionID   string
	Connected   bool
	Phase       string
	LastMessage string
	ErrorRate   float64
	Healthy     bool
}
