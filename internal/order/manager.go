// Package order implements the per-venue order state machine (component
// C4): pre-send validation, New/Cancel/Replace message construction,
// execution-report processing, and mass cancel.
//
// The active-order bookkeeping mirrors the teacher's maker strategy: a
// map of outstanding orders reconciled against venue responses. Fill
// state is held in decimal.Decimal and taken from the CumQty/AvgPx the
// venue reports; the manager does not compute a running average itself.
package order

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"fixengine/internal/clock"
	"fixengine/internal/errs"
	"fixengine/internal/fix"
	"fixengine/internal/pool"
	"fixengine/pkg/types"
)

// Sender is the narrow session capability the order manager depends on,
// letting it stay decoupled from the session package's connection and
// reconnect machinery.
type Sender interface {
	Send(msgType string, fields []pool.Field) error
	SessionID() string
}

// PendingNewTimeout is the default window after which an order stuck in
// PendingNew (no acknowledging ExecutionReport arrived) is marked locally
// Rejected without ever having been confirmed by the venue.
const PendingNewTimeout = 10 * time.Minute

// completedCapacity bounds the audit ring buffer of terminal orders.
const completedCapacity = 10000

// Manager owns every order routed through one session.
type Manager struct {
	sender Sender
	clock  clock.Clock
	logger *slog.Logger

	mu       sync.RWMutex
	active   map[string]*types.Order // ClOrdID -> order
	byVenue  map[string]string       // VenueOrdID -> ClOrdID, non-owning index

	completedMu sync.Mutex
	completed   []types.Order
	completedAt int // ring buffer write cursor

	clOrdSeq uint64
}

// New creates an order manager bound to a single session.
func New(sender Sender, c clock.Clock, logger *slog.Logger) *Manager {
	return &Manager{
		sender:  sender,
		clock:   c,
		logger:  logger.With("component", "order", "session", sender.SessionID()),
		active:  make(map[string]*types.Order),
		byVenue: make(map[string]string),
	}
}

// nextClOrdID generates a unique client order id when the caller leaves
// NewOrderRequest.ClOrdID blank.
func (m *Manager) nextClOrdID() string {
	m.clOrdSeq++
	return fmt.Sprintf("%s-%d-%d", m.sender.SessionID(), m.clock.Monotonic(), m.clOrdSeq)
}

// Submit validates req, builds and sends a NewOrderSingle, and registers
// the order in PendingNew.
func (m *Manager) Submit(req types.NewOrderRequest) (*types.Order, error) {
	if err := validateNewOrder(req); err != nil {
		return nil, err
	}

	m.mu.Lock()
	clOrdID := req.ClOrdID
	if clOrdID == "" {
		clOrdID = m.nextClOrdID()
	}
	if _, exists := m.active[clOrdID]; exists {
		m.mu.Unlock()
		return nil, errs.New(errs.Validation, "duplicate ClOrdID %q", clOrdID)
	}

	now := m.clock.Now()
	ord := &types.Order{
		ClOrdID:     clOrdID,
		Symbol:      req.Symbol,
		Side:        req.Side,
		OrdType:     req.OrdType,
		TIF:         req.TIF,
		OrigQty:     req.Qty,
		LeavesQty:   req.Qty,
		LimitPrice:  req.LimitPrice,
		StopPrice:   req.StopPrice,
		ExpireTime:  req.ExpireTime,
		Status:      types.StatusPendingNew,
		SessionID:   m.sender.SessionID(),
		CreatedAt:   now,
		LastUpdateAt: now,
	}
	m.active[clOrdID] = ord
	m.mu.Unlock()

	fields := newOrderFields(ord, now)
	if err := m.sender.Send(fix.MsgTypeNewOrderSingle, fields); err != nil {
		m.mu.Lock()
		ord.Status = types.StatusRejected
		delete(m.active, clOrdID)
		m.mu.Unlock()
		return nil, err
	}
	return ord, nil
}

func newOrderFields(ord *types.Order, transactTime time.Time) []pool.Field {
	fields := []pool.Field{
		{Tag: fix.TagClOrdID, Value: []byte(ord.ClOrdID)},
		{Tag: fix.TagHandlInst, Value: []byte("1")},
		{Tag: fix.TagSymbol, Value: []byte(ord.Symbol)},
		{Tag: fix.TagSide, Value: []byte(ord.Side.FIXTag())},
		{Tag: fix.TagTransactTime, Value: []byte(clock.FormatSendingTime(transactTime))},
		{Tag: fix.TagOrdType, Value: []byte(ord.OrdType.FIXTag())},
		{Tag: fix.TagOrderQty, Value: []byte(ord.OrigQty.String())},
	}
	if ord.OrdType == types.OrdTypeLimit || ord.OrdType == types.OrdTypeStopLimit {
		fields = append(fields, pool.Field{Tag: fix.TagPrice, Value: []byte(ord.LimitPrice.String())})
	}
	if ord.OrdType == types.OrdTypeStop || ord.OrdType == types.OrdTypeStopLimit {
		fields = append(fields, pool.Field{Tag: fix.TagStopPx, Value: []byte(ord.StopPrice.String())})
	}
	fields = append(fields, pool.Field{Tag: fix.TagTimeInForce, Value: []byte(ord.TIF.FIXTag())})
	if ord.TIF == types.TIFGTD {
		fields = append(fields, pool.Field{Tag: fix.TagExpireTime, Value: []byte(clock.FormatSendingTime(ord.ExpireTime))})
	}
	return fields
}

func validateNewOrder(req types.NewOrderRequest) error {
	if req.Symbol == "" {
		return errs.New(errs.Validation, "symbol is required")
	}
	if req.Qty.LessThanOrEqual(decimal.Zero) {
		return errs.New(errs.Validation, "order quantity must be positive")
	}
	if (req.OrdType == types.OrdTypeLimit || req.OrdType == types.OrdTypeStopLimit) && req.LimitPrice.LessThanOrEqual(decimal.Zero) {
		return errs.New(errs.Validation, "limit price must be positive for %v orders", req.OrdType)
	}
	if (req.OrdType == types.OrdTypeStop || req.OrdType == types.OrdTypeStopLimit) && req.StopPrice.LessThanOrEqual(decimal.Zero) {
		return errs.New(errs.Validation, "stop price must be positive for %v orders", req.OrdType)
	}
	if req.TIF == types.TIFGTD && req.ExpireTime.IsZero() {
		return errs.New(errs.Validation, "expire time is required for GTD orders")
	}
	return nil
}

// Cancel requests cancellation of an active order.
func (m *Manager) Cancel(clOrdID string) error {
	m.mu.Lock()
	ord, ok := m.active[clOrdID]
	if !ok {
		m.mu.Unlock()
		return errs.New(errs.Validation, "unknown ClOrdID %q", clOrdID)
	}
	if ord.Status.Terminal() {
		m.mu.Unlock()
		return errs.New(errs.Validation, "order %q already in terminal state %v", clOrdID, ord.Status)
	}
	cancelID := m.nextClOrdID()
	now := m.clock.Now()
	ord.OrigClOrdID = clOrdID
	ord.Status = types.StatusPendingCancel
	ord.LastUpdateAt = now
	m.mu.Unlock()

	fields := []pool.Field{
		{Tag: fix.TagClOrdID, Value: []byte(cancelID)},
		{Tag: fix.TagOrigClOrdID, Value: []byte(clOrdID)},
		{Tag: fix.TagSymbol, Value: []byte(ord.Symbol)},
		{Tag: fix.TagSide, Value: []byte(ord.Side.FIXTag())},
		{Tag: fix.TagTransactTime, Value: []byte(clock.FormatSendingTime(now))},
	}
	return m.sender.Send(fix.MsgTypeOrderCancelRequest, fields)
}

// Replace requests a quantity/price amendment of an active order.
func (m *Manager) Replace(req types.ReplaceRequest) error {
	m.mu.Lock()
	ord, ok := m.active[req.OrigClOrdID]
	if !ok {
		m.mu.Unlock()
		return errs.New(errs.Validation, "unknown ClOrdID %q", req.OrigClOrdID)
	}
	if ord.Status.Terminal() {
		m.mu.Unlock()
		return errs.New(errs.Validation, "order %q already in terminal state %v", req.OrigClOrdID, ord.Status)
	}
	newClOrdID := m.nextClOrdID()
	now := m.clock.Now()
	ord.OrigClOrdID = req.OrigClOrdID
	ord.Status = types.StatusPendingReplace
	ord.LastUpdateAt = now
	m.mu.Unlock()

	fields := []pool.Field{
		{Tag: fix.TagClOrdID, Value: []byte(newClOrdID)},
		{Tag: fix.TagOrigClOrdID, Value: []byte(req.OrigClOrdID)},
		{Tag: fix.TagSymbol, Value: []byte(ord.Symbol)},
		{Tag: fix.TagSide, Value: []byte(ord.Side.FIXTag())},
		{Tag: fix.TagTransactTime, Value: []byte(clock.FormatSendingTime(now))},
		{Tag: fix.TagOrdType, Value: []byte(ord.OrdType.FIXTag())},
		{Tag: fix.TagOrderQty, Value: []byte(req.NewQty.String())},
	}
	if !req.NewLimitPrice.IsZero() {
		fields = append(fields, pool.Field{Tag: fix.TagPrice, Value: []byte(req.NewLimitPrice.String())})
	}
	return m.sender.Send(fix.MsgTypeOrderCancelReplace, fields)
}

// MassCancel cancels every active order, optionally restricted to symbol.
// An empty symbol requests cancellation of all orders (tag 530 = 1); a
// non-empty symbol requests cancel-by-symbol (tag 530 = 7).
func (m *Manager) MassCancel(symbol string) error {
	now := m.clock.Now()
	requestType := "1"
	fields := []pool.Field{
		{Tag: fix.TagClOrdID, Value: []byte(m.nextClOrdID())},
		{Tag: fix.TagTransactTime, Value: []byte(clock.FormatSendingTime(now))},
	}
	if symbol != "" {
		requestType = "7"
		fields = append(fields, pool.Field{Tag: fix.TagSymbol, Value: []byte(symbol)})
	}
	fields = append([]pool.Field{{Tag: fix.TagMassCancelRequestType, Value: []byte(requestType)}}, fields...)
	return m.sender.Send(fix.MsgTypeOrderMassCancelRequest, fields)
}

// OnExecutionReport folds one inbound ExecutionReport into the order it
// references, following the processing steps: resolve the order by
// ClOrdID (falling back to the venue-order-id index for cases where the
// venue only echoes OrderID), apply the new OrdStatus, take CumQty/AvgPx
// from the report when present, and retire the order if the new status is
// terminal.
func (m *Manager) OnExecutionReport(msg fix.Message) (types.Order, bool) {
	clOrdID, _ := msg.Get(fix.TagClOrdID)
	venueOrdID, _ := msg.Get(fix.TagOrderID)

	m.mu.Lock()
	ord, ok := m.active[clOrdID]
	if !ok && venueOrdID != "" {
		if mapped, found := m.byVenue[venueOrdID]; found {
			ord, ok = m.active[mapped]
		}
	}
	if !ok {
		m.mu.Unlock()
		m.logger.Warn("execution report for unknown order", "clOrdID", clOrdID, "venueOrdID", venueOrdID)
		return types.Order{}, false
	}

	if venueOrdID != "" && ord.VenueOrdID == "" {
		ord.VenueOrdID = venueOrdID
		m.byVenue[venueOrdID] = ord.ClOrdID
	}

	statusTag, _ := msg.Get(fix.TagOrdStatus)
	ord.Status = types.OrdStatusFromFIXTag(statusTag)
	ord.LastUpdateAt = m.clock.Now()

	if cumQty, ok := decimalField(msg, fix.TagCumQty); ok {
		ord.FilledQty = cumQty
	}
	if avgPx, ok := decimalField(msg, fix.TagAvgPx); ok {
		ord.AvgPx = avgPx
	}
	// LeavesQty is always derived from the order's own accounting, not
	// trusted from the wire: a venue may omit tag 151 entirely (as in a
	// plain partial fill) and an echoed value could disagree with CumQty.
	ord.LeavesQty = ord.OrigQty.Sub(ord.FilledQty)

	terminal := ord.Status.Terminal()
	if terminal {
		delete(m.active, ord.ClOrdID)
		if ord.VenueOrdID != "" {
			delete(m.byVenue, ord.VenueOrdID)
		}
	}
	snapshot := *ord
	m.mu.Unlock()

	if terminal {
		m.recordCompleted(snapshot)
	}
	return snapshot, true
}

func decimalField(msg fix.Message, tag int) (decimal.Decimal, bool) {
	v, ok := msg.Get(tag)
	if !ok {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func (m *Manager) recordCompleted(ord types.Order) {
	m.completedMu.Lock()
	defer m.completedMu.Unlock()
	if len(m.completed) < completedCapacity {
		m.completed = append(m.completed, ord)
		return
	}
	m.completed[m.completedAt] = ord
	m.completedAt = (m.completedAt + 1) % completedCapacity
}

// Active returns a snapshot of every non-terminal order.
func (m *Manager) Active() []types.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Order, 0, len(m.active))
	for _, ord := range m.active {
		out = append(out, *ord)
	}
	return out
}

// SweepPendingNewTimeouts marks any order that has sat in PendingNew
// longer than timeout as locally Rejected, since no acknowledgment will
// ever arrive for it. It should be called periodically by the routing
// engine's housekeeping loop.
func (m *Manager) SweepPendingNewTimeouts(timeout time.Duration) {
	if timeout <= 0 {
		timeout = PendingNewTimeout
	}
	now := m.clock.Now()

	m.mu.Lock()
	var expired []types.Order
	for id, ord := range m.active {
		if ord.Status == types.StatusPendingNew && now.Sub(ord.CreatedAt) > timeout {
			ord.Status = types.StatusRejected
			ord.LastUpdateAt = now
			expired = append(expired, *ord)
			delete(m.active, id)
			if ord.VenueOrdID != "" {
				delete(m.byVenue, ord.VenueOrdID)
			}
		}
	}
	m.mu.Unlock()

	for _, ord := range expired {
		m.logger.Warn("order timed out in PendingNew, marking rejected locally", "clOrdID", ord.ClOrdID)
		m.recordCompleted(ord)
	}
}
