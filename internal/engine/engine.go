// Package engine is the central orchestrator of the FIX trading engine.
//
// It wires together all subsystems:
//
//  1. One Session per configured venue, each with its own order manager
//     and market-data manager.
//  2. A pluggable Selector chooses which healthy venue a new order or
//     subscription routes to (default: round robin).
//  3. A housekeeping loop sweeps PendingNew timeouts and refreshes the
//     venue error-rate and pool gauges. A venue rejoins the healthy set
//     once HealthCooldown has passed since its last disconnect.
//  4. Prometheus metrics and venue_statuses()/performance_metrics() feed
//     the operator dashboard.
//
// Lifecycle: New() → Initialize(ctx) → Run(ctx) → Drain(ctx).
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"fixengine/internal/clock"
	"fixengine/internal/errs"
	"fixengine/internal/fix"
	"fixengine/internal/marketdata"
	"fixengine/internal/order"
	"fixengine/internal/pool"
	"fixengine/internal/session"
	"fixengine/pkg/types"
)

// venueSlot bundles one session with its order and market-data managers.
type venueSlot struct {
	sess   *session.Session
	orders *order.Manager
	md     *marketdata.Manager

	lastErrorAt time.Time
}

// Config configures the engine and every venue it connects to.
type Config struct {
	Pool     pool.Config
	Sessions []session.Config

	// HealthCooldown is how long a venue must go without a transport
	// error before it rejoins the selector's healthy-candidate pool.
	HealthCooldown time.Duration // default 30s

	// HousekeepingInterval drives the PendingNew sweep and the venue
	// error-rate and pool gauge refresh. Default 5s.
	HousekeepingInterval time.Duration

	// PendingNewTimeout overrides order.PendingNewTimeout if non-zero.
	PendingNewTimeout time.Duration

	SequenceStore session.SequenceStore
	Selector      Selector
	Registerer    prometheus.Registerer
}

func (c Config) withDefaults() Config {
	if c.HealthCooldown <= 0 {
		c.HealthCooldown = 30 * time.Second
	}
	if c.HousekeepingInterval <= 0 {
		c.HousekeepingInterval = 5 * time.Second
	}
	if c.Selector == nil {
		c.Selector = &RoundRobin{}
	}
	if c.Registerer == nil {
		c.Registerer = prometheus.NewRegistry()
	}
	return c
}

// Engine orchestrates every venue session, its order flow, and its
// market data, behind a single caller-facing API.
type Engine struct {
	cfg     Config
	pool    *pool.Pool
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics

	slotsMu sync.RWMutex
	slots   map[string]*venueSlot

	onExecution   func(types.Order, fix.Message)
	onMarketData  func(types.NormalizedUpdate)
	onVenueStatus func(types.VenueStatus)
	onReject      func(fix.Message)

	ctx    context.Context
	cancel context.CancelFunc
}

// Callbacks lets the caller observe engine activity without polling.
type Callbacks struct {
	OnExecution   func(types.Order, fix.Message)
	OnMarketData  func(types.NormalizedUpdate)
	OnVenueStatus func(types.VenueStatus)
	OnReject      func(fix.Message)
}

// New wires sessions, order managers, and market-data managers for every
// configured venue. It does not connect anything; call Initialize for
// that.
func New(cfg Config, logger *slog.Logger, cb Callbacks) *Engine {
	cfg = cfg.withDefaults()

	e := &Engine{
		cfg:           cfg,
		pool:          pool.New(cfg.Pool),
		clock:         clock.System{},
		logger:        logger.With("component", "engine"),
		metrics:       newMetrics(cfg.Registerer),
		slots:         make(map[string]*venueSlot),
		onExecution:   cb.OnExecution,
		onMarketData:  cb.OnMarketData,
		onVenueStatus: cb.OnVenueStatus,
		onReject:      cb.OnReject,
	}

	for _, sc := range cfg.Sessions {
		e.addVenue(sc)
	}
	return e
}

func (e *Engine) addVenue(sc session.Config) {
	sessionID := sc.ID()

	sessCb := session.Callbacks{
		OnExecution:  func(m fix.Message) { e.handleExecution(sessionID, m) },
		OnMarketData: func(m fix.Message) { e.handleMarketData(sessionID, m) },
		OnReject: func(m fix.Message) {
			if e.onReject != nil {
				e.onReject(m)
			}
		},
		OnStatus: e.handleVenueStatus,
	}

	sess := session.New(sc, e.pool, e.clock, e.cfg.SequenceStore, sessCb, e.logger)
	slot := &venueSlot{sess: sess}
	slot.orders = order.New(sess, e.clock, e.logger)
	slot.md = marketdata.New(sess, e.clock, e.logger, func(u types.NormalizedUpdate) {
		if e.onMarketData != nil {
			e.onMarketData(u)
		}
	})

	e.slotsMu.Lock()
	e.slots[sessionID] = slot
	e.slotsMu.Unlock()
}

func (e *Engine) handleExecution(sessionID string, m fix.Message) {
	e.slotsMu.RLock()
	slot, ok := e.slots[sessionID]
	e.slotsMu.RUnlock()
	if !ok {
		return
	}

	ord, resolved := slot.orders.OnExecutionReport(m)
	execType, _ := m.Get(fix.TagExecType)
	e.metrics.executionsTotal.WithLabelValues(sessionID, string(types.ExecTypeFromFIXTag(execType))).Inc()

	if e.onExecution == nil || !resolved {
		return
	}
	e.onExecution(ord, m)
}

func (e *Engine) handleMarketData(sessionID string, m fix.Message) {
	e.slotsMu.RLock()
	slot, ok := e.slots[sessionID]
	e.slotsMu.RUnlock()
	if !ok {
		return
	}
	slot.md.OnMarketData(m)
}

func (e *Engine) handleVenueStatus(sessionID string, connected bool, message string) {
	e.metrics.venueConnected.WithLabelValues(sessionID).Set(boolToFloat(connected))
	if !connected {
		e.slotsMu.Lock()
		if slot, ok := e.slots[sessionID]; ok {
			slot.lastErrorAt = e.clock.Now()
		}
		e.slotsMu.Unlock()
	}
	e.logger.Info("venue status", "venue", sessionID, "connected", connected, "message", message)
	if e.onVenueStatus != nil {
		e.onVenueStatus(e.venueStatusOf(sessionID))
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Initialize connects every configured venue concurrently. It returns an
// error only if every venue failed to connect; per-venue failures are
// logged and left Faulted so the caller can still use the venues that
// succeeded (failure isolation).
func (e *Engine) Initialize(ctx context.Context) error {
	e.ctx, e.cancel = context.WithCancel(ctx)

	e.slotsMu.RLock()
	slots := make([]*venueSlot, 0, len(e.slots))
	for _, s := range e.slots {
		slots = append(slots, s)
	}
	e.slotsMu.RUnlock()

	var wg sync.WaitGroup
	results := make([]error, len(slots))
	for i, slot := range slots {
		wg.Add(1)
		go func(i int, s *venueSlot) {
			defer wg.Done()
			results[i] = s.sess.Connect(e.ctx)
		}(i, slot)
	}
	wg.Wait()

	connected := 0
	for i, err := range results {
		if err != nil {
			e.logger.Error("venue connect failed", "venue", slots[i].sess.SessionID(), "error", err)
			continue
		}
		connected++
	}
	if connected == 0 && len(slots) > 0 {
		return errs.New(errs.Transport, "no venue session connected")
	}
	return nil
}

// Run starts the housekeeping loop and blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.HousekeepingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.housekeep()
		}
	}
}

func (e *Engine) housekeep() {
	e.slotsMu.RLock()
	slots := make([]*venueSlot, 0, len(e.slots))
	for _, s := range e.slots {
		slots = append(slots, s)
	}
	e.slotsMu.RUnlock()

	for _, slot := range slots {
		slot.orders.SweepPendingNewTimeouts(e.cfg.PendingNewTimeout)
		e.metrics.venueErrorRate.WithLabelValues(slot.sess.SessionID()).Set(slot.sess.ErrorRate())
	}

	stats := e.pool.Stats()
	e.metrics.poolInUse.Set(float64(stats.InUse))
}

// Drain logs out of every venue, waits for acknowledgment or timeout, and
// stops the housekeeping loop.
func (e *Engine) Drain(ctx context.Context) {
	e.slotsMu.RLock()
	slots := make([]*venueSlot, 0, len(e.slots))
	for _, s := range e.slots {
		slots = append(slots, s)
	}
	e.slotsMu.RUnlock()

	var wg sync.WaitGroup
	for _, slot := range slots {
		wg.Add(1)
		go func(s *venueSlot) {
			defer wg.Done()
			s.sess.Disconnect(ctx)
		}(slot)
	}
	wg.Wait()

	if e.cancel != nil {
		e.cancel()
	}
}

// healthyVenues returns the session ids eligible for new routing
// decisions: LoggedOn and past the health cooldown since their last
// transport error.
func (e *Engine) healthyVenues() []string {
	now := e.clock.Now()
	e.slotsMu.RLock()
	defer e.slotsMu.RUnlock()

	var healthy []string
	for id, slot := range e.slots {
		if slot.sess.Phase() != session.LoggedOn {
			continue
		}
		if !slot.lastErrorAt.IsZero() && now.Sub(slot.lastErrorAt) < e.cfg.HealthCooldown {
			continue
		}
		healthy = append(healthy, id)
	}
	return healthy
}

// SubmitOrder routes req to req.Venue if set, or to the selector's choice
// among healthy venues otherwise.
func (e *Engine) SubmitOrder(req types.NewOrderRequest) (*types.Order, error) {
	slot, venueID, err := e.resolveVenue(req.Venue, req.Symbol)
	if err != nil {
		return nil, err
	}

	ord, err := slot.orders.Submit(req)
	if err != nil {
		e.metrics.ordersRejected.WithLabelValues(venueID).Inc()
		return nil, err
	}
	e.metrics.ordersSubmitted.WithLabelValues(venueID).Inc()
	return ord, nil
}

func (e *Engine) resolveVenue(requested, symbol string) (*venueSlot, string, error) {
	if requested != "" {
		e.slotsMu.RLock()
		slot, ok := e.slots[requested]
		e.slotsMu.RUnlock()
		if !ok {
			return nil, "", errs.New(errs.Routing, "unknown venue %q", requested)
		}
		return slot, requested, nil
	}

	candidates := e.healthyVenues()
	if len(candidates) == 0 {
		return nil, "", errs.New(errs.Routing, "no healthy venue available")
	}
	chosen := e.cfg.Selector.Select(symbol, candidates)

	e.slotsMu.RLock()
	slot := e.slots[chosen]
	e.slotsMu.RUnlock()
	return slot, chosen, nil
}

// CancelOrder cancels an order on the venue it was routed to.
func (e *Engine) CancelOrder(venue, clOrdID string) error {
	e.slotsMu.RLock()
	slot, ok := e.slots[venue]
	e.slotsMu.RUnlock()
	if !ok {
		return errs.New(errs.Routing, "unknown venue %q", venue)
	}
	return slot.orders.Cancel(clOrdID)
}

// ReplaceOrder amends an order on the venue it was routed to.
func (e *Engine) ReplaceOrder(venue string, req types.ReplaceRequest) error {
	e.slotsMu.RLock()
	slot, ok := e.slots[venue]
	e.slotsMu.RUnlock()
	if !ok {
		return errs.New(errs.Routing, "unknown venue %q", venue)
	}
	return slot.orders.Replace(req)
}

// SubscribeMarketData subscribes to symbol on the named venue, or a
// selector-chosen healthy venue if venue is empty.
func (e *Engine) SubscribeMarketData(venue, symbol string, depth int) (reqID string, resolvedVenue string, err error) {
	slot, chosen, err := e.resolveVenue(venue, symbol)
	if err != nil {
		return "", "", err
	}
	reqID, err = slot.md.Subscribe(symbol, depth)
	return reqID, chosen, err
}

// UnsubscribeMarketData cancels a subscription on the named venue.
func (e *Engine) UnsubscribeMarketData(venue, reqID string) error {
	e.slotsMu.RLock()
	slot, ok := e.slots[venue]
	e.slotsMu.RUnlock()
	if !ok {
		return errs.New(errs.Routing, "unknown venue %q", venue)
	}
	return slot.md.Unsubscribe(reqID)
}

// VenueStatuses returns a point-in-time health view of every venue.
func (e *Engine) VenueStatuses() []types.VenueStatus {
	e.slotsMu.RLock()
	ids := make([]string, 0, len(e.slots))
	for id := range e.slots {
		ids = append(ids, id)
	}
	e.slotsMu.RUnlock()

	out := make([]types.VenueStatus, 0, len(ids))
	for _, id := range ids {
		out = append(out, e.venueStatusOf(id))
	}
	return out
}

func (e *Engine) venueStatusOf(sessionID string) types.VenueStatus {
	e.slotsMu.RLock()
	slot, ok := e.slots[sessionID]
	e.slotsMu.RUnlock()
	if !ok {
		return types.VenueStatus{SessionID: sessionID}
	}
	phase := slot.sess.Phase()
	errRate := slot.sess.ErrorRate()
	return types.VenueStatus{
		SessionID: sessionID,
		Connected: phase == session.LoggedOn,
		Phase:     phase.String(),
		ErrorRate: errRate,
		Healthy:   phase == session.LoggedOn && errRate == 0,
	}
}

// PerformanceMetrics summarizes pool and venue health for the dashboard.
// The authoritative time series live in the Prometheus registry passed
// into Config.
type PerformanceMetrics struct {
	PoolStats    pool.Stats
	VenueCount   int
	HealthyCount int
}

// PerformanceMetrics returns a point-in-time snapshot.
func (e *Engine) PerformanceMetrics() PerformanceMetrics {
	e.slotsMu.RLock()
	total := len(e.slots)
	e.slotsMu.RUnlock()

	return PerformanceMetrics{
		PoolStats:    e.pool.Stats(),
		VenueCount:   total,
		HealthyCount: len(e.healthyVenues()),
	}
}
