// Package session implements the FIX session layer (component C3): one
// TCP/TLS transport, sequence-number discipline, the logon/heartbeat/
// logout state machine, and per-session write serialization.
//
// The concurrency shape mirrors the teacher's WebSocket feed: a dedicated
// reader goroutine per connection and a mutex-guarded writer — generalized
// here from JSON-over-WS framing to FIX SOH framing and from a ping/pong
// protocol to FIX heartbeats and sequence-number gap-fill. A session does
// not reconnect on its own after a transport failure; it stays Faulted
// until Connect is called again.
package session

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"fixengine/internal/clock"
	"fixengine/internal/errs"
	"fixengine/internal/fix"
	"fixengine/internal/pool"
)

// Phase is the session's connection phase.
type Phase int

const (
	Disconnected Phase = iota
	Connecting
	LoggedOn
	LoggingOut
	Faulted
)

func (p Phase) String() string {
	switch p {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case LoggedOn:
		return "logged_on"
	case LoggingOut:
		return "logging_out"
	case Faulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// SequenceStore persists and restores outgoing/incoming sequence numbers
// across process restarts, per the sequence-persistence open question. A
// nil store means "always reset to 1 on logon."
type SequenceStore interface {
	Load(sessionID string) (outSeq, inSeq uint32, err error)
	Save(sessionID string, outSeq, inSeq uint32) error
}

// ReconnectPolicy holds capped exponential backoff settings for reconnects.
// It is carried in Config, but the session itself does not read it and
// performs no automatic reconnect.
type ReconnectPolicy struct {
	Enabled bool
	Initial time.Duration // default 1s
	Max     time.Duration // default 60s
	JitterPct float64     // default 0.20 (±20%)
}

func (r ReconnectPolicy) withDefaults() ReconnectPolicy {
	if r.Initial <= 0 {
		r.Initial = time.Second
	}
	if r.Max <= 0 {
		r.Max = 60 * time.Second
	}
	if r.JitterPct <= 0 {
		r.JitterPct = 0.20
	}
	return r
}

// Config configures one session.
type Config struct {
	SenderCompID string
	TargetCompID string
	Host         string
	Port         int

	UseTLS            bool
	TLSPeerName       string // expected peer hostname for verification
	PinnedFingerprint string // optional hex sha256 of the peer leaf certificate

	HeartBtInt   time.Duration // default 30s
	ResetOnLogon bool
	Reconnect    ReconnectPolicy

	ConnectTimeout time.Duration // default 30s
}

func (c Config) withDefaults() Config {
	if c.HeartBtInt <= 0 {
		c.HeartBtInt = 30 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 30 * time.Second
	}
	return c
}

// ID returns the composite session identifier (sender-comp-id + target-comp-id).
func (c Config) ID() string { return c.SenderCompID + "->" + c.TargetCompID }

// Callbacks are invoked on the session's reader goroutine; implementers
// must not perform blocking work inside them (§6).
type Callbacks struct {
	OnExecution  func(fix.Message)
	OnMarketData func(fix.Message)
	OnReject     func(fix.Message)
	OnStatus     func(sessionID string, connected bool, message string)
}

// Session owns the bytes-on-wire for one logical counterparty connection.
type Session struct {
	cfg   Config
	pool  *pool.Pool
	clock clock.Clock
	store SequenceStore
	cb    Callbacks
	logger *slog.Logger

	writeMu sync.Mutex // single-writer lock; serializes all writes
	conn    net.Conn

	phaseMu sync.RWMutex
	phase   Phase

	outSeq uint32 // next sequence number to assign on send
	inSeq  uint32 // last successfully processed inbound sequence number

	lastOutboundAt time.Time
	lastInboundAt  time.Time
	testRequestSentAt time.Time

	errorWindowMu sync.Mutex
	errorTimestamps []time.Time

	pendingGap *gapState

	readBuf []byte // accumulates partial reads between Parse attempts

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type gapState struct {
	expectedFrom uint32
	expectedTo   uint32
	buffered     []bufferedMsg
	requestedAt  time.Time
}

type bufferedMsg struct {
	seq  uint32
	data []byte
}

// New creates a session. Connect must be called to open the transport.
func New(cfg Config, p *pool.Pool, c clock.Clock, store SequenceStore, cb Callbacks, logger *slog.Logger) *Session {
	cfg = cfg.withDefaults()
	return &Session{
		cfg:    cfg,
		pool:   p,
		clock:  c,
		store:  store,
		cb:     cb,
		logger: logger.With("session", cfg.ID()),
		phase:  Disconnected,
		outSeq: 1,
		inSeq:  0,
	}
}

// Phase returns the current connection phase.
func (s *Session) Phase() Phase {
	s.phaseMu.RLock()
	defer s.phaseMu.RUnlock()
	return s.phase
}

func (s *Session) setPhase(p Phase) {
	s.phaseMu.Lock()
	s.phase = p
	s.phaseMu.Unlock()
}

// Connect dials the venue, performs the optional TLS handshake, and sends
// Logon. The dial and handshake are bounded by ConnectTimeout and ctx.
// Connect does not wait for the counterparty's Logon: once the outbound
// Logon is written the session is LoggedOn and the reader and timer
// goroutines are running. On failure it is Faulted.
func (s *Session) Connect(ctx context.Context) error {
	s.setPhase(Connecting)

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var conn net.Conn
	var err error

	if s.cfg.UseTLS {
		conn, err = s.dialTLS(dialCtx, addr)
	} else {
		d := net.Dialer{}
		conn, err = d.DialContext(dialCtx, "tcp", addr)
	}
	if err != nil {
		s.setPhase(Faulted)
		return errs.Wrap(errs.Transport, fmt.Errorf("dial %s: %w", addr, err))
	}

	s.conn = conn

	if err := s.loadSequence(); err != nil {
		s.logger.Warn("sequence store load failed, resetting to 1", "error", err)
	}
	if s.cfg.ResetOnLogon || s.store == nil {
		s.outSeq, s.inSeq = 1, 0
	}

	if err := s.sendLogon(); err != nil {
		s.setPhase(Faulted)
		conn.Close()
		return errs.Wrap(errs.Transport, fmt.Errorf("send logon: %w", err))
	}

	sessCtx, sessCancel := context.WithCancel(context.Background())
	s.ctx = sessCtx
	s.cancel = sessCancel

	s.wg.Add(1)
	go s.readLoop()

	s.wg.Add(1)
	go s.timerLoop()

	s.setPhase(LoggedOn)
	s.notifyStatus(true, "logon sent")
	return nil
}

func (s *Session) dialTLS(ctx context.Context, addr string) (net.Conn, error) {
	d := net.Dialer{}
	rawConn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	tlsCfg := &tls.Config{
		ServerName: s.cfg.TLSPeerName,
		MinVersion: tls.VersionTLS12,
		// InsecureSkipVerify is intentionally never set here: standard
		// CA-chain verification always runs. The optional pinned
		// fingerprint below is an additional check, not a replacement.
	}

	tlsConn := tls.Client(rawConn, tlsCfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return nil, err
	}

	if s.cfg.PinnedFingerprint != "" {
		if err := verifyPinnedFingerprint(tlsConn, s.cfg.PinnedFingerprint); err != nil {
			tlsConn.Close()
			return nil, err
		}
	}

	return tlsConn, nil
}

func verifyPinnedFingerprint(conn *tls.Conn, want string) error {
	state := conn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return fmt.Errorf("no peer certificate presented")
	}
	leaf := state.PeerCertificates[0]
	sum := sha256.Sum256(leaf.Raw)
	got := hex.EncodeToString(sum[:])
	if got != want {
		return fmt.Errorf("peer certificate fingerprint %s does not match pinned %s", got, want)
	}
	return nil
}

// Disconnect sends Logout and closes the transport once it is
// acknowledged, the context is cancelled, or 5 seconds have passed.
func (s *Session) Disconnect(ctx context.Context) error {
	if s.Phase() != LoggedOn {
		return nil
	}
	// Logout is sent while still LoggedOn, since Send refuses every
	// non-Logon message in any other phase.
	if err := s.sendSessionMessage(fix.MsgTypeLogout, nil); err != nil {
		s.logger.Warn("send logout failed", "error", err)
	}
	s.setPhase(LoggingOut)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
	}

	s.closeTransport()
	s.setPhase(Disconnected)
	s.notifyStatus(false, "logout complete")
	return nil
}

func (s *Session) closeTransport() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.conn != nil {
		s.conn.Close()
	}
}

// Send assigns the next outgoing sequence number under the writer lock and
// writes msgType+fields to the wire. Callers (the order manager, market
// data manager) supply only the body fields; Send fills in the session
// header.
func (s *Session) Send(msgType string, fields []pool.Field) error {
	if s.Phase() != LoggedOn && msgType != fix.MsgTypeLogon {
		return errs.New(errs.Routing, "session %s not logged on", s.cfg.ID())
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	seq := s.outSeq
	h := fix.Header{
		SenderCompID: s.cfg.SenderCompID,
		TargetCompID: s.cfg.TargetCompID,
		MsgSeqNum:    seq,
		SendingTime:  s.clock.Now(),
	}

	env := s.pool.AcquireWithBuffer(4096)
	defer s.pool.Release(env)

	out, err := fix.Build(env.Buffer, msgType, h, fields)
	if err != nil {
		return errs.Wrap(errs.Validation, err)
	}

	if _, err := s.conn.Write(out); err != nil {
		s.recordError()
		s.setPhase(Faulted)
		return errs.Wrap(errs.Transport, fmt.Errorf("write: %w", err))
	}

	s.outSeq++
	s.lastOutboundAt = s.clock.Now()
	s.saveSequence()
	return nil
}

func (s *Session) sendSessionMessage(msgType string, fields []pool.Field) error {
	return s.Send(msgType, fields)
}

func (s *Session) sendLogon() error {
	var fields []pool.Field
	fields = append(fields, pool.Field{Tag: fix.TagEncryptMethod, Value: []byte("0")})
	fields = append(fields, pool.Field{Tag: fix.TagHeartBtInt, Value: []byte(fmt.Sprintf("%d", int(s.cfg.HeartBtInt.Seconds())))})
	if s.cfg.ResetOnLogon {
		fields = append(fields, pool.Field{Tag: fix.TagResetSeqNumFlag, Value: []byte("Y")})
	}
	return s.Send(fix.MsgTypeLogon, fields)
}

// readLoop owns the single reader goroutine for this session. It reads
// raw bytes, frames them into messages via the codec, and dispatches each
// one. Handlers must not block.
func (s *Session) readLoop() {
	defer s.wg.Done()

	buf := make([]byte, 0, 65536)
	chunk := make([]byte, 4096)

	for {
		if s.ctx.Err() != nil {
			return
		}

		s.conn.SetReadDeadline(time.Now().Add(s.cfg.HeartBtInt * 3))
		n, err := s.conn.Read(chunk)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.recordError()
			s.setPhase(Faulted)
			s.notifyStatus(false, fmt.Sprintf("read error: %v", err))
			return
		}
		buf = append(buf, chunk[:n]...)

		for {
			env := &pool.Envelope{Buffer: buf}
			consumed, perr := fix.Parse(env)
			if perr == fix.ErrNeedMore {
				break
			}
			if perr != nil {
				s.logger.Error("protocol violation, faulting session", "error", perr)
				s.setPhase(Faulted)
				s.notifyStatus(false, fmt.Sprintf("protocol error: %v", perr))
				return
			}

			s.handleMessage(buf[:consumed], fix.Wrap(env))
			buf = buf[consumed:]
		}
	}
}

func (s *Session) handleMessage(raw []byte, m fix.Message) {
	s.lastInboundAt = s.clock.Now()
	// Any inbound traffic answers an outstanding TestRequest.
	s.testRequestSentAt = time.Time{}

	seq := m.Env.MsgSeqNum
	if !s.checkSequence(seq, raw, m) {
		return
	}

	s.dispatch(m)
	// A SequenceReset may have moved inSeq up to buffered gap messages.
	s.drainBufferedGap()
	s.saveSequence()
}

// dispatch routes one in-sequence message to its handler. Called both from
// the live read path and from drainBufferedGap when a queued message's turn
// comes up, so apart from applying a SequenceReset's NewSeqNo it does not
// touch sequence state itself.
func (s *Session) dispatch(m fix.Message) {
	switch m.MsgType() {
	case fix.MsgTypeHeartbeat:
		// No action beyond updating last-inbound-timestamp, above.
	case fix.MsgTypeTestRequest:
		s.sendSessionMessage(fix.MsgTypeHeartbeat, nil)
	case fix.MsgTypeLogon:
		// Counterparty-initiated logon acknowledgment; already LoggedOn.
	case fix.MsgTypeLogout:
		// Replies only to a counterparty-initiated Logout: after our own
		// Disconnect the phase is already LoggingOut and Send refuses.
		s.sendSessionMessage(fix.MsgTypeLogout, nil)
		s.setPhase(LoggingOut)
		s.closeTransport()
		s.setPhase(Disconnected)
		s.notifyStatus(false, "received logout")
	case fix.MsgTypeResendRequest:
		// Replay is out of scope beyond the gap-fill this session itself
		// issues; venues resending to us is handled as ordinary inbound
		// traffic via PossDupFlag.
	case fix.MsgTypeSequenceReset:
		if newSeq, ok := m.GetInt(fix.TagNewSeqNo); ok {
			s.inSeq = uint32(newSeq) - 1
		}
	case fix.MsgTypeReject:
		if s.cb.OnReject != nil {
			s.cb.OnReject(m)
		}
	case fix.MsgTypeExecutionReport, fix.MsgTypeOrderCancelReject:
		if s.cb.OnExecution != nil {
			s.cb.OnExecution(m)
		}
	case fix.MsgTypeMarketDataSnapshot, fix.MsgTypeMarketDataIncRefresh:
		if s.cb.OnMarketData != nil {
			s.cb.OnMarketData(m)
		}
	}
}

// checkSequence implements the incoming sequence-number discipline: gap
// detection via ResendRequest, Faulted on out-of-order duplicates. A message
// that arrives ahead of the expected sequence is not discarded: its raw
// bytes are copied into the pending gap's buffer and replayed in order once
// the resend (or a SequenceReset) closes the gap (§4.3/§8 scenario 4).
func (s *Session) checkSequence(seq uint32, raw []byte, m fix.Message) bool {
	expected := s.inSeq + 1

	if seq == expected {
		s.inSeq = seq
		s.drainBufferedGap()
		return true
	}

	if seq > expected {
		if s.pendingGap == nil {
			s.pendingGap = &gapState{expectedFrom: expected, expectedTo: seq - 1, requestedAt: s.clock.Now()}
			s.sendSessionMessage(fix.MsgTypeResendRequest, []pool.Field{
				{Tag: fix.TagBeginSeqNo, Value: []byte(fmt.Sprintf("%d", expected))},
				{Tag: fix.TagEndSeqNo, Value: []byte(fmt.Sprintf("%d", seq-1))},
			})
		} else if seq-1 > s.pendingGap.expectedTo {
			s.pendingGap.expectedTo = seq - 1
		}
		// The triggering message itself is not applied yet: its bytes are
		// owned-copied (the read buffer they were sliced from is reused by
		// the next socket read) and queued for replay once inSeq reaches
		// seq-1.
		data := make([]byte, len(raw))
		copy(data, raw)
		s.pendingGap.buffered = append(s.pendingGap.buffered, bufferedMsg{seq: seq, data: data})
		return false
	}

	// seq < expected: duplicate or out-of-sequence without PossDupFlag.
	if dup, _ := m.Get(fix.TagPossDupFlag); dup == "Y" {
		return false
	}
	s.logger.Error("sequence number went backwards without PossDupFlag, faulting", "seq", seq, "expected", expected)
	s.setPhase(Faulted)
	s.notifyStatus(false, "sequence corruption")
	return false
}

// drainBufferedGap applies any buffered out-of-order messages that now
// continue the sequence, in order, after inSeq has just advanced. It clears
// pendingGap once the buffer is exhausted and inSeq has caught up to the
// last message that triggered the gap.
func (s *Session) drainBufferedGap() {
	if s.pendingGap == nil {
		return
	}

	for {
		next := s.inSeq + 1
		idx := -1
		for i, bm := range s.pendingGap.buffered {
			if bm.seq == next {
				idx = i
				break
			}
		}
		if idx == -1 {
			break
		}

		bm := s.pendingGap.buffered[idx]
		s.pendingGap.buffered = append(s.pendingGap.buffered[:idx], s.pendingGap.buffered[idx+1:]...)
		s.inSeq = bm.seq

		if replayed, ok := s.parseBuffered(bm.data); ok {
			s.dispatch(replayed)
		}
	}

	if s.inSeq >= s.pendingGap.expectedTo && len(s.pendingGap.buffered) == 0 {
		s.pendingGap = nil
	}
}

// parseBuffered re-parses a message's raw bytes at replay time, rather than
// retaining a fix.Message whose Envelope.Buffer would otherwise alias the
// reader's sliding read buffer.
func (s *Session) parseBuffered(data []byte) (fix.Message, bool) {
	env := &pool.Envelope{Buffer: data}
	if _, err := fix.Parse(env); err != nil {
		s.logger.Error("failed to reparse buffered gap message", "error", err)
		return fix.Message{}, false
	}
	return fix.Wrap(env), true
}

// timerLoop runs on its own goroutine per session and checks the
// heartbeat/test-request timers once a second.
func (s *Session) timerLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.checkTimers()
		}
	}
}

func (s *Session) checkTimers() {
	if s.Phase() != LoggedOn {
		return
	}
	now := s.clock.Now()

	if !s.lastOutboundAt.IsZero() && now.Sub(s.lastOutboundAt) >= s.cfg.HeartBtInt {
		s.sendSessionMessage(fix.MsgTypeHeartbeat, nil)
	}

	if s.lastInboundAt.IsZero() {
		return
	}
	since := now.Sub(s.lastInboundAt)

	if since >= 2*s.cfg.HeartBtInt && s.testRequestSentAt.IsZero() {
		s.testRequestSentAt = now
		s.sendSessionMessage(fix.MsgTypeTestRequest, []pool.Field{
			{Tag: fix.TagTestReqID, Value: []byte(fmt.Sprintf("%d", now.UnixNano()))},
		})
		return
	}

	if !s.testRequestSentAt.IsZero() && now.Sub(s.testRequestSentAt) >= s.cfg.HeartBtInt {
		s.logger.Error("no response to test request, faulting session")
		s.setPhase(Faulted)
		s.notifyStatus(false, "test request timeout")
		s.closeTransport()
	}
}

func (s *Session) recordError() {
	s.errorWindowMu.Lock()
	defer s.errorWindowMu.Unlock()
	now := s.clock.Now()
	s.errorTimestamps = append(s.errorTimestamps, now)
	cutoff := now.Add(-time.Minute)
	kept := s.errorTimestamps[:0]
	for _, t := range s.errorTimestamps {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.errorTimestamps = kept
}

// ErrorRate returns the count of transport errors in the last minute,
// consumed by the routing engine's venue-health tracking.
func (s *Session) ErrorRate() float64 {
	s.errorWindowMu.Lock()
	defer s.errorWindowMu.Unlock()
	cutoff := s.clock.Now().Add(-time.Minute)
	count := 0
	for _, t := range s.errorTimestamps {
		if t.After(cutoff) {
			count++
		}
	}
	return float64(count)
}

func (s *Session) loadSequence() error {
	if s.store == nil {
		return nil
	}
	out, in, err := s.store.Load(s.cfg.ID())
	if err != nil {
		return err
	}
	if out > 0 {
		s.outSeq = out
	}
	s.inSeq = in
	return nil
}

func (s *Session) saveSequence() {
	if s.store == nil {
		return
	}
	if err := s.store.Save(s.cfg.ID(), s.outSeq, s.inSeq); err != nil {
		s.logger.Warn("sequence store save failed", "error", err)
	}
}

func (s *Session) notifyStatus(connected bool, msg string) {
	if s.cb.OnStatus != nil {
		s.cb.OnStatus(s.cfg.ID(), connected, msg)
	}
}

// SessionID returns the composite session identifier.
func (s *Session) SessionID() string { return s.cfg.ID() }

// VerifyCertificateChain is exposed for tests: it checks a raw certificate
// against the standard library's CA pool, giving an explicit, visible
// substitute for the permissive validator flagged in the design notes as
// not to be replicated.
func VerifyCertificateChain(cert *x509.Certificate, roots *x509.CertPool, dnsName string) error {
	_, err := cert.Verify(x509.VerifyOptions{Roots: roots, DNSName: dnsName})
	return err
}
