// Package field implements the field-management server's core: the
// driver-station registry (C5), the per-connection wire handler (C6),
// the TCP/UDP listeners (C7), and the Field facade that ties event
// metadata, the alarm engine, and the override registry together (C8).
package field

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sourcegraph/conc"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Nevermore-FMS/nevermore-fms-sub000/internal/fms/alarm"
	"github.com/Nevermore-FMS/nevermore-fms-sub000/internal/fms/override"
	"github.com/Nevermore-FMS/nevermore-fms-sub000/internal/fms/proto"
	"github.com/Nevermore-FMS/nevermore-fms-sub000/internal/fms/timer"
)

// FieldAlarmTarget is the scope every field-wide fault check is rooted
// at (spec §4.3's match-abort trigger checks this target, and §4.5's
// per-station scopes nest under it).
const FieldAlarmTarget = "fms.field"

// Config carries the field's tunable knobs. It is built from
// internal/fmsconfig at startup.
type Config struct {
	DSAddress   net.IP
	TCPPort     int
	UDPInPort   int
	UDPOutPort  int

	BindRetryInterval    time.Duration
	FieldTickInterval    time.Duration
	RegistryTickInterval time.Duration

	DefaultStationStatusGood bool

	InitialEventName       string
	InitialTournamentLevel proto.TournamentLevel
	InitialMatchNumber     uint16
	InitialPlayNumber      uint8
	InitialTimeRemaining   time.Duration
}

// Field is the top-level facade (C8): current event/match metadata,
// the match safety state, the alarm engine, the override registry, and
// the driver-station registry underneath it.
type Field struct {
	mu sync.RWMutex

	eventName       string
	tournamentLevel proto.TournamentLevel
	matchNumber     uint16
	playNumber      uint8
	mode            proto.Mode
	isSafe          bool
	tcpOnline       bool
	udpOnline       bool
	timer           timer.DiffTimer

	alarms    *alarm.Engine
	overrides *override.Registry
	registry  *Registry

	logger *zap.Logger
	cfg    Config
}

// New constructs a Field wired to the given alarm observer (the
// alarmstore, typically) and configuration.
func New(cfg Config, observer alarm.Observer, logger *zap.Logger) *Field {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Field{
		eventName:       cfg.InitialEventName,
		tournamentLevel: cfg.InitialTournamentLevel,
		matchNumber:     cfg.InitialMatchNumber,
		playNumber:      cfg.InitialPlayNumber,
		mode:            proto.ModeTeleOp,
		isSafe:          true,
		timer:           timer.New(cfg.InitialTimeRemaining, false),
		alarms:          alarm.NewEngine(observer),
		overrides:       override.New(),
		logger:          logger,
		cfg:             cfg,
	}
	f.registry = newRegistry(f, logger, cfg.RegistryTickInterval)
	return f
}

func (f *Field) Alarms() *alarm.Engine        { return f.alarms }
func (f *Field) Overrides() *override.Registry { return f.overrides }
func (f *Field) Registry() *Registry           { return f.registry }

func (f *Field) EventName() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.eventName
}

// SetEventName updates the current event name, logging the transition
// per spec §4.8's "every metadata write is logged" rule.
func (f *Field) SetEventName(name string) {
	f.mu.Lock()
	old := f.eventName
	f.eventName = name
	f.mu.Unlock()
	f.logger.Info("event name changed", zap.String("old", old), zap.String("new", name))
}

func (f *Field) TournamentLevel() proto.TournamentLevel {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.tournamentLevel
}

func (f *Field) SetTournamentLevel(level proto.TournamentLevel) {
	f.mu.Lock()
	f.tournamentLevel = level
	f.mu.Unlock()
	f.logger.Info("tournament level changed", zap.Uint8("level", level.Byte()))
}

func (f *Field) MatchNumber() uint16 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.matchNumber
}

func (f *Field) SetMatchNumber(n uint16) {
	f.mu.Lock()
	f.matchNumber = n
	f.mu.Unlock()
	f.logger.Info("match number changed", zap.Uint16("match", n))
}

func (f *Field) PlayNumber() uint8 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.playNumber
}

func (f *Field) SetPlayNumber(n uint8) {
	f.mu.Lock()
	f.playNumber = n
	f.mu.Unlock()
	f.logger.Info("play number changed", zap.Uint8("play", n))
}

func (f *Field) Mode() proto.Mode {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.mode
}

// SetMode changes the robot mode. It does not itself start or stop the
// timer or toggle safety — callers sequence those independently
// (spec §4.8 treats mode, safety, and timer as orthogonal fields).
func (f *Field) SetMode(mode proto.Mode) {
	f.mu.Lock()
	f.mode = mode
	f.mu.Unlock()
	f.logger.Info("mode changed", zap.Stringer("mode", mode))
}

func (f *Field) IsSafe() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.isSafe
}

func (f *Field) SetSafe(safe bool) {
	f.mu.Lock()
	f.isSafe = safe
	f.mu.Unlock()
	f.logger.Info("safety state changed", zap.Bool("safe", safe))
}

// Timer returns the current match timer value.
func (f *Field) Timer() timer.DiffTimer {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.timer
}

// StartTimer starts the match clock with the given total duration.
func (f *Field) StartTimer(d time.Duration) {
	f.mu.Lock()
	f.timer = timer.New(d, true)
	f.mu.Unlock()
	f.logger.Info("match timer started",
		zap.Duration("duration", d), zap.String("ends", humanize.Time(time.Now().Add(d))))
}

// MatchAbort stops the timer and marks the match unsafe — the response
// to a field-wide fault (spec §4.3/§4.8).
func (f *Field) MatchAbort() {
	f.mu.Lock()
	remaining := f.timer.Remaining()
	f.timer = f.timer.Stop()
	f.isSafe = false
	f.mu.Unlock()
	f.logger.Warn("match aborted", zap.String("would_have_ended", humanize.Time(time.Now().Add(remaining))))
}

// TCPOnline and UDPOnline report listener health for operator display.
func (f *Field) TCPOnline() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.tcpOnline
}

func (f *Field) UDPOnline() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.udpOnline
}

func (f *Field) setTCPOnline(v bool) {
	f.mu.Lock()
	f.tcpOnline = v
	f.mu.Unlock()
}

func (f *Field) setUDPOnline(v bool) {
	f.mu.Lock()
	f.udpOnline = v
	f.mu.Unlock()
}

// tick runs the field's 250ms heartbeat (spec §4.8): abort the match if
// any fault alarm covers the field-wide target. Unconditional — spec
// §4.8 does not gate this on the current safety state.
func (f *Field) tick() {
	if f.alarms.IsTargetFaulted(FieldAlarmTarget) {
		f.MatchAbort()
	}
}

func (f *Field) tickLoop(ctx context.Context) error {
	ticker := time.NewTicker(f.cfg.FieldTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			f.tick()
		}
	}
}

// listenTCPWithRetry binds the TCP listener, retrying on a fixed
// interval (not exponential backoff — spec §4.7 calls for a flat
// retry cadence here, unlike a reconnecting client) whenever the bind
// itself fails. Once bound, it accepts connections until the listener
// errors, then rebinds.
func (f *Field) listenTCPWithRetry(ctx context.Context) error {
	addr := &net.TCPAddr{IP: f.cfg.DSAddress, Port: f.cfg.TCPPort}
	for {
		if ctx.Err() != nil {
			return nil
		}
		ln, err := net.ListenTCP("tcp", addr)
		if err != nil {
			f.logger.Warn("tcp bind failed, retrying", zap.Error(err), zap.Duration("retry_in", f.cfg.BindRetryInterval))
			if !sleepOrDone(ctx, f.cfg.BindRetryInterval) {
				return nil
			}
			continue
		}
		f.logger.Info("tcp listener bound", zap.Stringer("addr", addr))
		f.setTCPOnline(true)
		f.acceptLoop(ctx, ln)
		f.setTCPOnline(false)
		_ = ln.Close()
		if ctx.Err() != nil {
			return nil
		}
		f.logger.Warn("tcp listener exited, rebinding", zap.Duration("retry_in", f.cfg.BindRetryInterval))
		if !sleepOrDone(ctx, f.cfg.BindRetryInterval) {
			return nil
		}
	}
}

// acceptLoop accepts connections until ctx is cancelled or Accept
// returns a non-transient error. Per-connection errors never
// propagate (spec §4.9): each accepted stream is handed off and this
// loop immediately accepts the next one.
func (f *Field) acceptLoop(ctx context.Context, ln *net.TCPListener) {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Temporary() {
				f.logger.Debug("transient tcp accept error, continuing", zap.Error(err))
				continue
			}
			f.logger.Warn("tcp accept loop exiting", zap.Error(err))
			return
		}
		peerIP := conn.RemoteAddr().(*net.TCPAddr).IP
		f.registry.HandleTCPStream(conn, peerIP)
	}
}

// listenUDPWithRetry mirrors listenTCPWithRetry for the inbound UDP
// socket (spec §4.7).
func (f *Field) listenUDPWithRetry(ctx context.Context) error {
	addr := &net.UDPAddr{IP: f.cfg.DSAddress, Port: f.cfg.UDPInPort}
	for {
		if ctx.Err() != nil {
			return nil
		}
		conn, err := net.ListenUDP("udp", addr)
		if err != nil {
			f.logger.Warn("udp bind failed, retrying", zap.Error(err), zap.Duration("retry_in", f.cfg.BindRetryInterval))
			if !sleepOrDone(ctx, f.cfg.BindRetryInterval) {
				return nil
			}
			continue
		}
		f.logger.Info("udp listener bound", zap.Stringer("addr", addr))
		f.setUDPOnline(true)
		f.recvLoop(ctx, conn)
		f.setUDPOnline(false)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		f.logger.Warn("udp listener exited, rebinding", zap.Duration("retry_in", f.cfg.BindRetryInterval))
		if !sleepOrDone(ctx, f.cfg.BindRetryInterval) {
			return nil
		}
	}
}

func (f *Field) recvLoop(ctx context.Context, conn *net.UDPConn) {
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	buf := make([]byte, 1024)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Temporary() {
				f.logger.Debug("transient udp read error, continuing", zap.Error(err))
				continue
			}
			f.logger.Warn("udp recv loop exiting", zap.Error(err))
			return
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		f.registry.DecodeUDPMessage(payload)
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Run launches every field subtask — the TCP listener, the UDP
// listener, the field tick loop, and the registry's dispatch loop —
// joined in a panic-safe group. The first subtask to return an error
// cancels the rest; Run returns the combined error set (spec §4.9's
// "any unrecoverable failure in one subsystem shuts the whole field
// down cleanly").
func (f *Field) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var mu sync.Mutex
	var combined error

	record := func(name string, err error) {
		if err == nil {
			return
		}
		mu.Lock()
		combined = multierr.Append(combined, fmt.Errorf("%s: %w", name, err))
		mu.Unlock()
		cancel()
	}

	wg := conc.NewWaitGroup()
	wg.Go(func() { record("tcp listener", f.listenTCPWithRetry(ctx)) })
	wg.Go(func() { record("udp listener", f.listenUDPWithRetry(ctx)) })
	wg.Go(func() { record("field tick", f.tickLoop(ctx)) })
	wg.Go(func() { record("registry", f.registry.Run(ctx)) })
	wg.Wait()

	return combined
}
