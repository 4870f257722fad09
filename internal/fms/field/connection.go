package field

import (
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Nevermore-FMS/nevermore-fms-sub000/internal/fms/proto"
)

// Connection owns one TCP stream from a driver station: the C6
// component of spec §4.6. It is created on accept and destroyed when
// the stream EOFs, errors, or is explicitly killed.
type Connection struct {
	mu       sync.RWMutex
	conn     net.Conn
	peerIP   net.IP
	registry *Registry
	ds       *DriverStation
	alive    bool
	seq      uint16
	logger   *zap.Logger
}

func newConnection(conn net.Conn, peerIP net.IP, registry *Registry, logger *zap.Logger) *Connection {
	return &Connection{conn: conn, peerIP: peerIP, registry: registry, alive: true, logger: logger}
}

// IsAlive reports whether the receive task is still running.
func (c *Connection) IsAlive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.alive
}

// serve runs the receive loop until the stream errors or EOFs; it takes
// no context, so cancelling the field does not end it. A panic in the
// loop is recovered and logged, and the connection is torn down. It
// must be launched in its own goroutine; callers do not wait for it
// (spec §4.5: "it does not wait for the handshake").
func (c *Connection) serve() {
	defer c.teardown()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("recovered panic in connection", zap.Stringer("peer", c.peerIP), zap.Any("panic", r))
		}
	}()
	for {
		payload, err := proto.ReadTCPFrame(c.conn)
		if err != nil {
			if err != io.EOF {
				c.logger.Debug("tcp connection read error", zap.Stringer("peer", c.peerIP), zap.Error(err))
			}
			return
		}
		if len(payload) == 0 {
			continue
		}
		switch payload[0] {
		case proto.PacketHandshake:
			c.handleHandshake(payload)
		default:
			c.logger.Debug("ignoring unknown packet id", zap.Uint8("id", payload[0]))
		}
	}
}

func (c *Connection) handleHandshake(payload []byte) {
	team, err := proto.DecodeHandshake(payload)
	if err != nil {
		c.logger.Warn("malformed handshake", zap.Error(err))
		return
	}
	ds := c.registry.ByTeamNumber(team)
	if ds == nil {
		c.logger.Warn("handshake for unregistered team", zap.Uint16("team", team))
		return
	}
	ds.SetActiveConnection(c)
	c.mu.Lock()
	c.ds = ds
	c.mu.Unlock()
	c.replyStationInfo(ds)
}

func (c *Connection) replyStationInfo(ds *DriverStation) {
	status := computeStatus(ds, c.peerIP, c.registry.field.cfg.DefaultStationStatusGood)
	frame := proto.EncodeStationInfo(ds.Station(), status)
	if err := proto.WriteTCPFrame(c.conn, frame); err != nil {
		c.logger.Warn("failed to send station-info reply", zap.Error(err))
	}
}

// computeStatus implements spec §4.6's status rule, resolving the
// open question in §9 via the configured default (see
// internal/fmsconfig and DESIGN.md).
func computeStatus(ds *DriverStation, peerIP net.IP, defaultGood bool) proto.DriverstationStatus {
	if ds == nil {
		return proto.StatusWaiting
	}
	eip := ds.ExpectedIP()
	if eip == nil {
		if defaultGood {
			return proto.StatusGood
		}
		return proto.StatusBad
	}
	if eip.Contains(peerIP) {
		return proto.StatusGood
	}
	return proto.StatusBad
}

// sendUDP builds and sends one outbound control packet for the station
// bound to this connection (spec §4.6's "Outbound UDP (per tick)").
func (c *Connection) sendUDP() error {
	c.mu.Lock()
	c.seq++
	seq := c.seq
	ds := c.ds
	peerIP := c.peerIP
	c.mu.Unlock()

	if ds == nil {
		return nil
	}

	f := c.registry.field
	target := c.registry.stationScope(ds)

	f.mu.RLock()
	level := f.tournamentLevel
	matchNumber := f.matchNumber
	playNumber := f.playNumber
	mode := f.mode
	isSafe := f.isSafe
	remaining := f.timer.Remaining()
	f.mu.RUnlock()

	disabled := f.overrides.IsDisabled(target)
	estopped := f.overrides.IsEstopped(target)
	enabled := isSafe && !disabled

	payload := proto.EncodeUDPMessage(proto.OutboundUDPFields{
		Sequence:       seq,
		ControlByte:    proto.ControlByte(mode, enabled, estopped),
		Station:        ds.Station(),
		Level:          level,
		MatchNumber:    matchNumber,
		PlayNumber:     playNumber,
		Timestamp:      time.Now(),
		TimeRemainingS: uint16(remaining / time.Second),
	})

	addr := &net.UDPAddr{IP: peerIP, Port: c.registry.field.cfg.UDPOutPort}
	sock, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return err
	}
	defer sock.Close()
	_, err = sock.Write(payload)
	return err
}

func (c *Connection) teardown() {
	c.mu.Lock()
	c.alive = false
	ds := c.ds
	c.mu.Unlock()
	if ds != nil {
		ds.ClearActiveConnectionIfSelf(c)
	}
	_ = c.conn.Close()
}
