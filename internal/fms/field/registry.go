package field

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Nevermore-FMS/nevermore-fms-sub000/internal/fms/proto"
)

// Registry is the driver-station registry (C5): the expected
// population roster keyed by team number and alliance station, plus
// the 500ms tick that dispatches UDP control packets to every live
// connection.
type Registry struct {
	mu           sync.RWMutex
	stations     []*DriverStation
	field        *Field
	logger       *zap.Logger
	tickInterval time.Duration
}

func newRegistry(f *Field, logger *zap.Logger, tickInterval time.Duration) *Registry {
	return &Registry{field: f, logger: logger, tickInterval: tickInterval}
}

// Add registers ds, failing if its team number or alliance station
// collides with an existing entry (spec §4.5, §8 scenario 6).
func (r *Registry) Add(ds *DriverStation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.stations {
		if existing.TeamNumber() == ds.TeamNumber() {
			return fmt.Errorf("team number %d already registered", ds.TeamNumber())
		}
		if ds.Station() != proto.None && existing.Station() == ds.Station() {
			return fmt.Errorf("alliance station %s already registered", ds.Station())
		}
	}
	r.stations = append(r.stations, ds)
	r.logger.Info("driver station registered",
		zap.Uint16("team", ds.TeamNumber()), zap.Stringer("station", ds.Station()))
	return nil
}

// Remove unregisters the station with the given team number, the
// inverse of Add.
func (r *Registry) Remove(teamNumber uint16) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, ds := range r.stations {
		if ds.TeamNumber() == teamNumber {
			r.stations = append(r.stations[:i], r.stations[i+1:]...)
			r.logger.Info("driver station removed", zap.Uint16("team", teamNumber))
			return true
		}
	}
	return false
}

// ByTeamNumber looks up a registered station by team number.
func (r *Registry) ByTeamNumber(team uint16) *DriverStation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ds := range r.stations {
		if ds.TeamNumber() == team {
			return ds
		}
	}
	return nil
}

// ByPosition looks up a registered station by alliance station.
func (r *Registry) ByPosition(station proto.AllianceStation) *DriverStation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ds := range r.stations {
		if ds.Station() == station {
			return ds
		}
	}
	return nil
}

// All returns a snapshot of every registered station.
func (r *Registry) All() []*DriverStation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*DriverStation, len(r.stations))
	copy(out, r.stations)
	return out
}

func (r *Registry) stationScope(ds *DriverStation) string {
	return fmt.Sprintf("%s.driverstations.%s", FieldAlarmTarget, ds.Station())
}

// HandleTCPStream hands an accepted socket to a newly constructed
// connection, which spawns its own receive task — the registry does
// not wait for the handshake (spec §4.5).
func (r *Registry) HandleTCPStream(conn net.Conn, peerIP net.IP) {
	c := newConnection(conn, peerIP, r, r.logger)
	go c.serve()
}

// DecodeUDPMessage parses and applies one inbound UDP payload (spec
// §4.5). A short packet ("unexpected end of file") is silently
// discarded per spec §4.9; any other decode or lookup failure is
// logged and discarded, never propagated.
func (r *Registry) DecodeUDPMessage(buf []byte) {
	cs, err := proto.DecodeUDPMessage(buf)
	if err != nil {
		if err == io.ErrUnexpectedEOF {
			return
		}
		r.logger.Warn("udp decode error", zap.Error(err))
		return
	}
	ds := r.ByTeamNumber(cs.TeamNumber)
	if ds == nil {
		r.logger.Warn("udp message for unregistered team", zap.Uint16("team", cs.TeamNumber))
		return
	}
	ds.SetConfirmedState(cs)
}

// Tick sends one outbound UDP control packet to every registered
// station with a live active connection, logging but not propagating
// per-connection errors (spec §4.5).
func (r *Registry) Tick() {
	for _, ds := range r.All() {
		conn := ds.ActiveConnection()
		if conn == nil || !conn.IsAlive() {
			continue
		}
		if err := conn.sendUDP(); err != nil {
			r.logger.Warn("udp send failed", zap.Uint16("team", ds.TeamNumber()), zap.Error(err))
		}
	}
}

// Run launches the registry's internal tick loop at its configured
// cadence until ctx is cancelled (spec §4.5/§4.9's cancellation rule).
func (r *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Tick()
		}
	}
}
