package field

import (
	"net"
	"sync"

	"github.com/Nevermore-FMS/nevermore-fms-sub000/internal/fms/proto"
)

// DriverStation is a registered roster entry: a team number bound to an
// alliance station, with an optional expected-IP CIDR and an optional
// handle to the connection currently representing it on the wire
// (spec §3 "Driver station (C5)").
type DriverStation struct {
	mu         sync.RWMutex
	teamNumber uint16
	station    proto.AllianceStation
	expectedIP *net.IPNet

	activeConn *Connection

	hasConfirmed bool
	confirmed    proto.ConfirmedState
}

// NewDriverStation constructs a registry entry. expectedIP may be nil
// if no CIDR is configured for this station.
func NewDriverStation(teamNumber uint16, station proto.AllianceStation, expectedIP *net.IPNet) *DriverStation {
	return &DriverStation{teamNumber: teamNumber, station: station, expectedIP: expectedIP}
}

func (d *DriverStation) TeamNumber() uint16 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.teamNumber
}

func (d *DriverStation) Station() proto.AllianceStation {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.station
}

func (d *DriverStation) ExpectedIP() *net.IPNet {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.expectedIP
}

// ActiveConnection returns the connection currently bound to this
// station, or nil.
func (d *DriverStation) ActiveConnection() *Connection {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.activeConn
}

// SetActiveConnection binds conn as this station's active connection,
// displacing any prior one (spec §4.6: "displacing any prior one — the
// prior one's next send will fail naturally and its task will exit on
// EOF").
func (d *DriverStation) SetActiveConnection(conn *Connection) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.activeConn = conn
}

// ClearActiveConnectionIfSelf clears the active-connection slot iff it
// still points at conn — the cycle-break step spec §3/§9 require on
// connection teardown.
func (d *DriverStation) ClearActiveConnectionIfSelf(conn *Connection) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.activeConn == conn {
		d.activeConn = nil
	}
}

// SetConfirmedState records the latest DS-reported status digest.
// Writes are last-writer-wins per spec §5.
func (d *DriverStation) SetConfirmedState(cs proto.ConfirmedState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.confirmed = cs
	d.hasConfirmed = true
}

// ConfirmedState returns the most recent confirmed state and whether
// one has ever been received.
func (d *DriverStation) ConfirmedState() (proto.ConfirmedState, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.confirmed, d.hasConfirmed
}
