package field

import (
	"net"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Nevermore-FMS/nevermore-fms-sub000/internal/fms/proto"
)

func testField(t *testing.T) *Field {
	t.Helper()
	cfg := Config{
		DSAddress:                net.ParseIP("127.0.0.1"),
		TCPPort:                  0,
		UDPInPort:                0,
		UDPOutPort:               0,
		BindRetryInterval:        10 * time.Millisecond,
		FieldTickInterval:        10 * time.Millisecond,
		RegistryTickInterval:     10 * time.Millisecond,
		DefaultStationStatusGood: false,
		InitialTimeRemaining:     150 * time.Second,
	}
	return New(cfg, nil, zap.NewNop())
}

func TestRegistryAddRejectsDuplicateTeam(t *testing.T) {
	f := testField(t)
	r := f.Registry()
	if err := r.Add(NewDriverStation(1234, proto.Red1, nil)); err != nil {
		t.Fatalf("unexpected error adding first station: %v", err)
	}
	if err := r.Add(NewDriverStation(1234, proto.Red2, nil)); err == nil {
		t.Fatalf("expected duplicate team number to be rejected")
	}
}

func TestRegistryAddRejectsDuplicateStation(t *testing.T) {
	f := testField(t)
	r := f.Registry()
	if err := r.Add(NewDriverStation(1111, proto.Blue1, nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Add(NewDriverStation(2222, proto.Blue1, nil)); err == nil {
		t.Fatalf("expected duplicate alliance station to be rejected")
	}
}

func TestByTeamNumberAndByPosition(t *testing.T) {
	f := testField(t)
	r := f.Registry()
	ds := NewDriverStation(5555, proto.Red3, nil)
	if err := r.Add(ds); err != nil {
		t.Fatal(err)
	}
	if r.ByTeamNumber(5555) != ds {
		t.Fatalf("expected lookup by team number to find station")
	}
	if r.ByPosition(proto.Red3) != ds {
		t.Fatalf("expected lookup by position to find station")
	}
	if r.ByTeamNumber(9999) != nil {
		t.Fatalf("expected unknown team lookup to return nil")
	}
}

func TestRegistryRemove(t *testing.T) {
	f := testField(t)
	r := f.Registry()
	ds := NewDriverStation(42, proto.Blue2, nil)
	if err := r.Add(ds); err != nil {
		t.Fatal(err)
	}
	if !r.Remove(42) {
		t.Fatalf("expected remove to succeed")
	}
	if r.ByTeamNumber(42) != nil {
		t.Fatalf("expected station gone after remove")
	}
	if r.Remove(42) {
		t.Fatalf("expected second remove to report not found")
	}
}

func TestDecodeUDPMessageUpdatesConfirmedState(t *testing.T) {
	f := testField(t)
	r := f.Registry()
	ds := NewDriverStation(1234, proto.Red1, nil)
	if err := r.Add(ds); err != nil {
		t.Fatal(err)
	}

	// seq=1, status: enabled(bit2)+can_ping_rio(bit3)=0x0C, mode teleop,
	// team=1234 (0x04D2), battery 12.5V => 0x0C80.
	buf := []byte{0x00, 0x01, 0x00, 0x0C, 0x04, 0xD2, 0x0C, 0x80}
	r.DecodeUDPMessage(buf)

	cs, ok := ds.ConfirmedState()
	if !ok {
		t.Fatalf("expected confirmed state to be recorded")
	}
	if cs.TeamNumber != 1234 {
		t.Fatalf("expected team 1234, got %d", cs.TeamNumber)
	}
	if !cs.Enabled || !cs.CanPingRio {
		t.Fatalf("expected enabled and can-ping-rio bits set, got %+v", cs)
	}
}

func TestDecodeUDPMessageUnregisteredTeamIgnored(t *testing.T) {
	f := testField(t)
	r := f.Registry()
	buf := []byte{0x00, 0x01, 0x00, 0x0C, 0x04, 0xD2, 0x0C, 0x80}
	r.DecodeUDPMessage(buf) // no panic, no registered station
}

func TestDecodeUDPMessageShortPacketSilentlyDropped(t *testing.T) {
	f := testField(t)
	r := f.Registry()
	r.DecodeUDPMessage([]byte{0x00, 0x01})
}
