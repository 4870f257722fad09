package field

import (
	"net"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Nevermore-FMS/nevermore-fms-sub000/internal/fms/proto"
)

func TestHandshakeBindsStationAndRepliesStatus(t *testing.T) {
	f := testField(t)
	ds := NewDriverStation(1234, proto.Blue2, nil)
	if err := f.Registry().Add(ds); err != nil {
		t.Fatal(err)
	}

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	c := newConnection(serverConn, net.ParseIP("10.0.100.5"), f.Registry(), zap.NewNop())
	go c.serve()

	// Handshake: team 1234 (0x04D2).
	handshake := []byte{proto.PacketHandshake, 0x04, 0xD2}
	if err := proto.WriteTCPFrame(clientConn, handshake); err != nil {
		t.Fatal(err)
	}

	frame, err := proto.ReadTCPFrame(clientConn)
	if err != nil {
		t.Fatalf("expected station-info reply: %v", err)
	}
	if len(frame) != 3 || frame[0] != proto.PacketStationInfo {
		t.Fatalf("unexpected reply frame: %v", frame)
	}
	if proto.AllianceStation(frame[1]) != proto.Blue2 {
		t.Fatalf("expected station Blue2 in reply, got %d", frame[1])
	}
	// No expected-IP CIDR configured and default-good is false: status
	// must report bad.
	if proto.DriverstationStatusFromByte(frame[2]) != proto.StatusBad {
		t.Fatalf("expected bad status by default, got %d", frame[2])
	}

	if ds.ActiveConnection() != c {
		t.Fatalf("expected connection bound as active connection")
	}
}

func TestHandshakeUnregisteredTeamDoesNotReply(t *testing.T) {
	f := testField(t)
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	c := newConnection(serverConn, net.ParseIP("10.0.100.5"), f.Registry(), zap.NewNop())
	go c.serve()

	handshake := []byte{proto.PacketHandshake, 0x04, 0xD2}
	if err := proto.WriteTCPFrame(clientConn, handshake); err != nil {
		t.Fatal(err)
	}

	clientConn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	if _, err := proto.ReadTCPFrame(clientConn); err == nil {
		t.Fatalf("expected no reply for unregistered team")
	}
}

func TestTeardownClearsActiveConnectionOnlyIfSelf(t *testing.T) {
	f := testField(t)
	ds := NewDriverStation(77, proto.Red1, nil)
	if err := f.Registry().Add(ds); err != nil {
		t.Fatal(err)
	}

	_, serverConn := net.Pipe()
	c := newConnection(serverConn, net.ParseIP("127.0.0.1"), f.Registry(), zap.NewNop())
	ds.SetActiveConnection(c)

	other := newConnection(serverConn, net.ParseIP("127.0.0.1"), f.Registry(), zap.NewNop())
	ds.ClearActiveConnectionIfSelf(other)
	if ds.ActiveConnection() != c {
		t.Fatalf("clearing with a non-matching connection must be a no-op")
	}

	c.teardown()
	if ds.ActiveConnection() != nil {
		t.Fatalf("expected teardown to clear active connection")
	}
}

func TestComputeStatusWithExpectedIP(t *testing.T) {
	_, cidr, err := net.ParseCIDR("10.1.1.0/24")
	if err != nil {
		t.Fatal(err)
	}
	ds := NewDriverStation(1, proto.Red1, cidr)

	if got := computeStatus(ds, net.ParseIP("10.1.1.50"), false); got != proto.StatusGood {
		t.Fatalf("expected good status for in-range IP, got %v", got)
	}
	if got := computeStatus(ds, net.ParseIP("10.2.2.2"), false); got != proto.StatusBad {
		t.Fatalf("expected bad status for out-of-range IP, got %v", got)
	}
}
