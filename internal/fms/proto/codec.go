package proto

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// Packet IDs used on the length-prefixed TCP stream.
const (
	PacketHandshake  = 0x18
	PacketStationInfo = 0x19
	PacketEventName  = 0x14
)

// DS-facing TCP and UDP ports per spec §4.7/§6.
const (
	UDPInboundPort  = 1160
	TCPPort         = 1750
	UDPOutboundPort = 1121
)

// ReadTCPFrame reads one big-endian u16-length-prefixed frame from r.
func ReadTCPFrame(r io.Reader) ([]byte, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint16(lenBuf[:])
	payload := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, err
		}
	}
	return payload, nil
}

// WriteTCPFrame writes payload as a big-endian u16-length-prefixed frame.
func WriteTCPFrame(w io.Writer, payload []byte) error {
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}

// DecodeHandshake parses a 0x18 payload, returning the announced team
// number. Callers must have already checked payload[0] == PacketHandshake.
func DecodeHandshake(payload []byte) (teamNumber uint16, err error) {
	if len(payload) < 3 {
		return 0, fmt.Errorf("short handshake payload: %d bytes", len(payload))
	}
	return binary.BigEndian.Uint16(payload[1:3]), nil
}

// EncodeStationInfo builds a 0x19 station-info payload.
func EncodeStationInfo(station AllianceStation, status DriverstationStatus) []byte {
	return []byte{PacketStationInfo, station.Byte(), status.Byte()}
}

// EncodeEventName builds the optional 0x14 operator-supplied event-name
// frame. name is truncated to 255 bytes.
func EncodeEventName(name string) []byte {
	b := []byte(name)
	if len(b) > 255 {
		b = b[:255]
	}
	out := make([]byte, 0, 2+len(b))
	out = append(out, PacketEventName, byte(len(b)))
	out = append(out, b...)
	return out
}

// ConfirmedState is the per-tick-from-DS status digest decoded from an
// inbound UDP packet.
type ConfirmedState struct {
	SequenceNumber uint16
	CommVersion    uint8
	EStopped       bool
	RobotComms     bool
	CanPingRadio   bool
	CanPingRio     bool
	Enabled        bool
	Mode           Mode
	TeamNumber     uint16
	BatteryVolts   float64
}

// minInboundUDPLen is the fixed prefix size: seq(2) + ver(1) + status(1) +
// team(2) + battery(2).
const minInboundUDPLen = 8

// DecodeUDPMessage parses the inbound UDP fixed prefix described in
// spec §6. A payload shorter than the fixed prefix is reported as an
// io.ErrUnexpectedEOF so callers can apply the "short packet, discard
// silently" policy from spec §4.9.
func DecodeUDPMessage(buf []byte) (ConfirmedState, error) {
	if len(buf) < minInboundUDPLen {
		return ConfirmedState{}, io.ErrUnexpectedEOF
	}
	status := buf[3]
	battery := binary.BigEndian.Uint16(buf[6:8])
	return ConfirmedState{
		SequenceNumber: binary.BigEndian.Uint16(buf[0:2]),
		CommVersion:    buf[2],
		EStopped:       status&(1<<7) != 0,
		RobotComms:     status&(1<<5) != 0,
		CanPingRadio:   status&(1<<4) != 0,
		CanPingRio:     status&(1<<3) != 0,
		Enabled:        status&(1<<2) != 0,
		Mode:           ModeFromByte(status),
		TeamNumber:     binary.BigEndian.Uint16(buf[4:6]),
		BatteryVolts:   float64(battery>>8) + float64(battery&0xff)/256.0,
	}, nil
}

// OutboundUDPFields carries every field needed to build the outbound
// control packet; see spec §4.6/§6.
type OutboundUDPFields struct {
	Sequence        uint16
	ControlByte     uint8
	Station         AllianceStation
	Level           TournamentLevel
	MatchNumber     uint16
	PlayNumber      uint8
	Timestamp       time.Time
	TimeRemainingS  uint16
}

// ControlByte builds the outbound control byte from the decoded mode
// and override-aware enabled/estop flags (spec §4.6: bit 2 = enabled
// and not overridden-disabled; bit 7 = estopped or overridden-estopped).
func ControlByte(mode Mode, enabled, estopped bool) uint8 {
	b := mode.Byte()
	if enabled {
		b |= 1 << 2
	}
	if estopped {
		b |= 1 << 7
	}
	return b
}

// EncodeUDPMessage builds the outbound control packet payload.
func EncodeUDPMessage(f OutboundUDPFields) []byte {
	buf := make([]byte, 0, 18)
	var tmp [2]byte

	binary.BigEndian.PutUint16(tmp[:], f.Sequence)
	buf = append(buf, tmp[:]...)
	buf = append(buf, 0) // comm version
	buf = append(buf, f.ControlByte)
	buf = append(buf, 0) // request byte
	buf = append(buf, f.Station.Byte())
	buf = append(buf, f.Level.Byte())

	binary.BigEndian.PutUint16(tmp[:], f.MatchNumber)
	buf = append(buf, tmp[:]...)
	buf = append(buf, f.PlayNumber)

	us := uint32(f.Timestamp.Nanosecond() / 1000)
	var usBuf [4]byte
	binary.BigEndian.PutUint32(usBuf[:], us)
	buf = append(buf, usBuf[:]...)
	buf = append(buf, uint8(f.Timestamp.Second()))
	buf = append(buf, uint8(f.Timestamp.Minute()))
	buf = append(buf, uint8(f.Timestamp.Hour()))
	buf = append(buf, uint8(f.Timestamp.Day()))
	buf = append(buf, uint8(int(f.Timestamp.Month())-1))
	buf = append(buf, uint8(f.Timestamp.Year()-1900))

	binary.BigEndian.PutUint16(tmp[:], f.TimeRemainingS)
	buf = append(buf, tmp[:]...)

	return buf
}
