package bt

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/routine"
	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/telemetry"
)

// GATT layout of the cable trainer. Commands are written without response to
// the control characteristic; monitor and rep frames arrive as notifications.
const (
	ServiceUUIDTrainer  = "6e400001-b5a3-f393-e0a9-e50e24dcca9e"
	CharUUIDControl     = "6e400002-b5a3-f393-e0a9-e50e24dcca9e"
	CharUUIDMonitor     = "6e400003-b5a3-f393-e0a9-e50e24dcca9e"
	CharUUIDRepNotifier = "6e400004-b5a3-f393-e0a9-e50e24dcca9e"
)

// Control opcodes, first byte of every command frame.
const (
	OpStart       byte = 0x03
	OpStop        byte = 0x50
	OpReset       byte = 0x0a
	OpClearFault  byte = 0x0b
	OpWeight      byte = 0x4f
	OpProgramMode byte = 0x04
)

const (
	monitorFrameLen = 12
	repFrameLen     = 4

	// Wire units: position 0.1 mm, velocity 0.1 mm/s, force and weight 0.01 kg.
	positionScale = 10
	velocityScale = 10
	forceScale    = 100

	maxWeightKg = 655.35
)

// EncodeStart, EncodeStop, EncodeReset and EncodeClearFault build the
// parameterless command frames.
func EncodeStart() []byte      { return []byte{OpStart} }
func EncodeStop() []byte       { return []byte{OpStop} }
func EncodeReset() []byte      { return []byte{OpReset} }
func EncodeClearFault() []byte { return []byte{OpClearFault} }

// EncodeWeight builds a weight frame: opcode, uint16 LE weight per cable in
// 0.01 kg.
func EncodeWeight(kgPerCable float64) ([]byte, error) {
	if kgPerCable < 0 || kgPerCable > maxWeightKg || math.IsNaN(kgPerCable) {
		return nil, fmt.Errorf("weight %.2f kg out of range", kgPerCable)
	}
	buf := make([]byte, 3)
	buf[0] = OpWeight
	binary.LittleEndian.PutUint16(buf[1:], uint16(math.Round(kgPerCable*forceScale)))
	return buf, nil
}

// EncodeProgramMode builds a program frame: opcode, mode byte.
func EncodeProgramMode(mode routine.ProgramMode) ([]byte, error) {
	code, ok := programCodes[mode]
	if !ok {
		return nil, fmt.Errorf("program mode %v has no device code", mode)
	}
	return []byte{OpProgramMode, code}, nil
}

var programCodes = map[routine.ProgramMode]byte{
	routine.ProgramOldSchool:     0x00,
	routine.ProgramPump:          0x02,
	routine.ProgramTUT:           0x03,
	routine.ProgramTUTBeast:      0x04,
	routine.ProgramEccentricOnly: 0x05,
	routine.ProgramEcho:          0x0a,
}

// DecodeMonitor parses a monitor notification:
//
//	[0:4]   uint32 device ticks (ms, unused)
//	[4:6]   uint16 position, 0.1 mm
//	[6:8]   int16  velocity, 0.1 mm/s
//	[8:10]  uint16 force per cable, 0.01 kg
//	[10:12] uint16 status flags
//
// The sample is stamped with at, the receive time.
func DecodeMonitor(buf []byte, at time.Time) (telemetry.Sample, uint16, error) {
	if len(buf) < monitorFrameLen {
		return telemetry.Sample{}, 0, fmt.Errorf("monitor frame too short: %d bytes", len(buf))
	}
	le := binary.LittleEndian
	return telemetry.Sample{
		Timestamp: at,
		Position:  float64(le.Uint16(buf[4:6])) / positionScale,
		Velocity:  float64(int16(le.Uint16(buf[6:8]))) / velocityScale,
		Force:     float64(le.Uint16(buf[8:10])) / forceScale,
	}, le.Uint16(buf[10:12]), nil
}

// EncodeMonitor is the inverse of DecodeMonitor.
func EncodeMonitor(ticks uint32, s telemetry.Sample, status uint16) []byte {
	buf := make([]byte, monitorFrameLen)
	le := binary.LittleEndian
	le.PutUint32(buf[0:4], ticks)
	le.PutUint16(buf[4:6], uint16(math.Round(s.Position*positionScale)))
	le.PutUint16(buf[6:8], uint16(int16(math.Round(s.Velocity*velocityScale))))
	le.PutUint16(buf[8:10], uint16(math.Round(s.Force*forceScale)))
	le.PutUint16(buf[10:12], status)
	return buf
}

// Status flags of the monitor frame.
const (
	StatusFault uint16 = 1 << 0
)

// DecodeRep parses a rep notification: uint16 LE top counter, uint16 LE
// bottom counter. Both restart at the start command and wrap after 0xFFFF.
func DecodeRep(buf []byte, at time.Time) (telemetry.RepEvent, error) {
	if len(buf) < repFrameLen {
		return telemetry.RepEvent{}, fmt.Errorf("rep frame too short: %d bytes", len(buf))
	}
	return telemetry.RepEvent{
		Timestamp:   at,
		TopCounter:  int(binary.LittleEndian.Uint16(buf[0:2])),
		BottomCount: int(binary.LittleEndian.Uint16(buf[2:4])),
	}, nil
}

// EncodeRep is the inverse of DecodeRep.
func EncodeRep(top, bottom int) []byte {
	buf := make([]byte, repFrameLen)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(top))
	binary.LittleEndian.PutUint16(buf[2:4], uint16(bottom))
	return buf
}

// describeCommand names a command frame for the log.
func describeCommand(frame []byte) string {
	if len(frame) == 0 {
		return "empty"
	}
	switch frame[0] {
	case OpStart:
		return "start"
	case OpStop:
		return "stop"
	case OpReset:
		return "reset"
	case OpClearFault:
		return "clear_fault"
	case OpWeight:
		if len(frame) >= 3 {
			return fmt.Sprintf("weight %.2f kg", float64(binary.LittleEndian.Uint16(frame[1:3]))/forceScale)
		}
		return "weight (malformed)"
	case OpProgramMode:
		return "program"
	default:
		return fmt.Sprintf("unknown opcode 0x%02x", frame[0])
	}
}
