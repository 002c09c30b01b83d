package descriptor

import (
	"bytes"
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// Wire layout of the 24-byte flat descriptor (all integers big-endian):
//
//	[0:4]   magic "TCP\x02"
//	[4:6]   version
//	[6:10]  command_hash  (fingerprint, never a lookup key)
//	[10:14] security_flags
//	[14:16] exec_time_ms  (saturating)
//	[16:18] memory_mb     (saturating)
//	[18:20] output_kb     (saturating)
//	[20:22] reserved
//	[22:24] checksum over [0:22]
const (
	FlatSize = 24

	// Version is the current wire version. Any change to field layout or
	// to the flag table bumps it; unknown versions are rejected outright.
	Version uint16 = 2

	checksumOffset = 22
)

var flatMagic = [4]byte{'T', 'C', 'P', 0x02}

// PerformanceHints carries coarse resource estimates for a command. These
// are hints, never measured values; each field saturates at 65535 on encode.
type PerformanceHints struct {
	ExecTimeMs uint16
	MemoryMB   uint16
	OutputKB   uint16
}

// Flat is a decoded 24-byte flat descriptor.
type Flat struct {
	CommandHash  [4]byte
	Risk         RiskLevel
	Capabilities CapabilitySet
	Performance  PerformanceHints
}

// SaturateU16 clamps v to the u16 range. Overflow saturates rather than
// wraps: a 90-second estimate must not read back as a fast command.
func SaturateU16(v uint64) uint16 {
	if v > 0xFFFF {
		return 0xFFFF
	}
	return uint16(v)
}

// Fingerprint returns the first 4 bytes of the BLAKE2b-256 digest of data.
// It is a collision-tolerant debugging aid, not an identity.
func Fingerprint(data string) [4]byte {
	sum := blake2b.Sum256([]byte(data))
	var fp [4]byte
	copy(fp[:], sum[:4])
	return fp
}

// Encode builds the 24-byte flat descriptor for a command.
func Encode(command string, risk RiskLevel, caps CapabilitySet, perf PerformanceHints) [FlatSize]byte {
	var buf [FlatSize]byte
	copy(buf[0:4], flatMagic[:])
	binary.BigEndian.PutUint16(buf[4:6], Version)

	fp := Fingerprint(command)
	copy(buf[6:10], fp[:])

	binary.BigEndian.PutUint32(buf[10:14], EncodeFlags(risk, caps))
	binary.BigEndian.PutUint16(buf[14:16], perf.ExecTimeMs)
	binary.BigEndian.PutUint16(buf[16:18], perf.MemoryMB)
	binary.BigEndian.PutUint16(buf[18:20], perf.OutputKB)
	// [20:22] reserved, zero

	binary.BigEndian.PutUint16(buf[22:24], CRC16(buf[:checksumOffset]))
	return buf
}

// Decode parses and validates a flat descriptor. The checksum is verified
// before any other field is trusted; on any error the returned Flat is nil
// and no partially populated result ever escapes.
func Decode(data []byte) (*Flat, error) {
	if len(data) != FlatSize {
		return nil, &LengthError{Want: FlatSize, Got: len(data)}
	}
	if !bytes.Equal(data[0:4], flatMagic[:]) {
		var m [4]byte
		copy(m[:], data[0:4])
		return nil, &FormatError{Magic: m}
	}

	// The magic identifies the format; the checksum then gates every
	// remaining field, version included. A flipped version byte on an
	// otherwise valid record is corruption, not a foreign version.
	want := CRC16(data[:checksumOffset])
	got := binary.BigEndian.Uint16(data[22:24])
	if want != got {
		return nil, &CorruptDescriptor{Want: want, Got: got}
	}

	if v := binary.BigEndian.Uint16(data[4:6]); v != Version {
		return nil, &VersionError{Version: v}
	}

	risk, caps := DecodeFlags(binary.BigEndian.Uint32(data[10:14]))
	f := &Flat{
		Risk:         risk,
		Capabilities: caps,
		Performance: PerformanceHints{
			ExecTimeMs: binary.BigEndian.Uint16(data[14:16]),
			MemoryMB:   binary.BigEndian.Uint16(data[16:18]),
			OutputKB:   binary.BigEndian.Uint16(data[18:20]),
		},
	}
	copy(f.CommandHash[:], data[6:10])
	return f, nil
}

// Validate decodes data and discards the result, reporting only whether it
// is a trustworthy flat descriptor.
func Validate(data []byte) error {
	_, err := Decode(data)
	return err
}

// CRC16 computes the CRC-16/ANSI checksum (reflected polynomial 0xA001,
// initial value 0xFFFF). Detects all single-bit errors in the input.
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}
