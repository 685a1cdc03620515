// Wire framing for the SCL ASCII command language spoken by Applied Motion
// drives. Each command travels as a two-byte opcode header (0x00 0x07),
// the ASCII command text, and a carriage-return terminator.
package scl

import (
	"errors"
	"fmt"
)

const (
	// Opcode header prepended to every SCL frame.
	headerHi = 0x00
	headerLo = 0x07

	// Terminator closes every frame in both directions.
	Terminator = 0x0D

	// MaxCommandLen bounds a single command's ASCII payload.
	MaxCommandLen = 64
)

var (
	ErrEmptyCommand   = errors.New("scl: empty command")
	ErrCommandTooLong = errors.New("scl: command too long")
	ErrBadFrame       = errors.New("scl: malformed frame")
)

// EncodeFrame wraps an ASCII command in an SCL frame.
func EncodeFrame(cmd string) ([]byte, error) {
	if cmd == "" {
		return nil, ErrEmptyCommand
	}
	if len(cmd) > MaxCommandLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrCommandTooLong, len(cmd))
	}

	buf := make([]byte, 0, len(cmd)+3)
	buf = append(buf, headerHi, headerLo)
	buf = append(buf, cmd...)
	buf = append(buf, Terminator)
	return buf, nil
}

// DecodeFrame strips the SCL framing from a received buffer and returns the
// ASCII payload. Drives echo the same opcode header on responses; a frame
// without the header is accepted as bare ASCII for resilience against
// drives configured for raw serial mode.
func DecodeFrame(frame []byte) (string, error) {
	if len(frame) == 0 {
		return "", ErrBadFrame
	}

	if frame[len(frame)-1] == Terminator {
		frame = frame[:len(frame)-1]
	}
	if len(frame) >= 2 && frame[0] == headerHi && frame[1] == headerLo {
		frame = frame[2:]
	}
	if len(frame) == 0 {
		return "", ErrBadFrame
	}
	return string(frame), nil
}
