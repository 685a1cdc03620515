package scl

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Drive reply classifications. A drive answers a buffered command with '*',
// an immediate command with '%', and a rejected command with '?'.
const (
	AckImmediate = "%"
	AckBuffered  = "*"
	Nack         = "?"
)

var ErrNack = errors.New("scl: drive rejected command")

// IsAck reports whether resp is a bare acknowledgement.
func IsAck(resp string) bool {
	r := strings.TrimSpace(resp)
	return r == AckImmediate || r == AckBuffered
}

// IsNack reports whether resp signals a rejected command.
func IsNack(resp string) bool {
	return strings.Contains(resp, Nack)
}

// ParseValue splits a "KEY=value" reply such as "RS=M" or "EP=10000".
func ParseValue(resp string) (key, value string, err error) {
	r := strings.TrimSpace(resp)
	if IsNack(r) {
		return "", "", fmt.Errorf("%w: %q", ErrNack, resp)
	}
	i := strings.IndexByte(r, '=')
	if i <= 0 || i == len(r)-1 {
		return "", "", fmt.Errorf("scl: no value in reply %q", resp)
	}
	return r[:i], r[i+1:], nil
}

// ParseInt returns the integer value of a "KEY=value" reply.
func ParseInt(resp string) (int64, error) {
	_, v, err := ParseValue(resp)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("scl: bad integer in reply %q: %w", resp, err)
	}
	return n, nil
}

// StatusFlags extracts the status letters from an "RS=..." reply.
//
// Letter meanings, per the drive's host command reference:
//
//	A alarm present    D disabled        E drive fault
//	F motor moving     H homing          J jogging
//	M motion running   P in position     R ready
//	S stopping         T wait time       W wait input
func StatusFlags(resp string) (string, error) {
	k, v, err := ParseValue(resp)
	if err != nil {
		return "", err
	}
	if k != "RS" {
		return "", fmt.Errorf("scl: expected RS reply, got %q", resp)
	}
	return v, nil
}
