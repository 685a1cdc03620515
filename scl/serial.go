package scl

import (
	"bytes"
	"fmt"
	"time"

	"github.com/tarm/serial"
)

// SerialConfig configures an RS-232/RS-485 drive connection.
type SerialConfig struct {
	// Device path (e.g. "/dev/ttyUSB0", "COM3").
	Device string

	// Baud rate; drives default to 9600.
	Baud int

	// ReadTimeout bounds a single read; the reply loop keeps reading
	// until the terminator arrives or IOTimeout elapses overall.
	ReadTimeout time.Duration

	// IOTimeout bounds a full command round trip.
	IOTimeout time.Duration
}

func (c *SerialConfig) withDefaults() {
	if c.Baud == 0 {
		c.Baud = 9600
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 100 * time.Millisecond
	}
	if c.IOTimeout <= 0 {
		c.IOTimeout = 5 * time.Second
	}
}

// SerialConn is a serial connection to one drive.
type SerialConn struct {
	cfg  SerialConfig
	port *serial.Port
}

// OpenSerial opens a serial drive connection.
func OpenSerial(cfg SerialConfig) (*SerialConn, error) {
	cfg.withDefaults()

	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("scl: open %s: %w", cfg.Device, err)
	}
	return &SerialConn{cfg: cfg, port: port}, nil
}

// Exec sends one framed command and accumulates the reply until the
// terminator byte arrives.
func (s *SerialConn) Exec(cmd string) (string, error) {
	if err := s.Send(cmd); err != nil {
		return "", err
	}

	var acc bytes.Buffer
	deadline := time.Now().Add(s.cfg.IOTimeout)
	buf := make([]byte, 64)
	for {
		n, err := s.port.Read(buf)
		if n > 0 {
			acc.Write(buf[:n])
			if i := bytes.IndexByte(acc.Bytes(), Terminator); i >= 0 {
				return DecodeFrame(acc.Bytes()[:i+1])
			}
		}
		if err != nil && n == 0 {
			// tarm/serial returns io.EOF on a read timeout tick
			if time.Now().After(deadline) {
				return "", fmt.Errorf("scl: read from %s timed out", s.cfg.Device)
			}
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("scl: read from %s timed out", s.cfg.Device)
		}
	}
}

// Send sends one framed command without reading a reply.
func (s *SerialConn) Send(cmd string) error {
	frame, err := EncodeFrame(cmd)
	if err != nil {
		return err
	}
	if _, err := s.port.Write(frame); err != nil {
		return fmt.Errorf("scl: write to %s: %w", s.cfg.Device, err)
	}
	return nil
}

// Close closes the serial port.
func (s *SerialConn) Close() error {
	return s.port.Close()
}
