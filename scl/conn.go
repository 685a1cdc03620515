package scl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/amp-labs/amp-common/retry"
)

// ErrClosed is returned for commands issued after Close.
var ErrClosed = errors.New("scl: connection closed")

// Conn is a command/response link to one motor drive. Implementations are
// not safe for concurrent use; each axis controller owns its Conn
// exclusively.
//
// Implementations:
//   - TCPConn: persistent Ethernet link (drives listen on port 7776)
//   - SerialConn: RS-232/RS-485 link via tarm/serial
//   - test fakes inside package motor
type Conn interface {
	// Exec sends one command and returns the drive's reply payload.
	Exec(cmd string) (string, error)

	// Send sends one command without waiting for a reply. Used for
	// commands such as RE (reset) that do not answer.
	Send(cmd string) error

	Close() error
}

// DefaultPort is the TCP port Applied Motion drives listen on.
const DefaultPort = 7776

// TCPConfig configures a TCP drive connection.
type TCPConfig struct {
	// Address is host:port; a bare host gets DefaultPort appended.
	Address string

	// IOTimeout bounds each command round trip.
	IOTimeout time.Duration

	// DialAttempts is the total number of connection attempts before
	// giving up (the drive's Ethernet stack drops connections while the
	// motor is power cycling).
	DialAttempts uint
}

func (c *TCPConfig) withDefaults() {
	if c.IOTimeout <= 0 {
		c.IOTimeout = 5 * time.Second
	}
	if c.DialAttempts == 0 {
		c.DialAttempts = 5
	}
	if _, _, err := net.SplitHostPort(c.Address); err != nil {
		c.Address = fmt.Sprintf("%s:%d", c.Address, DefaultPort)
	}
}

// TCPConn is a persistent Ethernet connection to one drive.
type TCPConn struct {
	cfg  TCPConfig
	mu   sync.Mutex
	conn net.Conn
	rd   *bufio.Reader
}

// DialTCP connects to a drive, retrying with backoff while the drive's
// network stack comes up.
func DialTCP(ctx context.Context, cfg TCPConfig) (*TCPConn, error) {
	cfg.withDefaults()

	var conn net.Conn
	err := retry.Do(ctx, func(ctx context.Context) error {
		d := net.Dialer{Timeout: cfg.IOTimeout}
		c, err := d.DialContext(ctx, "tcp", cfg.Address)
		if err != nil {
			return err
		}
		conn = c
		return nil
	},
		retry.WithAttempts(retry.Attempts(cfg.DialAttempts)),
		retry.WithBackoff(retry.ExpBackoff{
			Base:   200 * time.Millisecond,
			Max:    2 * time.Second,
			Factor: 2,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("scl: dial %s: %w", cfg.Address, err)
	}

	return &TCPConn{cfg: cfg, conn: conn, rd: bufio.NewReader(conn)}, nil
}

// Exec sends one framed command and reads the reply up to the terminator.
func (t *TCPConn) Exec(cmd string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.write(cmd); err != nil {
		return "", err
	}

	if err := t.conn.SetReadDeadline(time.Now().Add(t.cfg.IOTimeout)); err != nil {
		return "", err
	}
	raw, err := t.rd.ReadBytes(Terminator)
	if err != nil {
		return "", fmt.Errorf("scl: read from %s: %w", t.cfg.Address, err)
	}
	return DecodeFrame(raw)
}

// Send sends one framed command without reading a reply.
func (t *TCPConn) Send(cmd string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.write(cmd)
}

func (t *TCPConn) write(cmd string) error {
	if t.conn == nil {
		return fmt.Errorf("scl: %s: %w", t.cfg.Address, ErrClosed)
	}
	frame, err := EncodeFrame(cmd)
	if err != nil {
		return err
	}
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.cfg.IOTimeout)); err != nil {
		return err
	}
	if _, err := t.conn.Write(frame); err != nil {
		return fmt.Errorf("scl: write to %s: %w", t.cfg.Address, err)
	}
	return nil
}

// Close closes the underlying connection.
func (t *TCPConn) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}
