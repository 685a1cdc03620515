// Package trigger is the client side of the discharge timing server: a
// line-oriented TCP protocol where every command opens a fresh
// connection, sends one newline-terminated command, and reads a
// single-line reply.
package trigger

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/amp-labs/amp-common/retry"
)

// DefaultPort is the timing server's listen port.
const DefaultPort = 5000

// Replies the server is known to send.
const (
	replyOK        = "OK"
	replyReady     = "READY"
	replyTriggered = "TRIGGERED"
	replyTestPass  = "TEST_PASS"
	replyTestFail  = "TEST_FAIL"
)

// Config configures a trigger client.
type Config struct {
	// Address is host:port; a bare host gets DefaultPort appended.
	Address string

	// Timeout bounds one dial-send-receive exchange.
	Timeout time.Duration

	// Attempts is the total number of tries per command.
	Attempts uint

	Logger *slog.Logger
}

func (c *Config) withDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.Attempts == 0 {
		c.Attempts = 3
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if _, _, err := net.SplitHostPort(c.Address); err != nil {
		c.Address = fmt.Sprintf("%s:%d", c.Address, DefaultPort)
	}
}

// Client sends commands to the timing server. Safe for concurrent use;
// there is no connection state to share.
type Client struct {
	addr     string
	timeout  time.Duration
	attempts uint
	log      *slog.Logger
}

// New returns a client for the timing server at cfg.Address.
func New(cfg Config) *Client {
	cfg.withDefaults()
	return &Client{
		addr:     cfg.Address,
		timeout:  cfg.Timeout,
		attempts: cfg.Attempts,
		log:      cfg.Logger,
	}
}

// Send issues one command and returns the server's reply line. Transport
// failures are retried with backoff up to the configured attempt budget.
func (c *Client) Send(ctx context.Context, cmd string) (string, error) {
	var reply string
	err := retry.Do(ctx, func(ctx context.Context) error {
		r, err := c.exchange(ctx, cmd)
		if err != nil {
			c.log.Warn("trigger exchange failed", "cmd", cmd, "error", err)
			return err
		}
		reply = r
		return nil
	},
		retry.WithAttempts(retry.Attempts(c.attempts)),
		retry.WithBackoff(retry.ExpBackoff{
			Base:   500 * time.Millisecond,
			Max:    2 * time.Second,
			Factor: 2,
		}),
	)
	if err != nil {
		return "", fmt.Errorf("trigger: %s: %w", cmd, err)
	}
	return reply, nil
}

func (c *Client) exchange(ctx context.Context, cmd string) (string, error) {
	d := net.Dialer{Timeout: c.timeout}
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return "", err
	}
	if _, err := fmt.Fprintf(conn, "%s\n", cmd); err != nil {
		return "", err
	}
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Pulse fires one trigger and verifies the acknowledgement.
func (c *Client) Pulse(ctx context.Context) error {
	reply, err := c.Send(ctx, "TRIG")
	if err != nil {
		return err
	}
	if reply != replyOK {
		return fmt.Errorf("trigger: unexpected TRIG reply %q", reply)
	}
	return nil
}

// Ready checks that the server reports itself ready to fire.
func (c *Client) Ready(ctx context.Context) error {
	reply, err := c.Send(ctx, "STATUS")
	if err != nil {
		return err
	}
	if reply != replyReady {
		return fmt.Errorf("trigger: server not ready: %q", reply)
	}
	return nil
}

// SelfTest runs the server's self-test and reports the verdict.
func (c *Client) SelfTest(ctx context.Context) (bool, error) {
	reply, err := c.Send(ctx, "TEST")
	if err != nil {
		return false, err
	}
	switch reply {
	case replyTestPass:
		return true, nil
	case replyTestFail:
		return false, nil
	default:
		return false, fmt.Errorf("trigger: unexpected TEST reply %q", reply)
	}
}

// WaitTriggered polls the server until it reports a received trigger or
// the timeout elapses. Returns false on timeout without error.
func (c *Client) WaitTriggered(ctx context.Context, timeout, interval time.Duration) (bool, error) {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		reply, err := c.Send(ctx, "WAIT_TRIG")
		if err != nil {
			return false, err
		}
		if reply == replyTriggered {
			return true, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(interval):
		}
	}
	return false, nil
}
