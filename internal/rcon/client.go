// Package rcon implements the binary request/reply console protocol used to
// issue text commands against the live game server. The client is
// deliberately narrow: one authenticated connection per logical command,
// single-packet replies, no multiplexing. Replies carry no usable request
// id, so two in-flight commands on one connection would corrupt pairing.
package rcon

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/time/rate"
)

// AuthError reports a rejected authentication handshake. It is fatal for
// the connection attempt and never retried by the client.
type AuthError struct {
	Addr string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("rcon: authentication rejected by %s", e.Addr)
}

// ConnError wraps a transport-level failure during connect or execute.
type ConnError struct {
	Op   string
	Addr string
	Err  error
}

func (e *ConnError) Error() string {
	return fmt.Sprintf("rcon: %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *ConnError) Unwrap() error { return e.Err }

// Client dials short-lived authenticated console connections. The zero
// value is not usable; construct with NewClient.
type Client struct {
	addr     string
	password string
	timeout  time.Duration
	limiter  *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-operation dial and I/O deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithRateLimit throttles Run calls so a burst of lifecycle operations
// cannot flood the console.
func WithRateLimit(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// NewClient builds a client for the console at host:port using the shared
// secret. Nothing is dialed until Dial or Run.
func NewClient(host string, port int, password string, opts ...Option) *Client {
	c := &Client{
		addr:     net.JoinHostPort(host, fmt.Sprintf("%d", port)),
		password: password,
		timeout:  10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Conn is one authenticated console connection. It supports a single
// in-flight command at a time and must not be shared across goroutines.
type Conn struct {
	nc      net.Conn
	timeout time.Duration
}

// Dial opens a TCP connection and performs the authentication handshake:
// exactly one auth packet out, exactly one reply in. A reply with request
// id -1 means the secret was rejected; the connection is closed and an
// AuthError returned.
func (c *Client) Dial(ctx context.Context) (*Conn, error) {
	d := net.Dialer{Timeout: c.timeout}
	nc, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, &ConnError{Op: "dial", Addr: c.addr, Err: err}
	}
	conn := &Conn{nc: nc, timeout: c.timeout}
	reply, err := conn.roundTrip(packetTypeAuth, c.password)
	if err != nil {
		_ = nc.Close()
		return nil, &ConnError{Op: "auth", Addr: c.addr, Err: err}
	}
	if reply.ID == -1 {
		_ = nc.Close()
		return nil, &AuthError{Addr: c.addr}
	}
	return conn, nil
}

// Execute sends one command packet and returns the body of the single reply
// packet. Any I/O error leaves the connection unusable.
func (conn *Conn) Execute(ctx context.Context, command string) (string, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.nc.SetDeadline(deadline)
	}
	reply, err := conn.roundTrip(packetTypeCommand, command)
	if err != nil {
		return "", &ConnError{Op: "execute", Addr: conn.nc.RemoteAddr().String(), Err: err}
	}
	return reply.Body, nil
}

// Close tears the connection down.
func (conn *Conn) Close() error {
	return conn.nc.Close()
}

func (conn *Conn) roundTrip(typ int32, body string) (packet, error) {
	if conn.timeout > 0 {
		_ = conn.nc.SetDeadline(time.Now().Add(conn.timeout))
	}
	if _, err := conn.nc.Write(encodePacket(requestID, typ, body)); err != nil {
		return packet{}, fmt.Errorf("write: %w", err)
	}
	return readPacket(conn.nc)
}

// Run dials, executes one command, and closes the connection. This is the
// per-call pattern every lifecycle operation uses; callers needing ordered
// commands issue sequential Run calls.
func (c *Client) Run(ctx context.Context, command string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}
	conn, err := c.Dial(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = conn.Close() }()
	return conn.Execute(ctx, command)
}
