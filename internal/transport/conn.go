// Package transport owns the persistent line-oriented connection to one
// access point's rate control daemon.
package transport

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/airtap/ratectl/internal/util"
)

// maxLineBytes bounds a single telemetry line; anything longer is a protocol
// violation and tears the session down for a reconnect.
const maxLineBytes = 4096

const (
	dialTimeout  = 5 * time.Second
	writeTimeout = 5 * time.Second
)

// ErrNotConnected is returned for commands issued while the session is down.
// Callers treat it as transient; the reconnect loop will restore the link.
var ErrNotConnected = errors.New("access point not connected")

// LineHandler consumes one received line. The buffer is only valid for the
// duration of the call.
type LineHandler func(ap string, line []byte)

type Config struct {
	AP               string
	Host             string
	Port             int
	ReconnectTimeout time.Duration
}

// Conn is one access point session with automatic reconnection. Reads happen
// on the goroutine running Run; writes are serialized by a mutex so commands
// issued for a station keep their issuance order on the wire.
type Conn struct {
	cfg    Config
	logger util.Logger

	mu   sync.Mutex
	conn net.Conn

	// onConnect runs after each successful dial, before the read loop;
	// the runtime uses it to start the telemetry stream on each radio.
	onConnect func()
	// onDisconnect runs after a session drops.
	onDisconnect func()
}

func NewConn(cfg Config, logger util.Logger) *Conn {
	if cfg.ReconnectTimeout <= 0 {
		cfg.ReconnectTimeout = 10 * time.Second
	}
	return &Conn{cfg: cfg, logger: logger}
}

// OnConnect registers the post-dial hook. Must be called before Run.
func (c *Conn) OnConnect(fn func()) { c.onConnect = fn }

// OnDisconnect registers the session-drop hook. Must be called before Run.
func (c *Conn) OnDisconnect(fn func()) { c.onDisconnect = fn }

// AP returns the access point identity this connection serves.
func (c *Conn) AP() string { return c.cfg.AP }

// SendCommand writes one command line to the device. Implements
// station.CommandSink.
func (c *Conn) SendCommand(cmd string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := c.conn.Write(append([]byte(cmd), '\n')); err != nil {
		return err
	}
	return nil
}

// Run dials the access point and feeds received lines to the handler,
// reconnecting with a fixed timeout until the context is cancelled.
func (c *Conn) Run(ctx context.Context, handler LineHandler) {
	addr := util.NetJoin(c.cfg.Host, c.cfg.Port)
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := c.dial(ctx, addr)
		if err != nil {
			c.logger.Error("connect failed", "ap", c.cfg.AP, "addr", addr, "error", err)
			if !sleepCtx(ctx, c.cfg.ReconnectTimeout) {
				return
			}
			continue
		}

		c.logger.Info("connected", "ap", c.cfg.AP, "addr", addr)
		c.setConn(conn)
		if c.onConnect != nil {
			c.onConnect()
		}

		err = c.readLoop(ctx, conn, handler)
		c.setConn(nil)
		_ = conn.Close()
		if c.onDisconnect != nil {
			c.onDisconnect()
		}
		if ctx.Err() != nil {
			return
		}
		c.logger.Error("disconnected", "ap", c.cfg.AP, "error", err)
		if !sleepCtx(ctx, c.cfg.ReconnectTimeout) {
			return
		}
	}
}

func (c *Conn) dial(ctx context.Context, addr string) (net.Conn, error) {
	dialer := net.Dialer{
		Timeout: dialTimeout,
		Control: controlSocket,
	}
	return dialer.DialContext(ctx, "tcp", addr)
}

func (c *Conn) setConn(conn net.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Conn) readLoop(ctx context.Context, conn net.Conn, handler LineHandler) error {
	// Unblock a pending read when the context goes away.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, maxLineBytes), maxLineBytes)
	for scanner.Scan() {
		handler(c.cfg.AP, scanner.Bytes())
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return errors.New("connection closed by peer")
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
