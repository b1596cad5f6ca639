// Package capture reads newline-delimited telemetry from the radio gateway's
// TCP sources.
package capture

import (
	"bufio"
	"bytes"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/saviobatista/vessel-tracker/internal/logging"
	"github.com/saviobatista/vessel-tracker/internal/types"
)

const (
	DefaultReconnectDelay = 5 * time.Second
	DefaultDialTimeout    = 5 * time.Second
	DefaultMaxLineBytes   = 64 << 10
	bufferSize            = 1000
)

// Options tunes how sources are dialled and read
type Options struct {
	ReconnectDelay time.Duration
	DialTimeout    time.Duration
	// IdleTimeout forces a reconnect when a source sends nothing for this
	// long. Zero waits forever.
	IdleTimeout  time.Duration
	MaxLineBytes int
}

// DefaultOptions returns the options used by New
func DefaultOptions() Options {
	return Options{
		ReconnectDelay: DefaultReconnectDelay,
		DialTimeout:    DefaultDialTimeout,
		MaxLineBytes:   DefaultMaxLineBytes,
	}
}

// Capture represents a network capture instance
type Capture struct {
	sources  []string
	opts     Options
	conns    map[string]net.Conn
	msgChan  chan *types.TelemetryMessage
	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	mu       sync.Mutex
}

// New creates a new Capture instance with default options
func New(sources []string) *Capture {
	return NewWithOptions(sources, DefaultOptions())
}

// NewWithOptions creates a new Capture instance. Zero option values fall
// back to the defaults.
func NewWithOptions(sources []string, opts Options) *Capture {
	defaults := DefaultOptions()
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaults.ReconnectDelay
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaults.DialTimeout
	}
	if opts.MaxLineBytes <= 0 {
		opts.MaxLineBytes = defaults.MaxLineBytes
	}
	return &Capture{
		sources:  sources,
		opts:     opts,
		conns:    make(map[string]net.Conn),
		msgChan:  make(chan *types.TelemetryMessage, bufferSize),
		stopChan: make(chan struct{}),
	}
}

// Start begins reading telemetry lines from all sources
func (c *Capture) Start() error {
	for _, source := range c.sources {
		c.wg.Add(1)
		go c.connectToSource(source)
	}
	return nil
}

// Stop closes every connection, waits for the readers to exit and closes
// the message channel. It is safe to call more than once.
func (c *Capture) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
		c.mu.Lock()
		for _, conn := range c.conns {
			conn.Close()
		}
		c.mu.Unlock()
		c.wg.Wait()
		close(c.msgChan)
	})
}

// Messages returns the channel for receiving captured payloads
func (c *Capture) Messages() <-chan *types.TelemetryMessage {
	return c.msgChan
}

// handleConnectionError records the disconnect and waits before the next
// attempt. It returns false when the capture is stopping.
func (c *Capture) handleConnectionError(connected bool, disconnectTime time.Time) (bool, time.Time, bool) {
	if connected {
		disconnectTime = time.Now()
	}
	select {
	case <-c.stopChan:
		return false, disconnectTime, false
	case <-time.After(c.opts.ReconnectDelay):
		return false, disconnectTime, true
	}
}

// configureTCPKeepalive configures TCP keepalive settings
func (c *Capture) configureTCPKeepalive(conn net.Conn, source string) {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	if err := tcpConn.SetKeepAlive(true); err != nil {
		logging.Warn().Err(err).Str("source", source).Msg("Failed to set keepalive")
	}
	if err := tcpConn.SetKeepAlivePeriod(15 * time.Second); err != nil {
		logging.Warn().Err(err).Str("source", source).Msg("Failed to set keepalive period")
	}
}

// handleSuccessfulConnection logs the (re)connection and resets the
// disconnect time
func (c *Capture) handleSuccessfulConnection(disconnectTime time.Time, source string) time.Time {
	if disconnectTime.IsZero() {
		logging.Info().Str("source", source).Msg("Connected to telemetry source")
		return disconnectTime
	}
	logging.Info().
		Str("source", source).
		Dur("downtime", time.Since(disconnectTime)).
		Msg("Connection to telemetry source reestablished")
	return time.Time{}
}

func (c *Capture) connectToSource(source string) {
	defer c.wg.Done()

	connected := false
	var disconnectTime time.Time
	logging.Info().Str("source", source).Msg("Attempting to connect")

	for {
		select {
		case <-c.stopChan:
			return
		default:
		}

		conn, err := net.DialTimeout("tcp", source, c.opts.DialTimeout)
		if err != nil {
			logging.Debug().Err(err).Str("source", source).Msg("Dial failed")
			var keepGoing bool
			connected, disconnectTime, keepGoing = c.handleConnectionError(connected, disconnectTime)
			if !keepGoing {
				return
			}
			continue
		}

		c.configureTCPKeepalive(conn, source)

		if !c.track(source, conn) {
			conn.Close()
			return
		}
		disconnectTime = c.handleSuccessfulConnection(disconnectTime, source)
		connected = true

		c.handleConnection(source, conn)

		c.mu.Lock()
		delete(c.conns, source)
		c.mu.Unlock()

		var keepGoing bool
		connected, disconnectTime, keepGoing = c.handleConnectionError(connected, disconnectTime)
		if !keepGoing {
			return
		}
	}
}

// track registers conn so Stop can close it. It returns false when the
// capture has already been stopped.
func (c *Capture) track(source string, conn net.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.stopChan:
		return false
	default:
	}
	c.conns[source] = conn
	return true
}

func (c *Capture) handleConnection(source string, conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, min(4096, c.opts.MaxLineBytes)), c.opts.MaxLineBytes)

	for {
		if c.opts.IdleTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(c.opts.IdleTimeout)); err != nil {
				logging.Warn().Err(err).Str("source", source).Msg("Failed to set read deadline")
			}
		}

		if !scanner.Scan() {
			c.logReadError(source, scanner.Err())
			return
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		// The scanner reuses its buffer
		payload := make([]byte, len(line))
		copy(payload, line)

		select {
		case c.msgChan <- &types.TelemetryMessage{
			Payload:    payload,
			Source:     source,
			ReceivedAt: time.Now().UTC(),
		}:
		case <-c.stopChan:
			return
		}
	}
}

func (c *Capture) logReadError(source string, err error) {
	select {
	case <-c.stopChan:
		return
	default:
	}

	var netErr net.Error
	switch {
	case err == nil:
		logging.Warn().Str("source", source).Msg("Telemetry source closed the connection")
	case errors.Is(err, bufio.ErrTooLong):
		logging.Warn().Str("source", source).Int("max_bytes", c.opts.MaxLineBytes).Msg("Telemetry line too long, reconnecting")
	case errors.As(err, &netErr) && netErr.Timeout():
		logging.Warn().Str("source", source).Dur("idle_timeout", c.opts.IdleTimeout).Msg("Telemetry source idle, reconnecting")
	default:
		logging.Warn().Err(err).Str("source", source).Msg("Telemetry source read failed")
	}
}
