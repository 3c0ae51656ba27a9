package transport

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kmorris/sdrctl/internal/observability"
	"github.com/kmorris/sdrctl/internal/protocol"
)

// TCPConfig configures the command-channel connection.
type TCPConfig struct {
	Address            string
	ConnectTimeout     time.Duration
	WriteTimeout       time.Duration
	MaxConnectAttempts int
	Backoff            BackoffConfig
	MessageBuffer      int
}

func DefaultTCPConfig(address string) TCPConfig {
	return TCPConfig{
		Address:            address,
		ConnectTimeout:     5 * time.Second,
		WriteTimeout:       10 * time.Second,
		MaxConnectAttempts: 3,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
		MessageBuffer: 64,
	}
}

// TCPControl is the reliable command channel. A reader goroutine reassembles
// whole codec frames from the byte stream and publishes them on the message
// channel; the channel closes when the connection drops.
type TCPControl struct {
	cfg TCPConfig
	log zerolog.Logger
	rng *rand.Rand

	mu   sync.Mutex
	conn net.Conn
	msgs chan []byte
}

func NewTCPControl(cfg TCPConfig) *TCPControl {
	if cfg.MessageBuffer <= 0 {
		cfg.MessageBuffer = 64
	}
	return &TCPControl{
		cfg: cfg,
		log: observability.Component("transport.tcp").With().Str("addr", cfg.Address).Logger(),
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (t *TCPControl) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		return nil
	}

	var attempt int
	for {
		attempt++
		dialer := net.Dialer{Timeout: t.cfg.ConnectTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", t.cfg.Address)
		if err == nil {
			t.conn = conn
			t.msgs = make(chan []byte, t.cfg.MessageBuffer)
			go t.reader(conn, t.msgs)
			return nil
		}
		t.log.Warn().Int("attempt", attempt).Err(err).Msg("dial failed")
		if !t.shouldRetry(attempt) {
			return err
		}
		if err := t.sleepBackoff(ctx, attempt); err != nil {
			return err
		}
	}
}

func (t *TCPControl) shouldRetry(attempt int) bool {
	if t.cfg.MaxConnectAttempts <= 0 {
		return true
	}
	return attempt < t.cfg.MaxConnectAttempts
}

func (t *TCPControl) sleepBackoff(ctx context.Context, attempt int) error {
	delay := t.cfg.Backoff.Delay(attempt, t.rng)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (t *TCPControl) Disconnect() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (t *TCPControl) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

func (t *TCPControl) Send(frame []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	if t.cfg.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout)); err != nil {
			return err
		}
	}
	_, err := conn.Write(frame)
	return err
}

func (t *TCPControl) Messages() <-chan []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.msgs
}

func (t *TCPControl) reader(conn net.Conn, msgs chan<- []byte) {
	defer close(msgs)
	br := bufio.NewReader(conn)
	for {
		var head [protocol.HeaderSize]byte
		if _, err := io.ReadFull(br, head[:]); err != nil {
			t.logReadExit(err)
			return
		}
		_, total := protocol.UnpackHeader(binary.LittleEndian.Uint16(head[:]))
		if total < protocol.HeaderSize {
			t.log.Warn().Int("declared_len", total).Msg("bad frame header, closing")
			_ = conn.Close()
			return
		}
		frame := make([]byte, total)
		copy(frame, head[:])
		if _, err := io.ReadFull(br, frame[protocol.HeaderSize:]); err != nil {
			t.logReadExit(err)
			return
		}
		msgs <- frame
	}
}

func (t *TCPControl) logReadExit(err error) {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		t.log.Debug().Msg("connection closed")
		return
	}
	t.log.Error().Err(err).Msg("read failed")
}
