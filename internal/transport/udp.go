package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/kmorris/sdrctl/internal/observability"
)

// UDPConfig configures the data-channel listener.
type UDPConfig struct {
	ListenAddr    string
	ReadBuffer    int
	MessageBuffer int
}

func DefaultUDPConfig(listenAddr string) UDPConfig {
	return UDPConfig{
		ListenAddr:    listenAddr,
		ReadBuffer:    8192,
		MessageBuffer: 256,
	}
}

// UDPData is the datagram channel. Start opens the socket and runs a
// cancelable receive loop; the socket and cancellation handle are released
// on every exit path. Datagrams the consumer cannot keep up with are
// dropped, matching the channel's unreliable contract.
type UDPData struct {
	cfg UDPConfig
	log zerolog.Logger

	mu     sync.Mutex
	conn   *net.UDPConn
	msgs   chan []byte
	cancel context.CancelFunc
	done   chan struct{}

	dropped atomic.Uint64
}

func NewUDPData(cfg UDPConfig) *UDPData {
	if cfg.ReadBuffer <= 0 {
		cfg.ReadBuffer = 8192
	}
	if cfg.MessageBuffer <= 0 {
		cfg.MessageBuffer = 256
	}
	return &UDPData{
		cfg: cfg,
		log: observability.Component("transport.udp").With().Str("addr", cfg.ListenAddr).Logger(),
	}
}

func (d *UDPData) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil {
		return ErrAlreadyListening
	}

	addr, err := net.ResolveUDPAddr("udp", d.cfg.ListenAddr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	msgs := make(chan []byte, d.cfg.MessageBuffer)
	done := make(chan struct{})
	d.conn, d.msgs, d.cancel, d.done = conn, msgs, cancel, done

	// Cancellation closes the socket, which unblocks the receive loop.
	go func() {
		<-runCtx.Done()
		_ = conn.Close()
	}()
	go d.listen(conn, msgs, done)
	return nil
}

func (d *UDPData) listen(conn *net.UDPConn, msgs chan<- []byte, done chan struct{}) {
	defer close(done)
	defer close(msgs)
	buf := make([]byte, d.cfg.ReadBuffer)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				d.log.Error().Err(err).Msg("receive failed, stopping listener")
				_ = conn.Close()
			}
			return
		}
		datagram := make([]byte, n)
		copy(datagram, buf[:n])
		select {
		case msgs <- datagram:
		default:
			d.dropped.Add(1)
		}
	}
}

// Stop cancels the listening loop and waits for it to release its resources.
// Safe to call when the loop is not running.
func (d *UDPData) Stop() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.conn, d.msgs, d.cancel, d.done = nil, nil, nil, nil
	d.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (d *UDPData) Messages() <-chan []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.msgs
}

// Dropped reports datagrams discarded because the consumer fell behind.
func (d *UDPData) Dropped() uint64 {
	return d.dropped.Load()
}

// LocalAddr returns the bound socket address while listening.
func (d *UDPData) LocalAddr() net.Addr {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil
	}
	return d.conn.LocalAddr()
}
