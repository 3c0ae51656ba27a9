// Package client owns the receiver protocol engine: connection and streaming
// state, command/ack correlation on the command channel, and the IQ sample
// pipeline fed by the data channel.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/kmorris/sdrctl/internal/observability"
	"github.com/kmorris/sdrctl/internal/protocol"
	"github.com/kmorris/sdrctl/internal/transport"
)

var (
	ErrAckTimeout     = errors.New("client: ack timeout")
	ErrFrequencyRange = errors.New("client: frequency exceeds 40-bit device range")
	ErrSampleWidth    = errors.New("client: invalid sample bit width")
)

// Receiver-state parameters: complex IQ capture, run/stop, continuous mode.
var (
	startIQParams = []byte{0x80, 0x02, 0x80, 0x00}
	stopIQParams  = []byte{0x00, 0x01, 0x00, 0x00}
)

// Status is a point-in-time session snapshot.
type Status struct {
	Connected         bool   `json:"connected"`
	Streaming         bool   `json:"streaming"`
	FrequencyHz       uint64 `json:"frequency_hz"`
	Channel           uint8  `json:"channel"`
	DatagramsReceived uint64 `json:"datagrams_received"`
	BlocksDropped     uint64 `json:"blocks_dropped"`
}

// Client drives one receiver over an injected command channel and data
// channel. One instance manages one device connection.
type Client struct {
	cfg  Config
	ctl  transport.Control
	data transport.Data
	log  zerolog.Logger

	mu          sync.Mutex
	connected   bool
	streaming   bool
	frequencyHz uint64
	pending     chan protocol.Message

	// reqMu serializes correlated requests; the protocol allows a single
	// in-flight command on the channel.
	reqMu sync.Mutex

	samples       chan []int32
	datagrams     atomic.Uint64
	blocksDropped atomic.Uint64

	wg sync.WaitGroup
}

func New(ctl transport.Control, data transport.Data, cfg Config) (*Client, error) {
	cfg = cfg.WithDefaults()
	if cfg.SampleBitWidth < 1 || cfg.SampleBitWidth > 32 {
		return nil, fmt.Errorf("%w: %d", ErrSampleWidth, cfg.SampleBitWidth)
	}
	return &Client{
		cfg:     cfg,
		ctl:     ctl,
		data:    data,
		log:     observability.Component("client"),
		samples: make(chan []int32, cfg.SampleBuffer),
	}, nil
}

// Connect opens the command channel and issues the receiver setup sequence:
// state query, frequency query, IQ output mode. The setup frames are
// fire-and-forget; nothing waits on their replies.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.ctl.Connect(ctx); err != nil {
		return err
	}
	setup := [][]byte{
		protocol.EncodeControlItem(protocol.KindGet, protocol.ItemReceiverState, nil),
		protocol.EncodeControlItem(protocol.KindGet, protocol.ItemReceiverFrequency, []byte{c.cfg.Channel}),
		protocol.EncodeControlItem(protocol.KindSet, protocol.ItemIQOutputMode, []byte{byte(c.cfg.SampleBitWidth)}),
	}
	for _, frame := range setup {
		if err := c.send(frame); err != nil {
			_ = c.ctl.Disconnect()
			return err
		}
	}

	msgs := c.ctl.Messages()
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	c.wg.Add(1)
	go c.dispatchControl(msgs)
	c.log.Info().Msg("connected")
	return nil
}

// Disconnect tears the session down unconditionally. It is idempotent and
// tolerates never having connected; disconnect is resource cleanup, not a
// protocol exchange.
func (c *Client) Disconnect() {
	c.mu.Lock()
	streaming := c.streaming
	c.streaming = false
	c.connected = false
	c.mu.Unlock()

	if streaming {
		c.data.Stop()
	}
	if err := c.ctl.Disconnect(); err != nil {
		c.log.Debug().Err(err).Msg("disconnect")
	}
	c.wg.Wait()
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) Streaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streaming
}

func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Connected:         c.connected,
		Streaming:         c.streaming,
		FrequencyHz:       c.frequencyHz,
		Channel:           c.cfg.Channel,
		DatagramsReceived: c.datagrams.Load(),
		BlocksDropped:     c.blocksDropped.Load(),
	}
}

// Samples yields decoded IQ sample blocks, one per received datagram.
func (c *Client) Samples() <-chan []int32 {
	return c.samples
}

// SetFrequency tunes the given channel as a correlated request and returns
// the decoded ack body. Without a connection it sends nothing and returns an
// empty result; that is a logged notice, not a failure.
func (c *Client) SetFrequency(ctx context.Context, frequencyHz uint64, channel uint8) ([]byte, error) {
	if frequencyHz >= 1<<40 {
		return nil, fmt.Errorf("%w: %d", ErrFrequencyRange, frequencyHz)
	}
	params := make([]byte, 6)
	params[0] = channel
	for i := 0; i < 5; i++ {
		params[i+1] = byte(frequencyHz >> (8 * i))
	}
	frame := protocol.EncodeControlItem(protocol.KindSet, protocol.ItemReceiverFrequency, params)

	body, err := c.request(ctx, frame)
	if err == nil && body != nil {
		c.mu.Lock()
		c.frequencyHz = frequencyHz
		c.mu.Unlock()
	}
	return body, err
}

// StartIQ enables IQ output and starts the data-channel listening loop.
// Without a connection it does nothing; connectivity is observed, not forced.
func (c *Client) StartIQ(ctx context.Context) error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		c.log.Warn().Msg("no active connection, streaming not started")
		return nil
	}
	if c.streaming {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	frame := protocol.EncodeControlItem(protocol.KindSet, protocol.ItemReceiverState, startIQParams)
	if err := c.send(frame); err != nil {
		return err
	}
	if err := c.data.Start(ctx); err != nil {
		return err
	}
	msgs := c.data.Messages()

	c.mu.Lock()
	c.streaming = true
	c.mu.Unlock()

	c.wg.Add(1)
	go c.dispatchData(msgs)
	c.log.Info().Msg("iq streaming started")
	return nil
}

// StopIQ disables IQ output and stops the listening loop. Stopping while not
// streaming is a no-op; stopping without a connection leaves listening state
// untouched.
func (c *Client) StopIQ() error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		c.log.Warn().Msg("no active connection, streaming state unchanged")
		return nil
	}
	if !c.streaming {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	frame := protocol.EncodeControlItem(protocol.KindSet, protocol.ItemReceiverState, stopIQParams)
	if err := c.send(frame); err != nil {
		return err
	}
	c.data.Stop()

	c.mu.Lock()
	c.streaming = false
	c.mu.Unlock()
	c.log.Info().Msg("iq streaming stopped")
	return nil
}

func (c *Client) send(frame []byte) error {
	if err := c.ctl.Send(frame); err != nil {
		return err
	}
	observability.RecordControlFrameSent()
	return nil
}

// request performs one correlated command: send, then await the matching
// reply from the dispatch goroutine. Requests are serialized; the single
// pending slot is the whole correlation table.
func (c *Client) request(ctx context.Context, frame []byte) ([]byte, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		c.log.Warn().Msg("no active connection, command not sent")
		return nil, nil
	}
	reply := make(chan protocol.Message, 1)
	c.pending = reply
	c.mu.Unlock()

	if err := c.send(frame); err != nil {
		c.clearPending()
		return nil, err
	}

	timeout := time.NewTimer(c.cfg.AckTimeout)
	defer timeout.Stop()
	select {
	case msg := <-reply:
		if msg.Body == nil {
			return []byte{}, nil
		}
		return msg.Body, nil
	case <-ctx.Done():
		c.clearPending()
		return nil, ctx.Err()
	case <-timeout.C:
		c.clearPending()
		return nil, ErrAckTimeout
	}
}

func (c *Client) clearPending() {
	c.mu.Lock()
	c.pending = nil
	c.mu.Unlock()
}

func (c *Client) dispatchControl(msgs <-chan []byte) {
	defer c.wg.Done()
	for raw := range msgs {
		c.handleControl(raw)
	}
	// Channel closure is the transport's disconnected notification.
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	c.log.Info().Msg("command channel closed")
}

func (c *Client) handleControl(raw []byte) {
	msg, ok := protocol.Parse(raw)
	if !ok {
		observability.RecordControlFrameReceived("malformed")
		c.log.Warn().Int("len", len(raw)).Msg("malformed frame on command channel")
		return
	}

	c.mu.Lock()
	pending := c.pending
	if pending != nil {
		c.pending = nil
	}
	c.mu.Unlock()

	if pending != nil {
		pending <- msg
		observability.RecordControlFrameReceived("correlated")
		return
	}

	// No request in flight: classify for observability only. Discarding is
	// the contract, not an error.
	switch {
	case msg.Item == protocol.ItemCurrentControlItem:
		observability.RecordControlFrameReceived("unsolicited_item")
		c.log.Debug().Msg("current control item notification")
	case msg.Kind == protocol.KindAck:
		observability.RecordControlFrameReceived("unsolicited_ack")
		c.log.Debug().Int16("item", int16(msg.Item)).Msg("ack with no pending request")
	case msg.Kind.HasSequence():
		observability.RecordControlFrameReceived("unsolicited_data")
		c.log.Debug().Uint16("sequence", msg.Sequence).Msg("status stream on command channel")
	default:
		observability.RecordControlFrameReceived("unsolicited_other")
		c.log.Debug().Str("kind", msg.Kind.String()).Msg("other unsolicited message")
	}
}

func (c *Client) dispatchData(msgs <-chan []byte) {
	defer c.wg.Done()
	for raw := range msgs {
		c.handleDatagram(raw)
	}
}

func (c *Client) handleDatagram(raw []byte) {
	msg, ok := protocol.Parse(raw)
	if !ok || !msg.Kind.HasSequence() {
		c.log.Debug().Int("len", len(raw)).Msg("ignoring non-data datagram")
		return
	}
	seq, err := protocol.Samples(c.cfg.SampleBitWidth, msg.Body)
	if err != nil {
		c.log.Error().Err(err).Msg("sample extraction failed")
		return
	}
	block := make([]int32, 0, len(msg.Body)*8/c.cfg.SampleBitWidth)
	for s := range seq {
		block = append(block, s)
	}

	c.datagrams.Add(1)
	observability.RecordDatagram(len(block))
	select {
	case c.samples <- block:
	default:
		c.blocksDropped.Add(1)
		observability.RecordDatagramDropped()
	}
}
