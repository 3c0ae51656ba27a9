package client

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/kmorris/sdrctl/internal/protocol"
	"github.com/kmorris/sdrctl/internal/testutil/testlog"
	"github.com/kmorris/sdrctl/internal/transport"
)

type fakeControl struct {
	mu         sync.Mutex
	connected  bool
	sent       [][]byte
	msgs       chan []byte
	connectErr error
	sendErr    error
	onSend     func([]byte)
}

func (f *fakeControl) Connect(ctx context.Context) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		f.connected = true
		f.msgs = make(chan []byte, 16)
	}
	return nil
}

func (f *fakeControl) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connected {
		f.connected = false
		close(f.msgs)
	}
	return nil
}

func (f *fakeControl) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeControl) Send(frame []byte) error {
	f.mu.Lock()
	if f.sendErr != nil {
		f.mu.Unlock()
		return f.sendErr
	}
	f.sent = append(f.sent, frame)
	hook := f.onSend
	f.mu.Unlock()
	if hook != nil {
		hook(frame)
	}
	return nil
}

func (f *fakeControl) Messages() <-chan []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.msgs
}

func (f *fakeControl) deliver(frame []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs <- frame
}

func (f *fakeControl) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeControl) sentFrame(i int) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[i]
}

type fakeData struct {
	mu      sync.Mutex
	running bool
	starts  int
	stops   int
	msgs    chan []byte
}

func (f *fakeData) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return transport.ErrAlreadyListening
	}
	f.running = true
	f.starts++
	f.msgs = make(chan []byte, 16)
	return nil
}

func (f *fakeData) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		f.running = false
		f.stops++
		close(f.msgs)
	}
}

func (f *fakeData) Messages() <-chan []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.msgs
}

func (f *fakeData) deliver(datagram []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs <- datagram
}

func (f *fakeData) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}

func newTestClient(t *testing.T, ctl *fakeControl, data *fakeData, cfg Config) *Client {
	t.Helper()
	c, err := New(ctl, data, cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(c.Disconnect)
	return c
}

func TestConnectSendsSetupSequence(t *testing.T) {
	testlog.Start(t)
	ctl := &fakeControl{}
	c := newTestClient(t, ctl, &fakeData{}, DefaultConfig())

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if !c.Connected() {
		t.Fatalf("expected connected state")
	}
	if got := ctl.sentCount(); got != 3 {
		t.Fatalf("setup frames sent: %d, want 3", got)
	}
	wantKinds := []protocol.Kind{protocol.KindGet, protocol.KindGet, protocol.KindSet}
	wantItems := []protocol.ControlItem{
		protocol.ItemReceiverState,
		protocol.ItemReceiverFrequency,
		protocol.ItemIQOutputMode,
	}
	for i := 0; i < 3; i++ {
		msg, ok := protocol.Parse(ctl.sentFrame(i))
		if !ok {
			t.Fatalf("setup frame %d does not parse", i)
		}
		if msg.Kind != wantKinds[i] || msg.Item != wantItems[i] {
			t.Fatalf("setup frame %d: kind=%v item=%#x", i, msg.Kind, int16(msg.Item))
		}
	}
}

func TestConnectPropagatesDialError(t *testing.T) {
	testlog.Start(t)
	dialErr := errors.New("dial refused")
	ctl := &fakeControl{connectErr: dialErr}
	c := newTestClient(t, ctl, &fakeData{}, DefaultConfig())

	if err := c.Connect(context.Background()); !errors.Is(err, dialErr) {
		t.Fatalf("expected dial error, got %v", err)
	}
	if c.Connected() {
		t.Fatalf("connected after failed dial")
	}
}

func TestSetFrequencyCorrelated(t *testing.T) {
	testlog.Start(t)
	ctl := &fakeControl{}
	ackBody := []byte{0x01, 0x30, 0xB1, 0x3F, 0x06, 0x00}
	ctl.onSend = func(frame []byte) {
		msg, ok := protocol.Parse(frame)
		if !ok || msg.Kind != protocol.KindSet || msg.Item != protocol.ItemReceiverFrequency {
			return
		}
		ctl.deliver(protocol.EncodeControlItem(protocol.KindAck, protocol.ItemReceiverFrequency, ackBody))
	}
	c := newTestClient(t, ctl, &fakeData{}, DefaultConfig())
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	body, err := c.SetFrequency(context.Background(), 104_500_000, 1)
	if err != nil {
		t.Fatalf("set frequency: %v", err)
	}
	if !bytes.Equal(body, ackBody) {
		t.Fatalf("ack body mismatch: %x", body)
	}
	if got := ctl.sentCount(); got != 4 {
		t.Fatalf("frames sent: %d, want 4 (3 setup + 1 tune)", got)
	}
	tune, ok := protocol.Parse(ctl.sentFrame(3))
	if !ok {
		t.Fatalf("tune frame does not parse")
	}
	if tune.Body[0] != 1 {
		t.Fatalf("tune channel: %d", tune.Body[0])
	}
	wantFreq := []byte{0xA0, 0xC9, 0x3A, 0x06, 0x00}
	if !bytes.Equal(tune.Body[1:], wantFreq) {
		t.Fatalf("tune frequency bytes: %x, want %x", tune.Body[1:], wantFreq)
	}
	if got := c.Status().FrequencyHz; got != 104_500_000 {
		t.Fatalf("status frequency: %d", got)
	}
}

func TestSetFrequencyNotConnected(t *testing.T) {
	testlog.Start(t)
	ctl := &fakeControl{}
	c := newTestClient(t, ctl, &fakeData{}, DefaultConfig())

	body, err := c.SetFrequency(context.Background(), 7_100_000, 0)
	if err != nil {
		t.Fatalf("expected silent empty result, got %v", err)
	}
	if body != nil {
		t.Fatalf("expected empty result, got %x", body)
	}
	if got := ctl.sentCount(); got != 0 {
		t.Fatalf("frames sent while disconnected: %d", got)
	}
}

func TestSetFrequencyAckTimeout(t *testing.T) {
	testlog.Start(t)
	ctl := &fakeControl{}
	cfg := DefaultConfig()
	cfg.AckTimeout = 50 * time.Millisecond
	c := newTestClient(t, ctl, &fakeData{}, cfg)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	if _, err := c.SetFrequency(context.Background(), 7_100_000, 0); !errors.Is(err, ErrAckTimeout) {
		t.Fatalf("expected ErrAckTimeout, got %v", err)
	}
}

func TestSetFrequencyOutOfRange(t *testing.T) {
	testlog.Start(t)
	c := newTestClient(t, &fakeControl{}, &fakeData{}, DefaultConfig())
	if _, err := c.SetFrequency(context.Background(), 1<<40, 0); !errors.Is(err, ErrFrequencyRange) {
		t.Fatalf("expected ErrFrequencyRange, got %v", err)
	}
}

func TestSetFrequencySendErrorPropagates(t *testing.T) {
	testlog.Start(t)
	ctl := &fakeControl{}
	c := newTestClient(t, ctl, &fakeData{}, DefaultConfig())
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	sendErr := errors.New("broken pipe")
	ctl.mu.Lock()
	ctl.sendErr = sendErr
	ctl.mu.Unlock()

	if _, err := c.SetFrequency(context.Background(), 7_100_000, 0); !errors.Is(err, sendErr) {
		t.Fatalf("expected send error, got %v", err)
	}
}

func TestStartStopIQLifecycle(t *testing.T) {
	testlog.Start(t)
	ctl := &fakeControl{}
	data := &fakeData{}
	c := newTestClient(t, ctl, data, DefaultConfig())
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	if err := c.StartIQ(context.Background()); err != nil {
		t.Fatalf("start iq: %v", err)
	}
	if !c.Streaming() {
		t.Fatalf("streaming should be on")
	}
	if starts, _ := data.counts(); starts != 1 {
		t.Fatalf("listening loop starts: %d", starts)
	}
	// Starting again while streaming is a no-op.
	if err := c.StartIQ(context.Background()); err != nil {
		t.Fatalf("repeat start iq: %v", err)
	}
	if starts, _ := data.counts(); starts != 1 {
		t.Fatalf("listening loop restarted while streaming")
	}

	if err := c.StopIQ(); err != nil {
		t.Fatalf("stop iq: %v", err)
	}
	if c.Streaming() {
		t.Fatalf("streaming should be off")
	}
	if _, stops := data.counts(); stops != 1 {
		t.Fatalf("listening loop stops: %d", stops)
	}
	// Stopping while not streaming is a no-op.
	if err := c.StopIQ(); err != nil {
		t.Fatalf("repeat stop iq: %v", err)
	}
	if _, stops := data.counts(); stops != 1 {
		t.Fatalf("listening loop stopped twice")
	}
}

func TestStartIQNotConnected(t *testing.T) {
	testlog.Start(t)
	ctl := &fakeControl{}
	data := &fakeData{}
	c := newTestClient(t, ctl, data, DefaultConfig())

	if err := c.StartIQ(context.Background()); err != nil {
		t.Fatalf("start iq: %v", err)
	}
	if c.Streaming() {
		t.Fatalf("streaming on without a connection")
	}
	if got := ctl.sentCount(); got != 0 {
		t.Fatalf("frames sent while disconnected: %d", got)
	}
	if starts, _ := data.counts(); starts != 0 {
		t.Fatalf("listening loop started while disconnected")
	}
}

func TestStopIQNotConnected(t *testing.T) {
	testlog.Start(t)
	ctl := &fakeControl{}
	data := &fakeData{}
	c := newTestClient(t, ctl, data, DefaultConfig())

	if err := c.StopIQ(); err != nil {
		t.Fatalf("stop iq: %v", err)
	}
	if got := ctl.sentCount(); got != 0 {
		t.Fatalf("frames sent while disconnected: %d", got)
	}
	if _, stops := data.counts(); stops != 0 {
		t.Fatalf("listening loop stopped while disconnected")
	}
}

func TestUnsolicitedReplyDiscarded(t *testing.T) {
	testlog.Start(t)
	ctl := &fakeControl{}
	c := newTestClient(t, ctl, &fakeData{}, DefaultConfig())
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	ctl.deliver(protocol.EncodeControlItem(protocol.KindAck, protocol.ItemReceiverState, []byte{1}))
	ctl.deliver(protocol.EncodeControlItem(protocol.KindAck, protocol.ItemCurrentControlItem, nil))
	ctl.deliver(protocol.EncodeDataItem(protocol.KindDataItem2, []byte{0, 0, 9}))
	ctl.deliver([]byte{0xFF})
	time.Sleep(50 * time.Millisecond)

	if !c.Connected() {
		t.Fatalf("unsolicited traffic changed connection state")
	}
	if c.Streaming() {
		t.Fatalf("unsolicited traffic changed streaming state")
	}

	// Correlation still works after discarded replies.
	ackBody := []byte{0xAB}
	ctl.mu.Lock()
	ctl.onSend = func(frame []byte) {
		ctl.deliver(protocol.EncodeControlItem(protocol.KindAck, protocol.ItemReceiverFrequency, ackBody))
	}
	ctl.mu.Unlock()
	body, err := c.SetFrequency(context.Background(), 7_100_000, 0)
	if err != nil {
		t.Fatalf("set frequency after unsolicited traffic: %v", err)
	}
	if !bytes.Equal(body, ackBody) {
		t.Fatalf("ack body mismatch: %x", body)
	}
}

func TestDatagramDecodedToSamples(t *testing.T) {
	testlog.Start(t)
	ctl := &fakeControl{}
	data := &fakeData{}
	c := newTestClient(t, ctl, data, DefaultConfig())
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := c.StartIQ(context.Background()); err != nil {
		t.Fatalf("start iq: %v", err)
	}

	// Sequence 0x0001, then two 16-bit samples.
	data.deliver(protocol.EncodeDataItem(protocol.KindDataItem0, []byte{0x01, 0x00, 0x01, 0x02, 0x03, 0x04}))

	select {
	case block := <-c.Samples():
		want := []int32{0x0201, 0x0403}
		if !slices.Equal(block, want) {
			t.Fatalf("samples %#x, want %#x", block, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for samples")
	}
	if got := c.Status().DatagramsReceived; got != 1 {
		t.Fatalf("datagrams received: %d", got)
	}
}

func TestDatagramOverflowDropsBlocks(t *testing.T) {
	testlog.Start(t)
	ctl := &fakeControl{}
	data := &fakeData{}
	cfg := DefaultConfig()
	cfg.SampleBuffer = 1
	c := newTestClient(t, ctl, data, cfg)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := c.StartIQ(context.Background()); err != nil {
		t.Fatalf("start iq: %v", err)
	}

	// Nothing reads Samples: the first block parks in the buffer and the
	// rest must be dropped rather than block the dispatch loop.
	for i := 0; i < 4; i++ {
		data.deliver(protocol.EncodeDataItem(protocol.KindDataItem0, []byte{byte(i), 0x00, 0x01, 0x02}))
	}

	deadline := time.Now().Add(5 * time.Second)
	for c.Status().DatagramsReceived < 4 {
		if time.Now().After(deadline) {
			t.Fatalf("datagrams received: %d, want 4", c.Status().DatagramsReceived)
		}
		time.Sleep(time.Millisecond)
	}
	if got := c.Status().BlocksDropped; got != 3 {
		t.Fatalf("blocks dropped: %d, want 3", got)
	}
	select {
	case block := <-c.Samples():
		if !slices.Equal(block, []int32{0x0201}) {
			t.Fatalf("buffered block %#x", block)
		}
	default:
		t.Fatalf("expected one buffered block")
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	testlog.Start(t)
	ctl := &fakeControl{}
	data := &fakeData{}
	c := newTestClient(t, ctl, data, DefaultConfig())

	// Never connected: still succeeds.
	c.Disconnect()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := c.StartIQ(context.Background()); err != nil {
		t.Fatalf("start iq: %v", err)
	}
	c.Disconnect()
	if c.Connected() || c.Streaming() {
		t.Fatalf("state not cleared by disconnect")
	}
	if _, stops := data.counts(); stops != 1 {
		t.Fatalf("listening loop stops: %d", stops)
	}
	c.Disconnect()
	if _, stops := data.counts(); stops != 1 {
		t.Fatalf("disconnect stopped the loop twice")
	}
}
