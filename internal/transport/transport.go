// Package transport owns the command-channel and data-channel media the
// protocol client is wired to. Inbound bytes are published on a message
// channel instead of a callback, so receivers never run on the socket's
// own I/O path.
package transport

import (
	"context"
	"errors"
)

var (
	ErrNotConnected     = errors.New("transport: not connected")
	ErrAlreadyListening = errors.New("transport: listening loop already running")
)

// Control is the reliable, ordered command channel to the device. Messages
// yields one complete wire frame per receive; the channel closes when the
// connection drops or is deliberately closed.
type Control interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Connected() bool
	Send(frame []byte) error
	Messages() <-chan []byte
}

// Data is the unreliable datagram channel carrying bulk IQ payloads.
// Start spawns the listening loop; Stop cancels it and blocks until its
// resources are released. Messages yields one datagram per receive and
// closes when the loop exits, by any path.
type Data interface {
	Start(ctx context.Context) error
	Stop()
	Messages() <-chan []byte
}
