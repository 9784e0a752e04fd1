package bus

import (
	"context"
	"fmt"
	"sync"
)

// Conn is one endpoint of an in-process duplex pipe. Only encoded frames
// travel through it — the two endpoints share no memory beyond the channels
// themselves.
type Conn struct {
	out chan<- []byte
	in  <-chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

// NewPipe creates the two connected endpoints. buffer sizes each direction;
// sends block once the peer's inbox is full.
func NewPipe(buffer int) (a, b *Conn) {
	ab := make(chan []byte, buffer)
	ba := make(chan []byte, buffer)
	a = &Conn{out: ab, in: ba, done: make(chan struct{})}
	b = &Conn{out: ba, in: ab, done: make(chan struct{})}
	return a, b
}

// Send encodes and transmits a message. Returns an error if the message does
// not serialize, the context ends, or this endpoint is closed.
func (c *Conn) Send(ctx context.Context, msg Message) error {
	frame, err := Encode(msg)
	if err != nil {
		return err
	}
	return c.SendFrame(ctx, frame)
}

// SendFrame transmits an already-encoded frame without validating it. The
// receiver's Decode is the validation boundary.
func (c *Conn) SendFrame(ctx context.Context, frame []byte) error {
	select {
	case c.out <- frame:
		return nil
	case <-c.done:
		return fmt.Errorf("send frame: connection closed")
	case <-ctx.Done():
		return fmt.Errorf("send frame: %w", ctx.Err())
	}
}

// Inbound exposes the raw frames arriving from the peer. The channel is
// never closed by the peer; consumers select against their own lifecycle.
func (c *Conn) Inbound() <-chan []byte {
	return c.in
}

// Close releases this endpoint. Pending Sends unblock with an error.
func (c *Conn) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}
