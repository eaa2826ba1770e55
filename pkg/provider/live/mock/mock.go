// Package mock provides test doubles for the live package interfaces.
//
// Use Provider to verify Connect calls and hand out a controllable Conn.
// Use Conn to push inbound messages, simulate remote closes and transport
// errors, and inspect the audio chunks that were sent.
//
// Example:
//
//	conn := mock.NewConn()
//	p := &mock.Provider{Conn: conn}
//	c, _ := p.Connect(ctx, live.Config{})
//	conn.Push(live.Message{SetupComplete: true})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/livetutor/pkg/audio"
	"github.com/MrWong99/livetutor/pkg/provider/live"
)

// ConnectCall records a single invocation of Provider.Connect.
type ConnectCall struct {
	// Ctx is the context passed to Connect.
	Ctx context.Context
	// Cfg is the Config passed to Connect.
	Cfg live.Config
}

// Provider is a mock implementation of live.Provider.
type Provider struct {
	mu sync.Mutex

	// Conn is returned by Connect. If nil, Connect returns a new Conn.
	Conn *Conn

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// ConnectCalls records every call to Connect in order.
	ConnectCalls []ConnectCall
}

// Connect records the call and returns Conn, ConnectErr.
func (p *Provider) Connect(ctx context.Context, cfg live.Config) (live.Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Ctx: ctx, Cfg: cfg})
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	if p.Conn == nil {
		p.Conn = NewConn()
	}
	return p.Conn, nil
}

// Calls returns a copy of the recorded Connect calls.
func (p *Provider) Calls() []ConnectCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ConnectCall(nil), p.ConnectCalls...)
}

// Ensure Provider implements live.Provider at compile time.
var _ live.Provider = (*Provider)(nil)

// Conn is a mock implementation of live.Conn.
type Conn struct {
	messages chan live.Message
	pushMu   sync.Mutex
	ended    bool
	done     chan struct{}

	mu sync.Mutex

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	sent       []audio.EncodedChunk
	sentCh     chan audio.EncodedChunk
	errVal     error
	closeCalls int
}

// NewConn returns an open Conn with a buffered message channel.
func NewConn() *Conn {
	return &Conn{
		messages: make(chan live.Message, 64),
		done:     make(chan struct{}),
		sentCh:   make(chan audio.EncodedChunk, 256),
	}
}

// Push delivers an inbound message. It returns false if the connection has
// ended. Push blocks while the message buffer is full.
func (c *Conn) Push(msg live.Message) bool {
	c.pushMu.Lock()
	defer c.pushMu.Unlock()
	if c.ended {
		return false
	}
	c.messages <- msg
	return true
}

// End simulates the remote side closing the connection with err (nil for a
// clean close).
func (c *Conn) End(err error) {
	c.mu.Lock()
	if c.errVal == nil {
		c.errVal = err
	}
	c.mu.Unlock()
	c.pushMu.Lock()
	defer c.pushMu.Unlock()
	if c.ended {
		return
	}
	c.ended = true
	close(c.done)
	close(c.messages)
}

// SendAudio records the chunk or returns SendAudioErr.
func (c *Conn) SendAudio(chunk audio.EncodedChunk) error {
	select {
	case <-c.done:
		return live.ErrClosed
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendAudioErr != nil {
		return c.SendAudioErr
	}
	c.sent = append(c.sent, chunk)
	select {
	case c.sentCh <- chunk:
	default:
	}
	return nil
}

// SetSendAudioErr sets SendAudioErr under the lock.
func (c *Conn) SetSendAudioErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SendAudioErr = err
}

// Sent returns a copy of every successfully sent chunk.
func (c *Conn) Sent() []audio.EncodedChunk {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]audio.EncodedChunk(nil), c.sent...)
}

// SentCh delivers each successfully sent chunk. Chunks beyond the buffer are
// only visible through Sent.
func (c *Conn) SentCh() <-chan audio.EncodedChunk { return c.sentCh }

// Messages implements live.Conn.
func (c *Conn) Messages() <-chan live.Message { return c.messages }

// Err implements live.Conn.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errVal
}

// Close implements live.Conn.
func (c *Conn) Close() error {
	c.mu.Lock()
	c.closeCalls++
	c.mu.Unlock()
	c.End(nil)
	return nil
}

// CloseCalls reports how many times Close was called.
func (c *Conn) CloseCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCalls
}

// Ensure Conn implements live.Conn at compile time.
var _ live.Conn = (*Conn)(nil)
