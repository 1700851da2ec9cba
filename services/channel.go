package services

import (
	"context"
	"errors"
	"sync"

	"hotel-price-tracker/models"
	"hotel-price-tracker/scraper"
)

// ErrReceiverNotReady is returned by Send while nobody handles messages
var ErrReceiverNotReady = errors.New("receiver not ready")

// MessageKind names the messages exchanged between page agents, the control
// surfaces and the coordinator
type MessageKind string

const (
	KindPriceUpdate   MessageKind = "PriceUpdate"
	KindForceRefresh  MessageKind = "ForceRefresh"
	KindTrackURL      MessageKind = "TrackURL"
	KindResetSchedule MessageKind = "ResetSchedule"
)

// Message is a single request on the channel. Only the fields of its kind are set.
type Message struct {
	Kind     MessageKind
	Handle   scraper.PageHandle     // PriceUpdate: the page that produced the snapshot
	Snapshot *models.HotelSnapshot // PriceUpdate
	URL      string                 // TrackURL
}

// Response acknowledges a message
type Response struct {
	OK      bool
	Started int // ForceRefresh: number of cycles started
}

// Handler processes one message
type Handler func(ctx context.Context, msg Message) (Response, error)

// Channel delivers messages to a single registered handler
type Channel interface {
	Send(ctx context.Context, msg Message) (Response, error)
	OnMessage(handler Handler) (unsubscribe func())
}

// LocalChannel is an in-process Channel
type LocalChannel struct {
	mu      sync.RWMutex
	handler Handler
	gen     int
}

func NewLocalChannel() *LocalChannel {
	return &LocalChannel{}
}

func (c *LocalChannel) Send(ctx context.Context, msg Message) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	c.mu.RLock()
	h := c.handler
	c.mu.RUnlock()
	if h == nil {
		return Response{}, ErrReceiverNotReady
	}
	return h(ctx, msg)
}

// OnMessage replaces the current handler. Unsubscribing a handler that was
// already replaced is a no-op.
func (c *LocalChannel) OnMessage(handler Handler) func() {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.handler = handler
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.gen == gen {
			c.handler = nil
		}
	}
}
