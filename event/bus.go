// Package event fans committed lifecycle events out to in-process observers.
package event

import (
	"errors"
	"fmt"
	"sync"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/calehh/hac-vote/types"
)

const (
	QueueSize      = 64
	AsyncQueueSize = 1024

	// All subscribes to every event type.
	All = "*"
)

var ErrBusStopped = errors.New("event bus stopped")

type SubscriberID int

type HandlerFunc func(types.Event)

// Subscriber receives events from the bus. Close must be idempotent.
type Subscriber interface {
	Deliver(types.Event) error
	Close()
}

// channelSubscriber blocks the publisher while its buffer is full. A send
// still blocked when the bus stops is abandoned.
type channelSubscriber struct {
	ch     chan types.Event
	done   <-chan struct{}
	mu     sync.RWMutex
	closed bool
}

func newChannelSubscriber(buffer int, done <-chan struct{}) *channelSubscriber {
	return &channelSubscriber{ch: make(chan types.Event, buffer), done: done}
}

func (c *channelSubscriber) Deliver(ev types.Event) (err error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("channel deliver panic: %v", r)
		}
	}()
	select {
	case c.ch <- ev:
		return nil
	case <-c.done:
		return ErrBusStopped
	}
}

func (c *channelSubscriber) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}

type Bus struct {
	logger  cmtlog.Logger
	metrics *busMetrics

	mu          sync.RWMutex
	subscribers map[string]map[SubscriberID]Subscriber
	lastID      SubscriberID

	queue   chan types.Event
	stopCh  chan struct{}
	wg      sync.WaitGroup
	stopMu  sync.Mutex
	stopped bool
}

// NewBus starts the bus with a single async worker so queued events keep
// their order.
func NewBus(reg prometheus.Registerer, logger cmtlog.Logger) *Bus {
	b := &Bus{
		logger:      logger.With("module", "event"),
		subscribers: make(map[string]map[SubscriberID]Subscriber),
		queue:       make(chan types.Event, AsyncQueueSize),
		stopCh:      make(chan struct{}),
	}
	if reg != nil {
		b.metrics = newBusMetrics(reg)
	}
	b.wg.Add(1)
	go b.worker()
	return b
}

func (b *Bus) worker() {
	defer b.wg.Done()
	for {
		select {
		case <-b.stopCh:
			return
		case ev := <-b.queue:
			b.Publish(ev)
		}
	}
}

func (b *Bus) add(eventType string, sub Subscriber, kind string) SubscriberID {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastID++
	id := b.lastID
	if _, ok := b.subscribers[eventType]; !ok {
		b.subscribers[eventType] = make(map[SubscriberID]Subscriber)
	}
	b.subscribers[eventType][id] = sub
	if b.metrics != nil {
		b.metrics.subscribers.WithLabelValues(eventType, kind).Inc()
	}
	return id
}

// Subscribe returns a buffered channel of events of eventType, or of every
// type when eventType is All.
func (b *Bus) Subscribe(eventType string) (SubscriberID, <-chan types.Event) {
	sub := newChannelSubscriber(QueueSize, b.stopCh)
	return b.add(eventType, sub, "channel"), sub.ch
}

func (b *Bus) SubscribeFunc(eventType string, fn HandlerFunc) SubscriberID {
	id, ch := b.Subscribe(eventType)
	go func() {
		for ev := range ch {
			fn(ev)
		}
	}()
	return id
}

// Register attaches an external subscriber such as a network relay.
func (b *Bus) Register(eventType string, sub Subscriber) SubscriberID {
	return b.add(eventType, sub, "external")
}

func (b *Bus) Unsubscribe(eventType string, id SubscriberID) {
	b.mu.Lock()
	var sub Subscriber
	if subs, ok := b.subscribers[eventType]; ok {
		if s, ok := subs[id]; ok {
			sub = s
			delete(subs, id)
			if len(subs) == 0 {
				delete(b.subscribers, eventType)
			}
			if b.metrics != nil {
				b.metrics.subscribers.WithLabelValues(eventType, kindOf(s)).Dec()
			}
		}
	}
	b.mu.Unlock()
	if sub != nil {
		sub.Close()
	}
}

func kindOf(s Subscriber) string {
	if _, ok := s.(*channelSubscriber); ok {
		return "channel"
	}
	return "external"
}

type target struct {
	key string
	id  SubscriberID
	sub Subscriber
}

// Publish delivers each event to its subscribers in order. A subscriber whose
// delivery fails is dropped.
func (b *Bus) Publish(events ...types.Event) {
	for _, ev := range events {
		b.publish(ev)
	}
}

func (b *Bus) publish(ev types.Event) {
	et := ev.EventType()
	b.mu.RLock()
	var targets []target
	for _, key := range []string{et, All} {
		for id, sub := range b.subscribers[key] {
			targets = append(targets, target{key, id, sub})
		}
	}
	b.mu.RUnlock()

	for _, t := range targets {
		var err error
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("subscriber deliver panic: %v", r)
				}
			}()
			err = t.sub.Deliver(ev)
		}()
		if err != nil {
			b.logger.Debug("event delivery fail", "type", et, "proposal", ev.Proposal(), "err", err)
			if b.metrics != nil {
				b.metrics.deliveryErrors.WithLabelValues(et, kindOf(t.sub)).Inc()
			}
			b.Unsubscribe(t.key, t.id)
		}
	}
	if b.metrics != nil {
		b.metrics.events.WithLabelValues(et).Inc()
	}
}

// PublishAsync queues events for the worker. It returns false when the bus is
// stopped or the queue is full; the events are dropped in that case.
func (b *Bus) PublishAsync(events ...types.Event) bool {
	b.stopMu.Lock()
	defer b.stopMu.Unlock()
	if b.stopped {
		return false
	}
	for _, ev := range events {
		select {
		case b.queue <- ev:
		default:
			b.logger.Error("event queue full, dropping event", "type", ev.EventType(), "proposal", ev.Proposal())
			if b.metrics != nil {
				b.metrics.deliveryErrors.WithLabelValues(ev.EventType(), "dropped").Inc()
			}
			return false
		}
	}
	return true
}

// Stop halts the worker and closes every subscriber. Queued events that were
// not yet delivered are discarded.
func (b *Bus) Stop() {
	b.stopMu.Lock()
	if b.stopped {
		b.stopMu.Unlock()
		return
	}
	b.stopped = true
	close(b.stopCh)
	b.stopMu.Unlock()
	b.wg.Wait()

	b.mu.Lock()
	subs := b.subscribers
	b.subscribers = make(map[string]map[SubscriberID]Subscriber)
	b.mu.Unlock()
	for _, m := range subs {
		for _, s := range m {
			s.Close()
		}
	}
	if b.metrics != nil {
		b.metrics.subscribers.Reset()
	}
}
