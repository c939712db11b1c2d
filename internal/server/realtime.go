package server

import (
	"context"
	"sync"
	"time"
)

const (
	realtimeEventResults   = "results"
	realtimeEventHeartbeat = "heartbeat"
)

// ResultsMessage notifies stream subscribers that an election's tally changed.
// It carries no ballot content; subscribers re-read the tally themselves.
type ResultsMessage struct {
	ElectionID uint
	Timestamp  time.Time
}

// ResultsDispatcher fans results-changed notifications out to the live
// results streams of one election. Slow subscribers drop messages rather than
// block the cast path.
type ResultsDispatcher struct {
	mu          sync.RWMutex
	subscribers map[uint]map[int64]*resultsSubscriber
	nextID      int64
	bufferSize  int
}

type resultsSubscriber struct {
	id     int64
	stream chan ResultsMessage
}

// NewResultsDispatcher constructs an empty dispatcher.
func NewResultsDispatcher() *ResultsDispatcher {
	return &ResultsDispatcher{
		subscribers: make(map[uint]map[int64]*resultsSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers a stream for one election until the context is done.
func (d *ResultsDispatcher) Subscribe(ctx context.Context, electionID uint) (<-chan ResultsMessage, func()) {
	if electionID == 0 {
		ch := make(chan ResultsMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &resultsSubscriber{
		id:     d.nextSequence(),
		stream: make(chan ResultsMessage, d.bufferSize),
	}
	d.registerSubscriber(electionID, subscriber)
	cleanup := func() {
		d.unregisterSubscriber(electionID, subscriber.id)
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers the message to every subscriber of the election.
func (d *ResultsDispatcher) Publish(message ResultsMessage) {
	if message.ElectionID == 0 {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[message.ElectionID]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*resultsSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

func (d *ResultsDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *ResultsDispatcher) registerSubscriber(electionID uint, subscriber *resultsSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[electionID]; !ok {
		d.subscribers[electionID] = make(map[int64]*resultsSubscriber)
	}
	d.subscribers[electionID][subscriber.id] = subscriber
}

func (d *ResultsDispatcher) unregisterSubscriber(electionID uint, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[electionID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, electionID)
		}
	}
	d.mu.Unlock()
}
