package store

import (
	"context"
	"sync"
)

const snapshotBufferSize = 16

// snapshotDispatcher fans full-collection snapshots out to subscribers,
// keyed by collection name.
type snapshotDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*snapshotSubscriber
	nextID      int64
}

type snapshotSubscriber struct {
	id     int64
	stream chan Snapshot
}

func newSnapshotDispatcher() *snapshotDispatcher {
	return &snapshotDispatcher{
		subscribers: make(map[string]map[int64]*snapshotSubscriber),
	}
}

func (d *snapshotDispatcher) subscribe(ctx context.Context, collection string) (*snapshotSubscriber, func()) {
	subscriber := &snapshotSubscriber{
		id:     d.nextSequence(),
		stream: make(chan Snapshot, snapshotBufferSize),
	}
	d.register(collection, subscriber)
	cleanup := func() {
		d.unregister(collection, subscriber.id)
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber, cleanup
}

// publish delivers a snapshot to every subscriber of the collection. Sends
// never block; a subscriber whose buffer is full misses the emission and
// catches up on the next one.
func (d *snapshotDispatcher) publish(collection string, snapshot Snapshot) {
	d.mu.RLock()
	subscribers := d.subscribers[collection]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*snapshotSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()

	for _, subscriber := range copies {
		select {
		case subscriber.stream <- snapshot:
		default:
		}
	}
}

func (d *snapshotDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *snapshotDispatcher) register(collection string, subscriber *snapshotSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[collection]; !ok {
		d.subscribers[collection] = make(map[int64]*snapshotSubscriber)
	}
	d.subscribers[collection][subscriber.id] = subscriber
}

func (d *snapshotDispatcher) unregister(collection string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[collection]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, collection)
		}
	}
	d.mu.Unlock()
}
