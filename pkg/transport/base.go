package transport

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/librescoot/commwatch/pkg/model"
)

// nextTimestamp hands out strictly increasing monotonic nanosecond
// timestamps, process-wide, so that concurrent handles never observe two
// chunks with an equal or decreasing timestamp within themselves.
var lastTimestamp int64

func nextTimestamp() int64 {
	now := time.Now().UnixNano()
	for {
		prev := atomic.LoadInt64(&lastTimestamp)
		candidate := now
		if candidate <= prev {
			candidate = prev + 1
		}
		if atomic.CompareAndSwapInt64(&lastTimestamp, prev, candidate) {
			return candidate
		}
	}
}

type subscriber struct {
	id       uint64
	callback func(data []byte, meta model.RxMeta)
}

type subscription struct {
	handle *baseHandle
	id     uint64
}

func (s *subscription) Unsubscribe() {
	s.handle.removeSubscriber(s.id)
}

// baseHandle implements the subscriber bookkeeping, stats counters, and
// close semantics shared by every transport's Handle — the mutex-guarded
// state, WaitGroup-joined background goroutine, and idempotent Close
// pattern are grounded on the teacher's pkg/usock/usock.go read loop.
type baseHandle struct {
	mu          sync.Mutex
	subscribers []subscriber
	nextSubID   uint64
	closed      bool
	openedAt    time.Time
	stopChan    chan struct{}
	wg          sync.WaitGroup

	stats model.AdapterStats
}

func newBaseHandle() *baseHandle {
	return &baseHandle{
		openedAt: time.Now(),
		stopChan: make(chan struct{}),
	}
}

func (b *baseHandle) addSubscriber(cb func(data []byte, meta model.RxMeta)) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextSubID
	b.nextSubID++
	b.subscribers = append(b.subscribers, subscriber{id: id, callback: cb})
	return &subscription{handle: b, id: id}
}

func (b *baseHandle) removeSubscriber(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subscribers {
		if s.id == id {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			return
		}
	}
}

// deliver invokes every subscriber, in registration order, with a fresh
// snapshot of subscribers taken under lock. A subscriber panic is
// recovered, logged, and does not block delivery to the rest.
func (b *baseHandle) deliver(data []byte, meta model.RxMeta) {
	b.mu.Lock()
	subs := make([]subscriber, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.Unlock()

	for _, s := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("transport: subscriber panicked: %v", r)
				}
			}()
			s.callback(data, meta)
		}()
	}
}

func (b *baseHandle) recordRx(n int) {
	atomic.AddUint64(&b.stats.BytesRx, uint64(n))
	atomic.AddUint64(&b.stats.MessagesRx, 1)
}

func (b *baseHandle) recordTx(n int) {
	atomic.AddUint64(&b.stats.BytesTx, uint64(n))
	atomic.AddUint64(&b.stats.MessagesTx, 1)
}

func (b *baseHandle) recordError() {
	atomic.AddUint64(&b.stats.Errors, 1)
}

func (b *baseHandle) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// closeBase marks the handle closed, cancels the stop channel once, and
// waits for background goroutines registered via wg to exit. Idempotent.
func (b *baseHandle) closeBase() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.stopChan)
	b.subscribers = nil
	b.mu.Unlock()
	b.wg.Wait()
}

func (b *baseHandle) GetStats() model.AdapterStats {
	return model.AdapterStats{
		BytesRx:    atomic.LoadUint64(&b.stats.BytesRx),
		BytesTx:    atomic.LoadUint64(&b.stats.BytesTx),
		MessagesRx: atomic.LoadUint64(&b.stats.MessagesRx),
		MessagesTx: atomic.LoadUint64(&b.stats.MessagesTx),
		Errors:     atomic.LoadUint64(&b.stats.Errors),
		Uptime:     time.Since(b.openedAt),
	}
}
