package presence

import (
	"context"
	"fmt"
	"sync"
)

// subscriber is one registered callback.
type subscriber struct {
	id int
	fn func()
}

// notifier delivers zero-payload signals to callbacks registered per topic.
// Delivery is synchronous, in registration order.
type notifier struct {
	mu     sync.Mutex
	nextID int
	topics map[string][]subscriber
	logger Logger
}

func newNotifier(logger Logger) *notifier {
	return &notifier{
		topics: make(map[string][]subscriber),
		logger: logger,
	}
}

// subscribe registers fn on topic and returns a function that removes it.
// The returned function is idempotent.
func (n *notifier) subscribe(topic string, fn func()) func() {
	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.topics[topic] = append(n.topics[topic], subscriber{id: id, fn: fn})
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()

			subs := n.topics[topic]
			for i, s := range subs {
				if s.id == id {
					// Copy so an in-flight publish keeps its own slice.
					next := make([]subscriber, 0, len(subs)-1)
					next = append(next, subs[:i]...)
					next = append(next, subs[i+1:]...)
					n.topics[topic] = next
					break
				}
			}
			if len(n.topics[topic]) == 0 {
				delete(n.topics, topic)
			}
		})
	}
}

// publish calls every subscriber of topic. A panicking subscriber is logged
// and does not stop delivery to the rest.
func (n *notifier) publish(topic string) {
	n.mu.Lock()
	subs := n.topics[topic]
	n.mu.Unlock()

	for _, s := range subs {
		n.call(topic, s.fn)
	}
}

func (n *notifier) call(topic string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("presence subscriber panicked",
				"topic", topic,
				"panic", fmt.Sprint(r),
			)
		}
	}()
	fn()
}

// asyncWorker runs one subscriber's callback on its own goroutine.
// Signals arriving while fn runs collapse into one pending run.
type asyncWorker struct {
	pending  chan struct{}
	quit     chan struct{}
	exited   chan struct{}
	stopOnce sync.Once
}

// async starts a worker for fn that lives until ctx is done or stop is called.
func (n *notifier) async(ctx context.Context, topic string, fn func()) *asyncWorker {
	w := &asyncWorker{
		pending: make(chan struct{}, 1),
		quit:    make(chan struct{}),
		exited:  make(chan struct{}),
	}

	go func() {
		defer close(w.exited)
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.quit:
				return
			case <-w.pending:
				n.call(topic, fn)
			}
		}
	}()
	return w
}

// signal queues a run unless one is already pending.
func (w *asyncWorker) signal() {
	select {
	case w.pending <- struct{}{}:
	default:
	}
}

// stop ends the worker after any run in progress. It does not wait.
func (w *asyncWorker) stop() {
	w.stopOnce.Do(func() { close(w.quit) })
}
