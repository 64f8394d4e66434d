package emitter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/alexxgorcea9/primepass/internal/domain"
	"github.com/alexxgorcea9/primepass/pkg/logger"
	"github.com/alexxgorcea9/primepass/pkg/retry"
)

// AsyncEmitter decouples allocation from the broker. Emit stamps the per-event
// Seq and enqueues; a single dispatcher goroutine publishes in enqueue order,
// which preserves the Seq order per event ID on the wire.
type AsyncEmitter struct {
	sink    Emitter
	seq     *sequencer
	queue   chan domain.ChangeEvent
	retrier *retry.Retrier

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

// AsyncEmitterConfig tunes the async emitter
type AsyncEmitterConfig struct {
	// BufferSize is the queue depth; Emit blocks when the queue is full
	BufferSize int
	// Retry controls publish retries; nil uses retry.DefaultConfig
	Retry *retry.Config
}

// NewAsyncEmitter wraps a sink emitter with a buffered dispatch loop
func NewAsyncEmitter(sink Emitter, cfg *AsyncEmitterConfig) *AsyncEmitter {
	bufferSize := 1024
	if cfg != nil && cfg.BufferSize > 0 {
		bufferSize = cfg.BufferSize
	}
	var retryCfg *retry.Config
	if cfg != nil {
		retryCfg = cfg.Retry
	}

	e := &AsyncEmitter{
		sink:    sink,
		seq:     newSequencer(),
		queue:   make(chan domain.ChangeEvent, bufferSize),
		retrier: retry.New(retryCfg),
		stopCh:  make(chan struct{}),
	}

	e.wg.Add(1)
	go e.dispatch()

	return e
}

var _ Emitter = (*AsyncEmitter)(nil)

// Emit stamps the event's Seq and enqueues it. The Seq is assigned here, not
// in the dispatcher, so callers observe the same order the wire will carry.
func (e *AsyncEmitter) Emit(ctx context.Context, event domain.ChangeEvent) error {
	select {
	case <-e.stopCh:
		return fmt.Errorf("emitter is closed")
	default:
	}

	e.seq.assign(&event)

	select {
	case e.queue <- event:
		return nil
	case <-e.stopCh:
		return fmt.Errorf("emitter is closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatch publishes queued events one at a time with retries
func (e *AsyncEmitter) dispatch() {
	defer e.wg.Done()
	log := logger.Get()

	for {
		select {
		case event := <-e.queue:
			e.publish(event, log)
		case <-e.stopCh:
			// Drain what is already queued before exiting
			for {
				select {
				case event := <-e.queue:
					e.publish(event, log)
				default:
					return
				}
			}
		}
	}
}

// publish sends one event, retrying transient failures. A permanently failed
// event is logged and dropped; allocation state is never rolled back for it.
func (e *AsyncEmitter) publish(event domain.ChangeEvent, log *logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	err := e.retrier.Do(ctx, func(ctx context.Context) error {
		return e.sink.Emit(ctx, event)
	})
	if err != nil {
		log.Error("failed to publish change event",
			zap.String("change_type", string(event.Type)),
			zap.String("event_id", event.EventID),
			zap.String("registration_id", event.RegistrationID),
			zap.Uint64("seq", event.Seq),
			zap.Error(err),
		)
	}
}

// Close stops the dispatcher after draining the queue, then closes the sink
func (e *AsyncEmitter) Close() error {
	e.stopOnce.Do(func() {
		close(e.stopCh)
	})
	e.wg.Wait()
	return e.sink.Close()
}
