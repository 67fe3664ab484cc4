package pipeline

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/revisionhiep-create/Project-Astral/internal/logging"
	"github.com/revisionhiep-create/Project-Astral/internal/platform"
)

// defaultQueueDepth bounds how many messages a single channel can have
// waiting before new ones are dropped.
const defaultQueueDepth = 32

// TurnRunner runs one turn to completion. *Pipeline satisfies this.
type TurnRunner interface {
	Turn(ctx context.Context, msg Incoming) Reply
}

// Dispatcher fans inbound messages out to one worker goroutine per
// channel. Within a channel every turn runs to completion, persistence
// included, before the next starts; across channels turns run
// concurrently.
type Dispatcher struct {
	runner    TurnRunner
	messenger platform.Messenger
	depth     int

	mu     sync.Mutex
	queues map[string]chan Incoming
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewDispatcher builds a dispatcher delivering replies through messenger.
func NewDispatcher(runner TurnRunner, messenger platform.Messenger) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)
	return &Dispatcher{
		runner:    runner,
		messenger: messenger,
		depth:     defaultQueueDepth,
		queues:    make(map[string]chan Incoming),
		ctx:       ctx,
		cancel:    cancel,
		group:     group,
	}
}

// Submit queues a message on its channel's worker. Returns false when the
// dispatcher is closed or the channel's queue is full; the message is
// dropped either way.
func (d *Dispatcher) Submit(msg Incoming) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	q, ok := d.queues[msg.ChannelID]
	if !ok {
		q = make(chan Incoming, d.depth)
		d.queues[msg.ChannelID] = q
		d.group.Go(func() error {
			d.work(msg.ChannelID, q)
			return nil
		})
		logging.Pipeline("Started worker for channel=%s", msg.ChannelID)
	}
	d.mu.Unlock()

	select {
	case q <- msg:
		return true
	default:
		logging.Get(logging.CategoryPipeline).Warn(
			"Channel %s queue full, dropping message %s", msg.ChannelID, msg.MessageID)
		return false
	}
}

func (d *Dispatcher) work(channelID string, q chan Incoming) {
	for {
		select {
		case <-d.ctx.Done():
			return
		case msg := <-q:
			reply := d.runner.Turn(d.ctx, msg)
			if reply.Text == "" || d.messenger == nil {
				continue
			}
			if err := d.messenger.Send(d.ctx, channelID, reply.Text); err != nil {
				logging.Get(logging.CategoryPipeline).Error(
					"Delivery to channel %s failed: %v", channelID, err)
			}
		}
	}
}

// Close stops accepting messages, cancels workers, and waits for them to
// exit. Queued but unstarted messages are dropped.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	d.group.Wait()
}
