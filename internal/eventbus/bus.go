// Package eventbus assigns per-run monotonic sequences to workflow
// events and fans them out to live subscribers with replay from any
// cursor.
package eventbus

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hliang02/skyops/internal/domain"
)

// DefaultHeartbeatInterval is how often idle subscriptions receive a
// keepalive event.
const DefaultHeartbeatInterval = 15 * time.Second

// subscriberBuffer bounds the per-subscriber live queue. A consumer
// that falls this far behind is disconnected rather than slowing the
// run.
const subscriberBuffer = 256

// Store persists sequenced events for replay across restarts. The bus
// works without one, replaying from its in-memory buffer only.
type Store interface {
	AppendEvent(ctx context.Context, ev *domain.WorkflowEvent) error
	EventsSince(ctx context.Context, runID string, afterSeq int64) ([]*domain.WorkflowEvent, error)
	SequenceForEventID(ctx context.Context, runID, eventID string) (int64, error)
}

type subscriber struct {
	ch     chan *domain.WorkflowEvent
	cancel context.CancelFunc
}

type runStream struct {
	seq      int64
	buffer   []*domain.WorkflowEvent
	subs     map[int64]*subscriber
	nextSub  int64
	terminal bool
}

// Bus is the per-run event sequencer and fan-out hub.
type Bus struct {
	mu        sync.Mutex
	store     Store
	runs      map[string]*runStream
	heartbeat time.Duration
}

// New creates a bus. store may be nil for in-memory operation.
func New(store Store, heartbeat time.Duration) *Bus {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeatInterval
	}
	return &Bus{
		store:     store,
		runs:      make(map[string]*runStream),
		heartbeat: heartbeat,
	}
}

func (b *Bus) stream(runID string) *runStream {
	rs, ok := b.runs[runID]
	if !ok {
		rs = &runStream{subs: make(map[int64]*subscriber)}
		b.runs[runID] = rs
	}
	return rs
}

// Publish assigns the next sequence for the event's run, persists it,
// and delivers it to every live subscriber. Events for a terminated run
// are dropped.
func (b *Bus) Publish(ctx context.Context, ev *domain.WorkflowEvent) {
	b.mu.Lock()
	rs := b.stream(ev.RunID)
	if rs.terminal {
		b.mu.Unlock()
		return
	}
	rs.seq++
	ev.Sequence = rs.seq
	ev.StreamID = fmt.Sprintf("%d-0", rs.seq)
	rs.buffer = append(rs.buffer, ev)
	terminal := ev.Kind.Terminal()

	var drop []int64
	for id, sub := range rs.subs {
		select {
		case sub.ch <- ev:
		default:
			drop = append(drop, id)
		}
	}
	for _, id := range drop {
		log.Printf("WARN: dropping slow subscriber run=%s", ev.RunID)
		rs.subs[id].cancel()
		delete(rs.subs, id)
	}

	var closing []*subscriber
	if terminal {
		rs.terminal = true
		for id, sub := range rs.subs {
			closing = append(closing, sub)
			delete(rs.subs, id)
		}
	}
	b.mu.Unlock()

	if b.store != nil {
		if err := b.store.AppendEvent(ctx, ev); err != nil {
			log.Printf("ERROR: persisting event run=%s seq=%d: %v", ev.RunID, ev.Sequence, err)
		}
	}
	for _, sub := range closing {
		close(sub.ch)
	}
}

// CurrentSequence returns the last assigned sequence for a run.
func (b *Bus) CurrentSequence(runID string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if rs, ok := b.runs[runID]; ok {
		return rs.seq
	}
	return 0
}

// Terminated reports whether the run's stream has been closed by a
// terminal event.
func (b *Bus) Terminated(runID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if rs, ok := b.runs[runID]; ok {
		return rs.terminal
	}
	return false
}

// ResolveCursor turns a client cursor into an exclusive sequence
// position. Accepts a stream id ("42-0"), a bare sequence ("42"), or a
// legacy event id resolved through the store.
func (b *Bus) ResolveCursor(ctx context.Context, runID, cursor string) int64 {
	cursor = strings.TrimSpace(cursor)
	if cursor == "" {
		return 0
	}
	seqPart := cursor
	if i := strings.IndexByte(cursor, '-'); i > 0 {
		seqPart = cursor[:i]
	}
	if seq, err := strconv.ParseInt(seqPart, 10, 64); err == nil {
		return seq
	}
	if b.store != nil {
		if seq, err := b.store.SequenceForEventID(ctx, runID, cursor); err == nil {
			return seq
		}
	}
	return 0
}

// Subscribe returns a channel of events for the run, replaying history
// after afterSeq and then following live. The channel closes on a
// terminal event or context cancellation. Idle periods surface as
// heartbeat events.
func (b *Bus) Subscribe(ctx context.Context, runID string, afterSeq int64) (<-chan *domain.WorkflowEvent, error) {
	replay, err := b.replayEvents(ctx, runID, afterSeq)
	if err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)

	b.mu.Lock()
	rs := b.stream(runID)
	var live chan *domain.WorkflowEvent
	terminal := rs.terminal
	var subID int64
	if !terminal {
		live = make(chan *domain.WorkflowEvent, subscriberBuffer)
		// Catch anything published between the replay snapshot and now.
		lastReplayed := afterSeq
		if n := len(replay); n > 0 {
			lastReplayed = replay[n-1].Sequence
		}
		for _, ev := range rs.buffer {
			if ev.Sequence > lastReplayed {
				replay = append(replay, ev)
			}
		}
		subID = rs.nextSub
		rs.nextSub++
		rs.subs[subID] = &subscriber{ch: live, cancel: cancel}
	}
	b.mu.Unlock()

	out := make(chan *domain.WorkflowEvent, subscriberBuffer)
	go func() {
		defer close(out)
		defer cancel()
		defer func() {
			if live != nil {
				b.mu.Lock()
				if sub, ok := b.runs[runID].subs[subID]; ok && sub.ch == live {
					delete(b.runs[runID].subs, subID)
				}
				b.mu.Unlock()
			}
		}()

		lastSeq := afterSeq
		for _, ev := range replay {
			select {
			case out <- ev:
				lastSeq = ev.Sequence
			case <-subCtx.Done():
				return
			}
			if ev.Kind.Terminal() {
				return
			}
		}
		if terminal || live == nil {
			return
		}

		ticker := time.NewTicker(b.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case ev, ok := <-live:
				if !ok {
					return
				}
				if ev.Sequence <= lastSeq {
					continue
				}
				select {
				case out <- ev:
					lastSeq = ev.Sequence
				case <-subCtx.Done():
					return
				}
				if ev.Kind.Terminal() {
					return
				}
				ticker.Reset(b.heartbeat)
			case <-ticker.C:
				hb := domain.HeartbeatEvent(runID, lastSeq)
				select {
				case out <- hb:
				case <-subCtx.Done():
					return
				}
			case <-subCtx.Done():
				return
			}
		}
	}()
	return out, nil
}

// replayEvents fetches history after afterSeq, preferring the store.
func (b *Bus) replayEvents(ctx context.Context, runID string, afterSeq int64) ([]*domain.WorkflowEvent, error) {
	if b.store != nil {
		events, err := b.store.EventsSince(ctx, runID, afterSeq)
		if err != nil {
			return nil, fmt.Errorf("replay events: %w", err)
		}
		return events, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	rs := b.stream(runID)
	var out []*domain.WorkflowEvent
	for _, ev := range rs.buffer {
		if ev.Sequence > afterSeq {
			out = append(out, ev)
		}
	}
	return out, nil
}

// Backoff returns the reconnect delay for the nth consecutive failed
// attempt, doubling from one second and capped at thirty.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 5 {
		return 30 * time.Second
	}
	d := time.Duration(1<<(attempt-1)) * time.Second
	if d > 30*time.Second {
		return 30 * time.Second
	}
	return d
}
