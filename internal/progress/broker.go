package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/p-n-ai/pai-academy/internal/platform/cache"
)

// Event types published after a successful state change.
const (
	EventEnrolled        = "enrolled"
	EventLessonCompleted = "lesson_completed"
	EventCourseCompleted = "course_completed"
	EventQuizSubmitted   = "quiz_submitted"
)

const subscriberBuffer = 16

// Event is a progress notification for one user.
type Event struct {
	Type       string    `json:"type"`
	UserID     string    `json:"userId"`
	CourseID   string    `json:"courseId"`
	LessonID   string    `json:"lessonId,omitempty"`
	Progress   int       `json:"progress"`
	Completed  bool      `json:"completed"`
	Score      int       `json:"score,omitempty"`
	Percentage int       `json:"percentage,omitempty"`
	At         time.Time `json:"at"`
}

// Broker fans progress events out to live subscribers.
type Broker interface {
	Publish(ctx context.Context, ev Event) error
	// Subscribe returns a channel of the user's events. The channel is closed
	// after the returned cancel func is called or ctx ends.
	Subscribe(ctx context.Context, userID string) (<-chan Event, func(), error)
}

// MemoryBroker delivers events within one process.
type MemoryBroker struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		subs: make(map[string]map[chan Event]struct{}),
	}
}

func (b *MemoryBroker) Publish(_ context.Context, ev Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs[ev.UserID] {
		select {
		case ch <- ev:
		default:
			slog.Warn("dropping progress event for slow subscriber", "user_id", ev.UserID, "type", ev.Type)
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, userID string) (<-chan Event, func(), error) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[chan Event]struct{})
	}
	b.subs[userID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[userID], ch)
			if len(b.subs[userID]) == 0 {
				delete(b.subs, userID)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	context.AfterFunc(ctx, cancel)
	return ch, cancel, nil
}

// RedisBroker publishes events on a per-user Redis channel so every server
// instance can serve live subscribers.
type RedisBroker struct {
	cache *cache.Cache
}

func NewRedisBroker(c *cache.Cache) *RedisBroker {
	return &RedisBroker{cache: c}
}

func (b *RedisBroker) channel(userID string) string {
	return b.cache.Key("progress", userID)
}

func (b *RedisBroker) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.cache.Client.Publish(ctx, b.channel(ev.UserID), data).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, userID string) (<-chan Event, func(), error) {
	sub := b.cache.Client.Subscribe(ctx, b.channel(userID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("subscribe: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	out := make(chan Event, subscriberBuffer)

	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					slog.Warn("skipping undecodable progress event", "user_id", userID, "error", err)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, cancel, nil
}
