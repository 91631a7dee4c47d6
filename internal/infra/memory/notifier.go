package memory

import (
	"context"
	"sync"

	"quiz-reward-service/internal/domain"
)

// historyLimit bounds how many recent events Events can return.
const historyLimit = 64

// Notifier fans reward events out to per-user subscribers in-process.
type Notifier struct {
	mu          sync.Mutex
	subscribers map[string]map[chan domain.RewardEvent]struct{}
	history     []domain.RewardEvent // ring of the last historyLimit events
	next        int
}

func NewNotifier() *Notifier {
	return &Notifier{subscribers: make(map[string]map[chan domain.RewardEvent]struct{})}
}

// Notify never blocks: a subscriber that falls behind loses its oldest event.
func (n *Notifier) Notify(_ context.Context, event domain.RewardEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.remember(event)
	for ch := range n.subscribers[event.UserID] {
		select {
		case ch <- event:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- event
		}
	}
	return nil
}

// Subscribe returns a channel of events for userID. The caller must invoke
// the returned cancel function to avoid leaks.
func (n *Notifier) Subscribe(_ context.Context, userID string) (<-chan domain.RewardEvent, func(), error) {
	ch := make(chan domain.RewardEvent, 8)

	n.mu.Lock()
	if n.subscribers[userID] == nil {
		n.subscribers[userID] = make(map[chan domain.RewardEvent]struct{})
	}
	n.subscribers[userID][ch] = struct{}{}
	n.mu.Unlock()

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if _, ok := n.subscribers[userID][ch]; ok {
			delete(n.subscribers[userID], ch)
			close(ch)
		}
		if len(n.subscribers[userID]) == 0 {
			delete(n.subscribers, userID)
		}
	}
	return ch, cancel, nil
}

func (n *Notifier) remember(event domain.RewardEvent) {
	if len(n.history) < historyLimit {
		n.history = append(n.history, event)
	} else {
		n.history[n.next] = event
	}
	n.next = (n.next + 1) % historyLimit
}

// Events returns the most recent events, oldest first.
func (n *Notifier) Events() []domain.RewardEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.history) < historyLimit {
		return append([]domain.RewardEvent(nil), n.history...)
	}
	out := make([]domain.RewardEvent, 0, historyLimit)
	out = append(out, n.history[n.next:]...)
	return append(out, n.history[:n.next]...)
}
