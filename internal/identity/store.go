package identity

import (
	"context"
	"sync"
)

// Store is the Session Store contract.
//
// Every successful mutating call is followed by exactly one notification on
// every subscription. The notification, not the returned value, is
// authoritative for global state.
type Store interface {
	// Subscribe returns a channel of session changes and a function that ends
	// the subscription. Once the store knows the current identity, the first
	// value delivered is that identity (nil when signed out).
	Subscribe() (<-chan *Session, func())

	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	CreateAccount(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context) error
	SignInWithCredential(ctx context.Context, cred Credential) (*Session, error)
	UpdateProfile(ctx context.Context, update ProfileUpdate) (*Session, error)
}

// subscriptionBuffer bounds how far a subscriber may lag before publishers block
const subscriptionBuffer = 16

type subscriber struct {
	ch   chan *Session
	done chan struct{}
	once sync.Once
}

// notifier fans session changes out to subscribers in publish order
type notifier struct {
	mu      sync.Mutex
	subs    map[int]*subscriber
	nextID  int
	current *Session
	known   bool

	// sendMu serializes deliveries so every subscriber observes the same order
	sendMu sync.Mutex
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[int]*subscriber)}
}

// subscribe registers a subscriber, replaying the current identity if known
func (n *notifier) subscribe() (<-chan *Session, func()) {
	sub := &subscriber{
		ch:   make(chan *Session, subscriptionBuffer),
		done: make(chan struct{}),
	}

	n.sendMu.Lock()
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.subs[id] = sub
	known, current := n.known, n.current.Copy()
	n.mu.Unlock()
	if known {
		sub.ch <- current
	}
	n.sendMu.Unlock()

	unsubscribe := func() {
		sub.once.Do(func() {
			close(sub.done)
			n.sendMu.Lock()
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
			close(sub.ch)
			n.sendMu.Unlock()
		})
	}
	return sub.ch, unsubscribe
}

// publish records s as the current identity and delivers it to every subscriber
func (n *notifier) publish(s *Session) {
	n.sendMu.Lock()
	defer n.sendMu.Unlock()

	n.mu.Lock()
	n.current = s.Copy()
	n.known = true
	subs := make([]*subscriber, 0, len(n.subs))
	for _, sub := range n.subs {
		subs = append(subs, sub)
	}
	n.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.ch <- s.Copy():
		case <-sub.done:
		}
	}
}

// snapshot returns the last published identity
func (n *notifier) snapshot() *Session {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current.Copy()
}
