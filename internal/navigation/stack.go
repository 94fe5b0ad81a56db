package navigation

import (
	"sync"
)

// Stack is an in-process navigator holding the history of visited routes
type Stack struct {
	mu      sync.Mutex
	history []Route
	subs    map[int]chan Route
	nextID  int
}

// NewStack creates a Stack positioned at initial
func NewStack(initial Route) *Stack {
	return &Stack{
		history: []Route{initial},
		subs:    make(map[int]chan Route),
	}
}

// Current returns the visible route
func (s *Stack) Current() Route {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history[len(s.history)-1]
}

// History returns a copy of the route history, oldest first
func (s *Stack) History() []Route {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Route(nil), s.history...)
}

// Push shows r on top of the current route
func (s *Stack) Push(r Route) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, r)
	s.notify(r)
}

// Replace swaps the current route for r without growing the history
func (s *Stack) Replace(r Route) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[len(s.history)-1] = r
	s.notify(r)
}

// Back pops the current route. It reports false at the root.
func (s *Stack) Back() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) == 1 {
		return false
	}
	s.history = s.history[:len(s.history)-1]
	s.notify(s.history[len(s.history)-1])
	return true
}

// Subscribe returns a channel carrying the current route and every later
// change. Only the newest undelivered route is kept for slow readers.
func (s *Stack) Subscribe() (<-chan Route, func()) {
	ch := make(chan Route, 1)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	ch <- s.history[len(s.history)-1]
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}

// notify must be called with s.mu held
func (s *Stack) notify(r Route) {
	for _, ch := range s.subs {
		for sent := false; !sent; {
			select {
			case ch <- r:
				sent = true
			default:
				select {
				case <-ch:
				default:
				}
			}
		}
	}
}
