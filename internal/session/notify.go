package session

import "sync"

// ChangeKind classifies a session change event.
type ChangeKind int

const (
	// SignedIn fires when a session is issued.
	SignedIn ChangeKind = iota
	// SignedOut fires when a session is destroyed.
	SignedOut
)

// Change describes one session state transition.
type Change struct {
	Kind        ChangeKind
	SessionID   string
	PrincipalID int64
}

// Notifier fans session changes out to subscribers. Publishing never blocks:
// a subscriber that cannot keep up drops events rather than stalling login.
type Notifier struct {
	mu   sync.Mutex
	subs []chan Change
}

// NewNotifier constructs a Notifier.
func NewNotifier() *Notifier {
	return &Notifier{}
}

// Subscribe registers a new subscriber channel.
func (n *Notifier) Subscribe() <-chan Change {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch := make(chan Change, 64)
	n.subs = append(n.subs, ch)
	return ch
}

func (n *Notifier) publish(c Change) {
	if n == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- c:
		default:
		}
	}
}

// Gate orders change notifications against an asynchronous initial load.
// A consumer that primes its state from a snapshot (for example counting
// live sessions at startup) must not act on changes observed before that
// snapshot completed: doing so produces the transient "signed in but no
// identity" state. Admit drops every change until MarkReady is called.
type Gate struct {
	mu      sync.Mutex
	ready   bool
	dropped int
}

// MarkReady records that initialization completed. Changes admitted from now
// on are authoritative.
func (g *Gate) MarkReady() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ready = true
}

// Admit reports whether the change should be acted upon. Changes arriving
// strictly before MarkReady are dropped and counted.
func (g *Gate) Admit(Change) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.ready {
		g.dropped++
		return false
	}
	return true
}

// Dropped returns how many changes were ignored before initialization.
func (g *Gate) Dropped() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dropped
}
