package session

import (
	"sync"

	"github.com/jmylchreest/sessionkeeper/internal/browser"
)

// State is the per-context record shared by the context's handlers.
// Handlers run on the coordinator; the mutex covers readers elsewhere and
// challenge records updated by background tasks.
type State struct {
	mu         sync.Mutex
	lastActive browser.Page
	restored   bool
	challenges []*ChallengeEvent
}

// LastActive returns the most recently created page, or nil.
func (s *State) LastActive() browser.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

func (s *State) setLastActive(p browser.Page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = p
}

// markRestored reports true the first time it is called.
func (s *State) markRestored() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.restored {
		return false
	}
	s.restored = true
	return true
}

func (s *State) addChallenge(c *ChallengeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges = append(s.challenges, c)
}

// Challenges returns every challenge detected in the context.
func (s *State) Challenges() []*ChallengeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*ChallengeEvent(nil), s.challenges...)
}
