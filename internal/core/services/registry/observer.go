package registry

import (
	"sync"

	"github.com/gattrose/gattrose-ng/internal/core/domain"
)

// GenerationObserver is notified whenever a scan generation replaces
// the previous one. The channel scheduler uses this to retune its
// rotation to the channels actually in use.
type GenerationObserver interface {
	OnGenerationReplaced(networks []domain.Network)
}

// Subject manages observers and notifies them of events.
type Subject struct {
	observers []GenerationObserver
	mu        sync.RWMutex
}

// NewSubject creates a new subject.
func NewSubject() *Subject {
	return &Subject{
		observers: make([]GenerationObserver, 0),
	}
}

// AddObserver registers a new observer.
func (s *Subject) AddObserver(observer GenerationObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, observer)
}

// NotifyReplaced notifies all observers of the new generation. Each
// observer runs on its own goroutine so a slow one cannot stall the
// registry.
func (s *Subject) NotifyReplaced(networks []domain.Network) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, obs := range s.observers {
		go obs.OnGenerationReplaced(networks)
	}
}
