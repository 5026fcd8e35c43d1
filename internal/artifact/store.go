package artifact

import (
	"sync"
)

// Store serves the current artifact set. The set is loaded on first use and then shared by
// every caller; a failed load is remembered and returned on every call.
type Store struct {
	manager *Manager
	bundle  *Bundle
	err     error
	once    sync.Once
}

// NewStore creates a store over the artifact root dir.
func NewStore(dir string) *Store {
	return &Store{manager: NewManager(dir)}
}

// NewStoreFromBundle wraps an already loaded bundle.
func NewStoreFromBundle(b *Bundle) *Store {
	s := &Store{bundle: b}
	s.once.Do(func() {})
	return s
}

// Bundle returns the loaded artifact set.
func (s *Store) Bundle() (*Bundle, error) {
	s.once.Do(func() {
		s.bundle, s.err = s.manager.LoadCurrent()
	})
	return s.bundle, s.err
}
