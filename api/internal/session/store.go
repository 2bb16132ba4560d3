package session

import (
	"sync"

	"xray-bot/api/internal/vision"
)

// Store keeps the analysis mode chosen by each chat and serializes requests of one chat.
// Different chats never block each other.
type Store struct {
	modes sync.Map // chatID -> vision.Mode
	locks sync.Map // chatID -> *sync.Mutex
}

func NewStore() *Store { return &Store{} }

func (s *Store) Mode(id int64) (vision.Mode, bool) {
	v, ok := s.modes.Load(id)
	if !ok {
		return 0, false
	}
	return v.(vision.Mode), true
}

func (s *Store) SetMode(id int64, m vision.Mode) { s.modes.Store(id, m) }

func (s *Store) Clear(id int64) { s.modes.Delete(id) }

// Lock blocks until the chat's previous request is done; call the returned func to release.
func (s *Store) Lock(id int64) (unlock func()) {
	v, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
