package game

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrDuplicatePlayer is returned when adding a player whose ID is already present.
var ErrDuplicatePlayer = errors.New("game: duplicate player id")

// Snapshot is an immutable copy of the game state at one instant.
type Snapshot struct {
	Players   map[string]Player `msgpack:"p" json:"players"`
	UpdatedAt int64             `msgpack:"u" json:"updatedAt"`
}

// Player returns the snapshot entry for id.
func (s Snapshot) Player(id string) (Player, bool) {
	p, ok := s.Players[id]
	return p, ok
}

// State tracks all connected players. It is safe for concurrent use.
type State struct {
	mu        sync.RWMutex
	players   map[string]*Player
	updatedAt time.Time
	now       func() time.Time
}

// NewState creates an empty State.
func NewState() *State {
	return NewStateWithClock(time.Now)
}

// NewStateWithClock creates an empty State that reads time from now.
func NewStateWithClock(now func() time.Time) *State {
	return &State{
		players:   make(map[string]*Player),
		updatedAt: now(),
		now:       now,
	}
}

// AddPlayer registers a new player.
func (s *State) AddPlayer(p Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.players[p.ID]; ok {
		return ErrDuplicatePlayer
	}
	t := s.touch()
	p.UpdatedAt = t.UnixMilli()
	s.players[p.ID] = &p
	return nil
}

// RemovePlayer removes a player and reports whether it existed.
func (s *State) RemovePlayer(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.players[id]; !ok {
		return false
	}
	delete(s.players, id)
	s.touch()
	return true
}

// Player returns a copy of the player's record.
func (s *State) Player(id string) (Player, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[id]
	if !ok {
		return Player{}, false
	}
	return *p, true
}

// Has reports whether a record exists for id.
func (s *State) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.players[id]
	return ok
}

// Len returns the number of players.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.players)
}

// IDs returns the sorted player IDs.
func (s *State) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.players))
	for id := range s.players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// UpdateTarget sets a player's movement target. Positions are left to Tick.
// It returns false when the player does not exist.
func (s *State) UpdateTarget(id string, x, y float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[id]
	if !ok {
		return false
	}
	p.TargetX = x
	p.TargetY = y
	p.UpdatedAt = s.touch().UnixMilli()
	return true
}

// Tick eases every player one step toward its target.
func (s *State) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.touch().UnixMilli()
	for _, p := range s.players {
		if p.X == p.TargetX && p.Y == p.TargetY {
			continue
		}
		p.ease()
		p.UpdatedAt = t
	}
}

// Snapshot returns a copy of all current player records.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Players:   make(map[string]Player, len(s.players)),
		UpdatedAt: s.updatedAt.UnixMilli(),
	}
	for id, p := range s.players {
		snap.Players[id] = *p
	}
	return snap
}

// UpdatedAt returns the time of the last mutation.
func (s *State) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// touch must be called with mu held.
func (s *State) touch() time.Time {
	s.updatedAt = s.now()
	return s.updatedAt
}
