// Package registry maps room codes to live rooms and serialises access to
// each room through its own lane.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/bingo-rooms/internal/domain"
)

// CodeAlphabet is the character set room codes are drawn from
const CodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const defaultMaxAttempts = 64

// ErrCodeSpaceExhausted is returned when no free code was found
var ErrCodeSpaceExhausted = errors.New("could not allocate a unique room code")

// CodeGenerator produces candidate room codes
type CodeGenerator func() (string, error)

// NanoidCodes generates 6-character upper-case alphanumeric codes
func NanoidCodes() (string, error) {
	return gonanoid.Generate(CodeAlphabet, domain.RoomCodeLength)
}

// lane is the exclusive execution lane of one room
type lane struct {
	mu     sync.Mutex
	room   *domain.Room
	closed bool
}

// Registry holds every live room
type Registry struct {
	mu          sync.RWMutex
	rooms       map[string]*lane
	newCode     CodeGenerator
	maxAttempts int
}

// Option configures a Registry
type Option func(*Registry)

// WithCodeGenerator replaces the default nanoid generator
func WithCodeGenerator(gen CodeGenerator) Option {
	return func(r *Registry) {
		r.newCode = gen
	}
}

// WithMaxAttempts bounds code generation retries on collision
func WithMaxAttempts(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// New creates an empty registry
func New(opts ...Option) *Registry {
	r := &Registry{
		rooms:       make(map[string]*lane),
		newCode:     NanoidCodes,
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NormalizeCode canonicalises a client-supplied room code
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Create assigns the room a code that is unique among live rooms and
// inserts it. Generation and insertion happen under one write lock.
func (r *Registry) Create(room *domain.Room) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		code, err := r.newCode()
		if err != nil {
			return "", fmt.Errorf("generating room code: %w", err)
		}
		code = NormalizeCode(code)
		if _, taken := r.rooms[code]; taken {
			continue
		}
		room.Code = code
		r.rooms[code] = &lane{room: room}
		return code, nil
	}
	return "", ErrCodeSpaceExhausted
}

// With runs fn with exclusive access to the room. If the room has no
// players once fn returns, it is removed from the registry before the lane
// is released.
func (r *Registry) With(code string, fn func(room *domain.Room) error) error {
	l := r.lookup(code)
	if l == nil {
		return domain.ErrRoomNotFound
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return domain.ErrRoomNotFound
	}

	err := fn(l.room)
	if len(l.room.Players) == 0 {
		r.remove(l)
	}
	return err
}

// Has reports whether a live room uses the code
func (r *Registry) Has(code string) bool {
	return r.lookup(code) != nil
}

// Delete closes and removes a room regardless of its members
func (r *Registry) Delete(code string) bool {
	l := r.lookup(code)
	if l == nil {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	r.remove(l)
	return true
}

// Len returns the number of live rooms
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// List summarises every live room ordered by code
func (r *Registry) List() []domain.RoomSummary {
	r.mu.RLock()
	lanes := make([]*lane, 0, len(r.rooms))
	for _, l := range r.rooms {
		lanes = append(lanes, l)
	}
	r.mu.RUnlock()

	summaries := make([]domain.RoomSummary, 0, len(lanes))
	for _, l := range lanes {
		l.mu.Lock()
		if !l.closed {
			summaries = append(summaries, summarize(l.room))
		}
		l.mu.Unlock()
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Code < summaries[j].Code
	})
	return summaries
}

func (r *Registry) lookup(code string) *lane {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[NormalizeCode(code)]
}

// remove must be called with l.mu held
func (r *Registry) remove(l *lane) {
	l.closed = true
	r.mu.Lock()
	if r.rooms[l.room.Code] == l {
		delete(r.rooms, l.room.Code)
	}
	r.mu.Unlock()
}

func summarize(room *domain.Room) domain.RoomSummary {
	s := domain.RoomSummary{
		Code:           room.Code,
		State:          room.State,
		CurrentPlayers: len(room.Players),
		MaxPlayers:     room.MaxPlayers,
		DrawnCount:     len(room.DrawnNumbers),
	}
	if host := room.Host(); host != nil {
		s.Host = host.Username
	}
	return s
}
