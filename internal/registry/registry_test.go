package registry

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bingo-rooms/internal/domain"
)

func roomWith(names ...string) *domain.Room {
	room := &domain.Room{MaxPlayers: 4, State: domain.StateLobby}
	for i, n := range names {
		room.Players = append(room.Players, &domain.Player{ID: n, Username: n, IsHost: i == 0})
	}
	return room
}

func sequence(codes ...string) CodeGenerator {
	var mu sync.Mutex
	i := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		code := codes[i%len(codes)]
		i++
		return code, nil
	}
}

func TestCreateAssignsUpperCaseCode(t *testing.T) {
	reg := New(WithCodeGenerator(sequence("abc123")))

	room := roomWith("A")
	code, err := reg.Create(room)
	require.NoError(t, err)
	assert.Equal(t, "ABC123", code)
	assert.Equal(t, "ABC123", room.Code)
	assert.True(t, reg.Has("abc123"))
	assert.True(t, reg.Has(" ABC123 "))
}

func TestCreateRetriesOnCollision(t *testing.T) {
	reg := New(WithCodeGenerator(sequence("AAAAAA", "AAAAAA", "BBBBBB")))

	first, err := reg.Create(roomWith("A"))
	require.NoError(t, err)
	second, err := reg.Create(roomWith("B"))
	require.NoError(t, err)

	assert.Equal(t, "AAAAAA", first)
	assert.Equal(t, "BBBBBB", second)
	assert.Equal(t, 2, reg.Len())
}

func TestCreateGivesUpWhenCodesExhausted(t *testing.T) {
	reg := New(WithCodeGenerator(sequence("AAAAAA")), WithMaxAttempts(3))

	_, err := reg.Create(roomWith("A"))
	require.NoError(t, err)
	_, err = reg.Create(roomWith("B"))
	assert.ErrorIs(t, err, ErrCodeSpaceExhausted)
}

func TestCreatePropagatesGeneratorError(t *testing.T) {
	boom := errors.New("boom")
	reg := New(WithCodeGenerator(func() (string, error) { return "", boom }))

	_, err := reg.Create(roomWith("A"))
	assert.ErrorIs(t, err, boom)
}

func TestConcurrentCreatesNeverShareCodes(t *testing.T) {
	// a tiny code space forces collisions between racing creators
	reg := New(WithCodeGenerator(sequence("A", "B", "C", "D", "E", "F", "G", "H")), WithMaxAttempts(100))

	var wg sync.WaitGroup
	codes := make(chan string, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			code, err := reg.Create(roomWith("p"))
			if err == nil {
				codes <- code
			}
		}()
	}
	wg.Wait()
	close(codes)

	seen := map[string]bool{}
	for code := range codes {
		assert.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
	}
	assert.Len(t, seen, 8)
}

func TestWithUnknownRoom(t *testing.T) {
	reg := New()
	err := reg.With("NOPE00", func(*domain.Room) error { return nil })
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestWithRemovesEmptiedRoom(t *testing.T) {
	reg := New(WithCodeGenerator(sequence("ROOM01")))
	code, err := reg.Create(roomWith("A"))
	require.NoError(t, err)

	err = reg.With(code, func(room *domain.Room) error {
		room.Players = nil
		return nil
	})
	require.NoError(t, err)

	assert.False(t, reg.Has(code))
	assert.Equal(t, 0, reg.Len())
}

func TestWithSerialisesOperations(t *testing.T) {
	reg := New()
	code, err := reg.Create(roomWith("A"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = reg.With(code, func(room *domain.Room) error {
				room.DrawnNumbers = append(room.DrawnNumbers, len(room.DrawnNumbers))
				return nil
			})
		}()
	}
	wg.Wait()

	_ = reg.With(code, func(room *domain.Room) error {
		assert.Len(t, room.DrawnNumbers, 100)
		for i, n := range room.DrawnNumbers {
			assert.Equal(t, i, n)
		}
		return nil
	})
}

func TestDelete(t *testing.T) {
	reg := New(WithCodeGenerator(sequence("DEL001")))
	code, err := reg.Create(roomWith("A"))
	require.NoError(t, err)

	assert.True(t, reg.Delete("del001"))
	assert.False(t, reg.Delete(code))

	err = reg.With(code, func(*domain.Room) error { return nil })
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestListIsSortedAndSummarised(t *testing.T) {
	reg := New(WithCodeGenerator(sequence("ZZZZZZ", "AAAAAA")))
	_, err := reg.Create(roomWith("host1", "guest"))
	require.NoError(t, err)
	_, err = reg.Create(roomWith("host2"))
	require.NoError(t, err)

	list := reg.List()
	require.Len(t, list, 2)
	assert.Equal(t, "AAAAAA", list[0].Code)
	assert.Equal(t, "host2", list[0].Host)
	assert.Equal(t, "ZZZZZZ", list[1].Code)
	assert.Equal(t, 2, list[1].CurrentPlayers)
}

func TestNanoidCodes(t *testing.T) {
	code, err := NanoidCodes()
	require.NoError(t, err)
	assert.Len(t, code, domain.RoomCodeLength)
	for _, c := range code {
		assert.Contains(t, CodeAlphabet, string(c))
	}
}
