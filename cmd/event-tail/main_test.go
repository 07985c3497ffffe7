package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bingo-rooms/internal/domain"
	"github.com/bingo-rooms/internal/worker"
)

type countingSink struct {
	n int
}

func (s *countingSink) Name() string { return "counting" }

func (s *countingSink) Write(ctx context.Context, events []domain.GameEvent) error {
	s.n += len(events)
	return nil
}

func TestPrinterWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf)

	require.NoError(t, p.HandleEvents(context.Background(), []domain.GameEvent{
		{Type: domain.EventRoomCreated, RoomCode: "ABC123"},
		{Type: domain.EventClaimAccepted, RoomCode: "ABC123", Username: "alice", Points: 100},
	}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var ev domain.GameEvent
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &ev))
	assert.Equal(t, domain.EventClaimAccepted, ev.Type)
	assert.Equal(t, 100, ev.Points)
}

func TestReplayerPrintsAndArchives(t *testing.T) {
	var buf bytes.Buffer
	sink := &countingSink{}
	r := &replayer{
		printer: newPrinter(&buf),
		fanout:  worker.NewFanout(slog.New(slog.NewTextHandler(io.Discard, nil)), sink),
	}

	require.NoError(t, r.HandleEvents(context.Background(), []domain.GameEvent{
		{Type: domain.EventGameStarted, RoomCode: "ABC123"},
	}))
	assert.Equal(t, 1, sink.n)
	assert.Contains(t, buf.String(), `"event_type":"game_started"`)
}
