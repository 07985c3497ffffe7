package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bingo-rooms/internal/config"
	"github.com/bingo-rooms/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProducerWritesEventsKeyedByRoom(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	events := []domain.GameEvent{
		{Type: domain.EventGameStarted, RoomCode: "ABC123", GameID: "g1", Timestamp: time.Now()},
		{Type: domain.EventClaimAccepted, RoomCode: "ABC123", GameID: "g1", Username: "alice", ClaimType: domain.ClaimRow, Points: 100, Timestamp: time.Now()},
	}

	for _, want := range events {
		sp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
			if msg.Topic != "bingo-game-events" {
				return fmt.Errorf("unexpected topic %q", msg.Topic)
			}
			key, err := msg.Key.Encode()
			if err != nil {
				return err
			}
			if string(key) != "ABC123" {
				return fmt.Errorf("unexpected key %q", key)
			}
			value, err := msg.Value.Encode()
			if err != nil {
				return err
			}
			var got domain.GameEvent
			if err := json.Unmarshal(value, &got); err != nil {
				return err
			}
			if got.Type != want.Type {
				return fmt.Errorf("expected %s, got %s", want.Type, got.Type)
			}
			return nil
		})
	}

	p := NewProducerWithClient(sp, "bingo-game-events", testLogger())
	assert.Equal(t, "kafka", p.Name())
	require.NoError(t, p.Write(context.Background(), events))
	require.NoError(t, p.Write(context.Background(), nil))
	require.NoError(t, p.Close())
}

func TestProducerReportsFailures(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewProducerWithClient(sp, "bingo-game-events", testLogger())
	err := p.Write(context.Background(), []domain.GameEvent{{Type: domain.EventRoomCreated, RoomCode: "ABC123"}})
	assert.ErrorContains(t, err, "publishing 1 events")
	require.NoError(t, p.Close())
}

type recordingHandler struct {
	mu      sync.Mutex
	batches [][]domain.GameEvent
	err     error
}

func (h *recordingHandler) HandleEvents(ctx context.Context, events []domain.GameEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.batches = append(h.batches, append([]domain.GameEvent(nil), events...))
	return h.err
}

func (h *recordingHandler) total() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, b := range h.batches {
		n += len(b)
	}
	return n
}

type fakeSession struct {
	ctx    context.Context
	mu     sync.Mutex
	marked []int64
}

func (s *fakeSession) Claims() map[string][]int32 { return nil }

func (s *fakeSession) MemberID() string { return "member" }

func (s *fakeSession) GenerationID() int32 { return 1 }

func (s *fakeSession) MarkOffset(topic string, partition int32, offset int64, metadata string) {}

func (s *fakeSession) Commit() {}

func (s *fakeSession) ResetOffset(topic string, partition int32, offset int64, metadata string) {}

func (s *fakeSession) Context() context.Context { return s.ctx }

func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, metadata string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, msg.Offset)
}

type fakeClaim struct {
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Topic() string                            { return "bingo-game-events" }
func (c *fakeClaim) Partition() int32                         { return 0 }
func (c *fakeClaim) InitialOffset() int64                     { return 0 }
func (c *fakeClaim) HighWaterMarkOffset() int64               { return 0 }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

func message(t *testing.T, offset int64, ev domain.GameEvent) *sarama.ConsumerMessage {
	t.Helper()
	value, err := json.Marshal(ev)
	require.NoError(t, err)
	return &sarama.ConsumerMessage{Offset: offset, Value: value}
}

func TestConsumeClaimBatchesAndSkipsBadMessages(t *testing.T) {
	cfg := config.DefaultConfig().Kafka
	cfg.BatchSize = 2
	cfg.BatchTimeout = time.Hour

	handler := &recordingHandler{err: errors.New("downstream failure")}
	h := &consumerGroupHandler{config: &cfg, handler: handler, logger: testLogger()}

	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 8)}
	claim.messages <- message(t, 0, domain.GameEvent{Type: domain.EventRoomCreated, RoomCode: "ABC123"})
	claim.messages <- &sarama.ConsumerMessage{Offset: 1, Value: []byte("not json")}
	claim.messages <- message(t, 2, domain.GameEvent{Type: domain.EventGameStarted})
	claim.messages <- message(t, 3, domain.GameEvent{Type: domain.EventGameStarted, RoomCode: "ABC123"})
	claim.messages <- message(t, 4, domain.GameEvent{Type: domain.EventRoomClosed, RoomCode: "ABC123"})
	close(claim.messages)

	session := &fakeSession{ctx: context.Background()}
	require.NoError(t, h.ConsumeClaim(session, claim))

	// one full batch plus the remainder flushed when the claim closes
	require.Len(t, handler.batches, 2)
	assert.Len(t, handler.batches[0], 2)
	assert.Len(t, handler.batches[1], 1)
	assert.Equal(t, domain.EventRoomClosed, handler.batches[1][0].Type)
	assert.Equal(t, []int64{0, 1, 2, 3, 4}, session.marked)
}

func TestConsumeClaimFlushesOnTimeout(t *testing.T) {
	cfg := config.DefaultConfig().Kafka
	cfg.BatchSize = 100
	cfg.BatchTimeout = 20 * time.Millisecond

	handler := &recordingHandler{}
	h := &consumerGroupHandler{config: &cfg, handler: handler, logger: testLogger()}

	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 1)}
	claim.messages <- message(t, 0, domain.GameEvent{Type: domain.EventRoomCreated, RoomCode: "ABC123"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- h.ConsumeClaim(&fakeSession{ctx: ctx}, claim)
	}()

	assert.Eventually(t, func() bool { return handler.total() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}
