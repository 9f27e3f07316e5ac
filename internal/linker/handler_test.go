package linker

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"linker_index/internal/models"
)

type fakeIngester struct {
	mu      sync.Mutex
	err     error
	updates []models.LinkerUpdate
}

func (f *fakeIngester) Ingest(_ context.Context, u models.LinkerUpdate) (models.IngestResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.updates = append(f.updates, u)
	return models.ResultSaved, nil
}

func TestUpdateHandler(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		err      error
		wantMark bool
		wantErr  bool
		ingested int
	}{
		{"valid report", `{"url":"https://example.com/a","title":"A","refs":["Genesis 1:1"]}`, nil, true, false, 1},
		{"invalid json", `{"url":`, nil, true, false, 0},
		{"missing url", `{"title":"A","refs":["Genesis 1:1"]}`, nil, true, false, 0},
		{"ingest failure", `{"url":"https://example.com/a"}`, errors.New("mongo down"), false, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ing := &fakeIngester{err: tt.err}
			h := NewUpdateHandler(ing, zap.NewNop())

			mark, err := h.HandleMessage(context.Background(), []byte(tt.message))
			assert.Equal(t, tt.wantMark, mark)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Len(t, ing.updates, tt.ingested)
		})
	}
}

type fakeSession struct {
	ctx    context.Context
	mu     sync.Mutex
	marked []int64
}

func (s *fakeSession) Claims() map[string][]int32 { return nil }
func (s *fakeSession) MemberID() string { return "member" }
func (s *fakeSession) GenerationID() int32 { return 1 }
func (s *fakeSession) MarkOffset(string, int32, int64, string) {}
func (s *fakeSession) Commit() {}
func (s *fakeSession) ResetOffset(string, int32, int64, string) {}
func (s *fakeSession) Context() context.Context { return s.ctx }
func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	s.marked = append(s.marked, msg.Offset)
	s.mu.Unlock()
}

type fakeClaim struct {
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Topic() string { return "linker-webpages" }
func (c *fakeClaim) Partition() int32 { return 0 }
func (c *fakeClaim) InitialOffset() int64 { return 0 }
func (c *fakeClaim) HighWaterMarkOffset() int64 { return int64(len(c.messages)) }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

func TestConsumeClaimMarksHandledMessages(t *testing.T) {
	ing := &fakeIngester{}
	h := &groupHandler{
		handler: NewUpdateHandler(ing, zap.NewNop()),
		logger:  zap.NewNop(),
		ready:   make(chan bool),
	}

	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 3)}
	claim.messages <- &sarama.ConsumerMessage{Offset: 1, Value: []byte(`{"url":"https://example.com/a","refs":["Genesis 1:1"]}`)}
	claim.messages <- &sarama.ConsumerMessage{Offset: 2, Value: []byte(`not json`)}
	claim.messages <- &sarama.ConsumerMessage{Offset: 3, Value: []byte(`{"url":"https://example.com/b","refs":["Genesis 1:2"]}`)}
	close(claim.messages)

	session := &fakeSession{ctx: context.Background()}
	require.NoError(t, h.Setup(session))
	require.NoError(t, h.Setup(session), "a second session setup must not panic")
	require.NoError(t, h.ConsumeClaim(session, claim))

	assert.Equal(t, []int64{1, 2, 3}, session.marked)
	assert.Len(t, ing.updates, 2)
}

func TestConsumeClaimLeavesFailedMessagesUnmarked(t *testing.T) {
	ing := &fakeIngester{err: errors.New("store unavailable")}
	h := &groupHandler{handler: NewUpdateHandler(ing, zap.NewNop()), logger: zap.NewNop(), ready: make(chan bool)}

	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 1)}
	claim.messages <- &sarama.ConsumerMessage{Offset: 7, Value: []byte(`{"url":"https://example.com/a","refs":["Genesis 1:1"]}`)}
	close(claim.messages)

	session := &fakeSession{ctx: context.Background()}
	require.NoError(t, h.ConsumeClaim(session, claim))
	assert.Empty(t, session.marked)
}
