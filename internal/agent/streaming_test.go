package agent

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/flynn-ai/agentcore/internal/errors"
	"github.com/flynn-ai/agentcore/internal/model"
	"github.com/flynn-ai/agentcore/pkg/protocol"
)

type eventLog struct {
	mu     sync.Mutex
	events []protocol.StreamEvent
}

func (l *eventLog) record(ev protocol.StreamEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return nil
}

func (l *eventLog) types() []protocol.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]protocol.EventType, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Type
	}
	return out
}

func (l *eventLog) last() protocol.StreamEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events[len(l.events)-1]
}

func TestRunTurnStreamEventOrder(t *testing.T) {
	p := &scriptedProvider{script: func(n int, _ *model.Request) (*model.Response, error) {
		if n == 1 {
			return callTools("Checking", model.ToolCall{ID: "a", Name: "listTasks"}), nil
		}
		return answer("All done"), nil
	}}
	h := newHarness(t, p, nil)
	log := &eventLog{}

	res, err := h.orch.RunTurnStream(context.Background(), studentTurn("t1", "tasks?"), log.record)
	require.NoError(t, err)
	assert.Equal(t, "All done", res.Response)

	assert.Equal(t, []protocol.EventType{
		protocol.EventToken,
		protocol.EventToolCall,
		protocol.EventToken,
		protocol.EventComplete,
	}, log.types())

	assert.Equal(t, "Checking", log.events[0].Content)
	require.NotNil(t, log.events[1].ToolCall)
	assert.Equal(t, "listTasks", log.events[1].ToolCall.Name)
	assert.Equal(t, "a", log.events[1].ToolCall.ID)

	final := log.last()
	require.NotNil(t, final.Result)
	assert.Equal(t, res.CheckpointID, final.Result.CheckpointID)
	assert.Equal(t, "complete", final.Result.StopReason)
}

func TestRunTurnStreamWithStreamingProvider(t *testing.T) {
	stub := &streamingStub{scriptedProvider: &scriptedProvider{script: func(int, *model.Request) (*model.Response, error) {
		return answer("three word answer"), nil
	}}}
	h := newHarness(t, stub, nil)
	log := &eventLog{}

	_, err := h.orch.RunTurnStream(context.Background(), studentTurn("t1", "hi"), log.record)
	require.NoError(t, err)

	var text string
	for _, ev := range log.events[:len(log.events)-1] {
		assert.Equal(t, protocol.EventToken, ev.Type)
		text += ev.Content
	}
	assert.Equal(t, "three word answer", text)
	assert.Len(t, log.events, 4)
	assert.True(t, log.last().Terminal())
}

func TestRunTurnStreamReportsFaultOnce(t *testing.T) {
	p := &scriptedProvider{script: func(int, *model.Request) (*model.Response, error) {
		return nil, errors.New("something odd happened upstream")
	}}
	h := newHarness(t, p, nil)
	log := &eventLog{}

	_, err := h.orch.RunTurnStream(context.Background(), studentTurn("t1", "hi"), log.record)
	require.Error(t, err)

	require.Len(t, log.events, 1)
	ev := log.last()
	assert.Equal(t, protocol.EventError, ev.Type)
	require.NotNil(t, ev.Fault)
	assert.Equal(t, "unknown", ev.Fault.Category)
	assert.NotContains(t, ev.Fault.Message, "upstream")
}

func TestStreamedOutputIsNotRetried(t *testing.T) {
	stub := &streamingStub{
		scriptedProvider: &scriptedProvider{script: func(int, *model.Request) (*model.Response, error) {
			return answer("partial answer here"), nil
		}},
		failAfterFirst: apperrors.Transient(apperrors.CodeModelUnavailable, "connection reset"),
	}
	h := newHarness(t, stub, nil)
	log := &eventLog{}

	_, err := h.orch.RunTurnStream(context.Background(), studentTurn("t1", "hi"), log.record)
	require.Error(t, err)
	assert.Equal(t, 1, stub.Calls())
	assert.Equal(t, []protocol.EventType{protocol.EventToken, protocol.EventError}, log.types())
	assert.True(t, log.last().Fault.Retryable)
}

func TestStreamCallbackErrorCancelsTurn(t *testing.T) {
	p := &scriptedProvider{script: func(int, *model.Request) (*model.Response, error) {
		return answer("hello there"), nil
	}}
	h := newHarness(t, p, nil)

	gone := errors.New("client went away")
	var seen []protocol.EventType
	_, err := h.orch.RunTurnStream(context.Background(), studentTurn("t1", "hi"), func(ev protocol.StreamEvent) error {
		seen = append(seen, ev.Type)
		return gone
	})
	require.Error(t, err)

	var te *TurnError
	require.ErrorAs(t, err, &te)
	assert.True(t, te.Cancelled)
	assert.Equal(t, []protocol.EventType{protocol.EventToken}, seen, "no terminal event after the callback failed")

	cp, _ := headState(t, h.store, "t1")
	assert.Equal(t, StatusCancelled, cp.Metadata["status"])
}
