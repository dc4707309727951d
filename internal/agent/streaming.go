package agent

import (
	"context"
	"errors"
	"sync"

	"github.com/flynn-ai/agentcore/internal/model"
	"github.com/flynn-ai/agentcore/pkg/protocol"
)

// StreamCallback receives the events of a streamed turn in order. Returning
// an error cancels the turn.
type StreamCallback func(protocol.StreamEvent) error

// streamSink forwards model output to the callback. The first callback error
// is kept and cancels the turn; later events are dropped.
type streamSink struct {
	mu     sync.Mutex
	cb     StreamCallback
	cancel context.CancelFunc
	err    error
}

func (s *streamSink) emit(ev protocol.StreamEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if err := s.cb(ev); err != nil {
		s.err = err
		s.cancel()
		return err
	}
	return nil
}

func (s *streamSink) token(content string) error {
	return s.emit(protocol.StreamEvent{Type: protocol.EventToken, Content: content})
}

func (s *streamSink) toolCall(call model.ToolCall) {
	_ = s.emit(protocol.StreamEvent{
		Type:     protocol.EventToolCall,
		ToolCall: &protocol.ToolCallRecord{ID: call.ID, Name: call.Name, Input: call.Input},
	})
}

func (s *streamSink) failed() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// RunTurnStream runs a turn like RunTurn and reports it as events: tokens and
// tool-call announcements as they happen, then exactly one complete or error
// event. Providers that cannot stream deliver their content as one token.
//
// The terminal event is not sent when the callback itself failed.
func (o *Orchestrator) RunTurnStream(ctx context.Context, req TurnRequest, cb StreamCallback) (*TurnResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sink := &streamSink{cb: cb, cancel: cancel}
	res, err := o.run(ctx, req, sink)

	if cbErr := sink.failed(); cbErr != nil {
		if err == nil {
			err = cbErr
		}
		return res, err
	}

	if err != nil {
		fault := o.classifier.Classify(err)
		var te *TurnError
		if errors.As(err, &te) {
			fault = te.Fault
		}
		_ = sink.emit(protocol.StreamEvent{Type: protocol.EventError, Fault: fault.Wire()})
		return nil, err
	}

	_ = sink.emit(protocol.StreamEvent{Type: protocol.EventComplete, Result: res.Wire()})
	return res, nil
}
