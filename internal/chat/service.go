package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/qforge/casegen/internal/dify"
	"github.com/qforge/casegen/internal/observability"
	"github.com/qforge/casegen/internal/session"
)

// ErrSessionBusy is returned when a session is not in a chattable status.
var ErrSessionBusy = errors.New("session does not accept chat in its current status")

// Commands that end the requirements dialogue and arm generation. These are
// handled locally; no remote turn is spent on them.
var generationCommands = []string{"start generation", "开始生成"}

const readyAck = "Understood. The requirements look complete and generation is armed. Call the generate endpoint to produce the test cases."

// readyMarker is matched against upstream answers: when the assistant itself
// declares the requirements complete, the session is promoted too.
const readyMarker = "ready to generate"

// Service runs conversational turns for a session. It owns the conversation
// id lifecycle: the first turn is sent without an id, the id issued by the
// remote is stored and forwarded on every later turn, and when the remote
// reports the conversation gone the id is dropped and the turn retried once
// on a fresh thread.
type Service struct {
	store   session.Store
	ai      dify.Client
	metrics *observability.Metrics
	now     func() time.Time
}

func NewService(store session.Store, ai dify.Client, metrics *observability.Metrics) *Service {
	return &Service{
		store:   store,
		ai:      ai,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// TurnResult is the outcome of one chat turn.
type TurnResult struct {
	Answer         string         `json:"answer"`
	ConversationID string         `json:"conversation_id,omitempty"`
	MessageID      string         `json:"message_id,omitempty"`
	Status         session.Status `json:"session_status"`
	Recovered      bool           `json:"-"`
}

// Send runs one blocking chat turn.
func (s *Service) Send(ctx context.Context, sessionID, message string) (*TurnResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, errors.New("message is empty")
	}

	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.Status.CanChat() {
		return nil, fmt.Errorf("%w: %s", ErrSessionBusy, sess.Status)
	}

	if isGenerationCommand(message) {
		return s.armGeneration(ctx, sessionID, message)
	}

	resp, recovered, err := s.exchange(ctx, sessionID, sess.ID, sess.ConversationID, message)
	if err != nil {
		s.countTurn("error")
		s.countUpstreamError(err)
		return nil, err
	}

	updated, err := s.store.Update(ctx, sessionID, func(in *session.Session) error {
		now := s.now()
		in.AppendMessage("user", message, now)
		in.AppendMessage("assistant", resp.Answer, now)
		if resp.ConversationID != "" {
			in.ConversationID = resp.ConversationID
		}
		switch {
		case answerSignalsReady(resp.Answer):
			in.Status = session.StatusReadyToGenerate
		case in.Status == session.StatusAnalyzing:
			in.Status = session.StatusChatting
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.countTurn("ok")
	return &TurnResult{
		Answer:         resp.Answer,
		ConversationID: updated.ConversationID,
		MessageID:      resp.MessageID,
		Status:         updated.Status,
		Recovered:      recovered,
	}, nil
}

// Stream runs one streaming chat turn, delivering answer fragments through
// onDelta as they arrive. Recovery from an expired conversation only happens
// while nothing has been delivered yet; once the caller has seen output the
// turn cannot be transparently replayed.
func (s *Service) Stream(ctx context.Context, sessionID, message string, onDelta func(string) error) (*TurnResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, errors.New("message is empty")
	}

	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.Status.CanChat() {
		return nil, fmt.Errorf("%w: %s", ErrSessionBusy, sess.Status)
	}

	if isGenerationCommand(message) {
		res, err := s.armGeneration(ctx, sessionID, message)
		if err != nil {
			return nil, err
		}
		if err := onDelta(res.Answer); err != nil {
			return nil, err
		}
		return res, nil
	}

	delivered := false
	handler := func(ev dify.StreamEvent) error {
		if ev.Event == "message" && ev.Answer != "" {
			delivered = true
			return onDelta(ev.Answer)
		}
		return nil
	}

	req := s.buildRequest(sess.ID, sess.ConversationID, message, dify.ModeStreaming)
	recovered := false
	start := s.now()
	resp, err := s.ai.StreamChatMessage(ctx, req, handler)
	s.observeLatency(start)
	if err != nil {
		if delivered || sess.ConversationID == "" || !dify.IsKind(err, dify.KindConversationNotFound) {
			s.countTurn("error")
			s.countUpstreamError(err)
			return nil, err
		}
		if err := s.clearConversation(ctx, sessionID); err != nil {
			return nil, err
		}
		req.ConversationID = ""
		start = s.now()
		resp, err = s.ai.StreamChatMessage(ctx, req, handler)
		s.observeLatency(start)
		if err != nil {
			s.countTurn("error")
			s.countUpstreamError(err)
			return nil, err
		}
		recovered = true
		s.countRecovery()
	}

	updated, err := s.store.Update(ctx, sessionID, func(in *session.Session) error {
		now := s.now()
		in.AppendMessage("user", message, now)
		in.AppendMessage("assistant", resp.Answer, now)
		if resp.ConversationID != "" {
			in.ConversationID = resp.ConversationID
		}
		switch {
		case answerSignalsReady(resp.Answer):
			in.Status = session.StatusReadyToGenerate
		case in.Status == session.StatusAnalyzing:
			in.Status = session.StatusChatting
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.countTurn("ok")
	return &TurnResult{
		Answer:         resp.Answer,
		ConversationID: updated.ConversationID,
		MessageID:      resp.MessageID,
		Status:         updated.Status,
		Recovered:      recovered,
	}, nil
}

// History returns the recorded chat transcript.
func (s *Service) History(ctx context.Context, sessionID string) ([]session.Message, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return sess.History, nil
}

// ClearHistory wipes the transcript and forgets the conversation id, so the
// next turn starts a fresh remote thread.
func (s *Service) ClearHistory(ctx context.Context, sessionID string) error {
	_, err := s.store.Update(ctx, sessionID, func(in *session.Session) error {
		in.History = nil
		in.ConversationID = ""
		if in.Status == session.StatusReadyToGenerate {
			in.Status = session.StatusChatting
		}
		return nil
	})
	return err
}

// exchange sends one blocking turn, recovering once from an expired
// conversation id. The stale id is removed from the store before the retry,
// so even a failed retry leaves the session on a fresh thread.
func (s *Service) exchange(ctx context.Context, sessionID, user, conversationID, query string) (dify.ChatResponse, bool, error) {
	req := s.buildRequest(user, conversationID, query, dify.ModeBlocking)

	start := s.now()
	resp, err := s.ai.SendChatMessage(ctx, req)
	s.observeLatency(start)
	if err == nil {
		return resp, false, nil
	}
	if conversationID == "" || !dify.IsKind(err, dify.KindConversationNotFound) {
		return dify.ChatResponse{}, false, err
	}

	if err := s.clearConversation(ctx, sessionID); err != nil {
		return dify.ChatResponse{}, false, err
	}
	req.ConversationID = ""
	start = s.now()
	resp, err = s.ai.SendChatMessage(ctx, req)
	s.observeLatency(start)
	if err != nil {
		return dify.ChatResponse{}, false, err
	}
	s.countRecovery()
	return resp, true, nil
}

func (s *Service) armGeneration(ctx context.Context, sessionID, message string) (*TurnResult, error) {
	updated, err := s.store.Update(ctx, sessionID, func(in *session.Session) error {
		now := s.now()
		in.AppendMessage("user", message, now)
		in.AppendMessage("assistant", readyAck, now)
		in.Status = session.StatusReadyToGenerate
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.countTurn("ok")
	return &TurnResult{
		Answer:         readyAck,
		ConversationID: updated.ConversationID,
		Status:         updated.Status,
	}, nil
}

func (s *Service) clearConversation(ctx context.Context, sessionID string) error {
	_, err := s.store.Update(ctx, sessionID, func(in *session.Session) error {
		in.ConversationID = ""
		return nil
	})
	return err
}

func (s *Service) buildRequest(user, conversationID, query, mode string) dify.ChatRequest {
	return dify.ChatRequest{
		Inputs:         map[string]string{},
		Query:          query,
		ResponseMode:   mode,
		User:           user,
		ConversationID: conversationID,
	}
}

func isGenerationCommand(message string) bool {
	lowered := strings.ToLower(message)
	for _, cmd := range generationCommands {
		if strings.Contains(lowered, cmd) {
			return true
		}
	}
	return false
}

func answerSignalsReady(answer string) bool {
	return strings.Contains(strings.ToLower(answer), readyMarker)
}

func (s *Service) countTurn(outcome string) {
	if s.metrics != nil {
		s.metrics.ChatTurns.WithLabelValues(outcome).Inc()
	}
}

func (s *Service) countRecovery() {
	if s.metrics != nil {
		s.metrics.ConversationRecoveries.Inc()
	}
}

func (s *Service) countUpstreamError(err error) {
	if s.metrics == nil {
		return
	}
	var apiErr *dify.APIError
	if errors.As(err, &apiErr) {
		s.metrics.UpstreamErrors.WithLabelValues(string(apiErr.Kind)).Inc()
		return
	}
	s.metrics.UpstreamErrors.WithLabelValues("unknown").Inc()
}

func (s *Service) observeLatency(start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveUpstreamLatency(s.now().Sub(start))
	}
}
