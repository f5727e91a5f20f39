package session

import (
	"time"

	"github.com/qforge/casegen/internal/testcase"
)

// Status tracks where a session is in the generation workflow.
type Status string

const (
	StatusCreated         Status = "created"
	StatusAnalyzing       Status = "analyzing"
	StatusChatting        Status = "chatting"
	StatusReadyToGenerate Status = "ready_to_generate"
	StatusGenerating      Status = "generating"
	StatusCompleted       Status = "completed"
)

// CanChat reports whether the session accepts conversational turns.
func (s Status) CanChat() bool {
	return s == StatusAnalyzing || s == StatusChatting
}

// Message is one entry in a session's chat history.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// FileRef points at an uploaded template stored on disk.
type FileRef struct {
	ID      string                    `json:"id"`
	Type    string                    `json:"type"`
	Name    string                    `json:"name"`
	Path    string                    `json:"path"`
	Size    int64                     `json:"size"`
	Summary *testcase.TemplateSummary `json:"summary,omitempty"`
}

// Analysis is the upstream's read of the uploaded templates.
type Analysis struct {
	TemplateInfo string   `json:"template_info"`
	HistoryInfo  string   `json:"history_info,omitempty"`
	Suggestions  []string `json:"suggestions,omitempty"`
}

// Session is the full state of one generation workflow. ConversationID is
// the opaque token issued by the remote chat service; it is empty until the
// first successful turn and cleared when the remote rejects it as expired.
type Session struct {
	ID              string              `json:"session_id"`
	Status          Status              `json:"status"`
	ConversationID  string              `json:"conversation_id,omitempty"`
	History         []Message           `json:"chat_history"`
	Files           map[string]FileRef  `json:"files,omitempty"`
	Config          map[string]string   `json:"config,omitempty"`
	Analysis        *Analysis           `json:"analysis_result,omitempty"`
	TestCases       []testcase.TestCase `json:"test_cases,omitempty"`
	GeneratedFileID string              `json:"generated_file_id,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// AppendMessage records one chat turn entry.
func (s *Session) AppendMessage(role, content string, at time.Time) {
	s.History = append(s.History, Message{Role: role, Content: content, Timestamp: at})
}

// Clone returns an independent copy safe to hand to callers.
func (s *Session) Clone() *Session {
	c := *s
	if s.History != nil {
		c.History = append([]Message(nil), s.History...)
	}
	if s.Files != nil {
		c.Files = make(map[string]FileRef, len(s.Files))
		for k, v := range s.Files {
			c.Files[k] = v
		}
	}
	if s.Config != nil {
		c.Config = make(map[string]string, len(s.Config))
		for k, v := range s.Config {
			c.Config[k] = v
		}
	}
	if s.Analysis != nil {
		a := *s.Analysis
		a.Suggestions = append([]string(nil), s.Analysis.Suggestions...)
		c.Analysis = &a
	}
	if s.TestCases != nil {
		c.TestCases = append([]testcase.TestCase(nil), s.TestCases...)
	}
	return &c
}
