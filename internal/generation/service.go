package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/qforge/casegen/internal/dify"
	"github.com/qforge/casegen/internal/files"
	"github.com/qforge/casegen/internal/observability"
	"github.com/qforge/casegen/internal/session"
	"github.com/qforge/casegen/internal/testcase"
)

var (
	// ErrTemplateRequired is returned when Start is called without a case
	// template upload.
	ErrTemplateRequired = errors.New("a case_template upload is required")

	// ErrNotReady is returned when generation is requested before the
	// requirements dialogue armed it.
	ErrNotReady = errors.New("session is not ready to generate")

	// ErrNotCompleted is returned when finalize is requested before a
	// generation run produced test cases.
	ErrNotCompleted = errors.New("session has no generated test cases yet")
)

// Upload is one incoming file for Start.
type Upload struct {
	Kind    string
	Name    string
	Content io.Reader
}

// Event is one progress notification during a generation run.
type Event struct {
	Stage     string              `json:"stage"`
	Message   string              `json:"message,omitempty"`
	Delta     string              `json:"delta,omitempty"`
	Progress  int                 `json:"progress"`
	TestCases []testcase.TestCase `json:"test_cases,omitempty"`
}

// EventSink receives generation progress events.
type EventSink func(Event) error

// Service drives the generation workflow: template analysis, the generation
// run itself, and finalizing the export artifact.
type Service struct {
	store     session.Store
	ai        dify.Client
	uploads   *files.Uploads
	artifacts files.ArtifactStore
	metrics   *observability.Metrics
	now       func() time.Time
}

func NewService(store session.Store, ai dify.Client, uploads *files.Uploads, artifacts files.ArtifactStore, metrics *observability.Metrics) *Service {
	return &Service{
		store:     store,
		ai:        ai,
		uploads:   uploads,
		artifacts: artifacts,
		metrics:   metrics,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateSession opens a fresh workflow session.
func (s *Service) CreateSession(ctx context.Context) (*session.Session, error) {
	sess, err := s.store.Create(ctx)
	if err != nil {
		return nil, err
	}
	s.countSessionEvent("created")
	return sess, nil
}

// StartResult is what the caller gets back from Start.
type StartResult struct {
	Session  *session.Session `json:"session"`
	Greeting string           `json:"greeting"`
}

// Start stores the uploaded templates, asks the upstream assistant for an
// initial analysis and moves the session into the requirements dialogue.
// The analysis turn is the session's first remote turn, so it also
// establishes the conversation id later turns are threaded on.
func (s *Service) Start(ctx context.Context, sessionID string, uploads []Upload, config map[string]string) (*StartResult, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != session.StatusCreated {
		return nil, fmt.Errorf("session %s already started (status %s)", sessionID, sess.Status)
	}

	refs := make(map[string]session.FileRef, len(uploads))
	var templateSummary *testcase.TemplateSummary
	for _, up := range uploads {
		ref, err := s.uploads.Save(sessionID, up.Kind, up.Name, up.Content)
		if err != nil {
			return nil, err
		}
		if up.Kind == files.KindCaseTemplate {
			content, err := s.uploads.Read(ref)
			if err != nil {
				return nil, err
			}
			summary, err := testcase.ParseTemplate(content)
			if err != nil {
				return nil, fmt.Errorf("parse case template: %w", err)
			}
			ref.Summary = &summary
			templateSummary = &summary
		}
		refs[up.Kind] = ref
	}
	if templateSummary == nil {
		return nil, ErrTemplateRequired
	}

	analysis, conversationID := s.analyze(ctx, sess.ID, templateSummary, config)
	greeting := greetingFor(analysis)

	updated, err := s.store.Update(ctx, sessionID, func(in *session.Session) error {
		in.Status = session.StatusAnalyzing
		in.Files = refs
		in.Config = config
		in.Analysis = analysis
		if conversationID != "" {
			in.ConversationID = conversationID
		}
		in.AppendMessage("assistant", greeting, s.now())
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.countSessionEvent("started")
	return &StartResult{Session: updated, Greeting: greeting}, nil
}

// analyze asks the upstream assistant to read the uploaded template. When
// the upstream is unreachable the local summary stands in, so an outage
// never blocks starting a session; the first chat turn will then open the
// conversation instead.
func (s *Service) analyze(ctx context.Context, user string, summary *testcase.TemplateSummary, config map[string]string) (*session.Analysis, string) {
	req := dify.ChatRequest{
		Inputs:       map[string]string{"task": "analyze"},
		Query:        analysisPrompt(summary, config),
		ResponseMode: dify.ModeBlocking,
		User:         user,
	}

	start := s.now()
	resp, err := s.ai.SendChatMessage(ctx, req)
	if s.metrics != nil {
		s.metrics.ObserveUpstreamLatency(s.now().Sub(start))
	}
	if err != nil {
		log.Printf("generation: template analysis unavailable, using local summary: %v", err)
		return localAnalysis(summary), ""
	}

	analysis := localAnalysis(summary)
	analysis.HistoryInfo = resp.Answer
	return analysis, resp.ConversationID
}

// Generate runs the generation turn and streams progress to sink. The
// stored conversation id is forwarded so the run sees the whole dialogue;
// if the remote no longer knows it, the id is dropped and the run retried
// once on a fresh thread before any output has been produced.
func (s *Service) Generate(ctx context.Context, sessionID string, sink EventSink) error {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Status != session.StatusReadyToGenerate {
		return fmt.Errorf("%w (status %s)", ErrNotReady, sess.Status)
	}

	if _, err := s.store.Update(ctx, sessionID, func(in *session.Session) error {
		in.Status = session.StatusGenerating
		return nil
	}); err != nil {
		return err
	}

	if err := sink(Event{Stage: "started", Message: "generating test cases", Progress: 5}); err != nil {
		return err
	}

	begin := s.now()
	answer, err := s.runGeneration(ctx, sess, sink)
	if s.metrics != nil {
		s.metrics.ObserveGenerationDuration(s.now().Sub(begin))
	}
	if err != nil {
		// Put the session back so the caller can retry the run.
		if _, uerr := s.store.Update(ctx, sessionID, func(in *session.Session) error {
			in.Status = session.StatusReadyToGenerate
			return nil
		}); uerr != nil {
			log.Printf("generation: restore status for %s: %v", sessionID, uerr)
		}
		s.countRun("error")
		return err
	}

	cases, perr := extractCases(answer)
	if perr != nil {
		log.Printf("generation: unparsable answer for %s, falling back to template-shaped cases: %v", sessionID, perr)
		cases = fallbackCases(sess)
	}

	if _, err := s.store.Update(ctx, sessionID, func(in *session.Session) error {
		in.Status = session.StatusCompleted
		in.TestCases = cases
		return nil
	}); err != nil {
		return err
	}

	s.countRun("ok")
	return sink(Event{Stage: "completed", Message: "generation finished", Progress: 100, TestCases: cases})
}

func (s *Service) runGeneration(ctx context.Context, sess *session.Session, sink EventSink) (string, error) {
	delivered := false
	handler := func(ev dify.StreamEvent) error {
		if ev.Event == "message" && ev.Answer != "" {
			delivered = true
			return sink(Event{Stage: "generating", Delta: ev.Answer, Progress: 50})
		}
		return nil
	}

	req := dify.ChatRequest{
		Inputs:         map[string]string{"task": "generate"},
		Query:          generationPrompt(sess),
		ResponseMode:   dify.ModeStreaming,
		User:           sess.ID,
		ConversationID: sess.ConversationID,
	}

	resp, err := s.ai.StreamChatMessage(ctx, req, handler)
	if err != nil {
		if delivered || req.ConversationID == "" || !dify.IsKind(err, dify.KindConversationNotFound) {
			return "", err
		}
		if _, uerr := s.store.Update(ctx, sess.ID, func(in *session.Session) error {
			in.ConversationID = ""
			return nil
		}); uerr != nil {
			return "", uerr
		}
		req.ConversationID = ""
		resp, err = s.ai.StreamChatMessage(ctx, req, handler)
		if err != nil {
			return "", err
		}
		if s.metrics != nil {
			s.metrics.ConversationRecoveries.Inc()
		}
	}
	if resp.ConversationID != "" && resp.ConversationID != sess.ConversationID {
		if _, uerr := s.store.Update(ctx, sess.ID, func(in *session.Session) error {
			in.ConversationID = resp.ConversationID
			return nil
		}); uerr != nil {
			return "", uerr
		}
	}
	return resp.Answer, nil
}

// Finalize validates the generated cases, exports them as XML and stores
// the artifact for download.
func (s *Service) Finalize(ctx context.Context, sessionID string) (*files.Artifact, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != session.StatusCompleted || len(sess.TestCases) == 0 {
		return nil, ErrNotCompleted
	}

	if err := testcase.Validate(sess.TestCases); err != nil {
		return nil, fmt.Errorf("generated cases invalid: %w", err)
	}

	data, err := testcase.ExportXML(sess.TestCases, s.now())
	if err != nil {
		return nil, fmt.Errorf("export cases: %w", err)
	}

	artifact := &files.Artifact{
		SessionID:   sessionID,
		Name:        fmt.Sprintf("testcases_%s.xml", s.now().Format("20060102_150405")),
		ContentType: "application/xml",
		Data:        []byte(data),
	}
	if err := s.artifacts.Save(ctx, artifact); err != nil {
		return nil, err
	}

	if _, err := s.store.Update(ctx, sessionID, func(in *session.Session) error {
		in.GeneratedFileID = artifact.ID
		return nil
	}); err != nil {
		return nil, err
	}

	s.countSessionEvent("finalized")
	return artifact, nil
}

// Artifact loads a finalized export for download.
func (s *Service) Artifact(ctx context.Context, fileID string) (*files.Artifact, error) {
	return s.artifacts.Get(ctx, fileID)
}

// Status returns the current session snapshot. Polling counts as activity,
// so a long generation run does not let the session expire underneath the
// client.
func (s *Service) Status(ctx context.Context, sessionID string) (*session.Session, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.store.Extend(ctx, sessionID); err != nil && !errors.Is(err, session.ErrNotFound) {
		log.Printf("generation: extend session %s: %v", sessionID, err)
	}
	return sess, nil
}

// Cleanup removes the session and everything stored for it.
func (s *Service) Cleanup(ctx context.Context, sessionID string) error {
	if err := s.uploads.RemoveSession(sessionID); err != nil {
		log.Printf("generation: remove uploads for %s: %v", sessionID, err)
	}
	if err := s.artifacts.DeleteBySession(ctx, sessionID); err != nil {
		log.Printf("generation: remove artifacts for %s: %v", sessionID, err)
	}
	if err := s.store.Delete(ctx, sessionID); err != nil {
		return err
	}
	s.countSessionEvent("deleted")
	return nil
}

func (s *Service) countSessionEvent(event string) {
	if s.metrics != nil {
		s.metrics.SessionEvents.WithLabelValues(event).Inc()
	}
}

func (s *Service) countRun(result string) {
	if s.metrics != nil {
		s.metrics.GenerationRuns.WithLabelValues(result).Inc()
	}
}

func analysisPrompt(summary *testcase.TemplateSummary, config map[string]string) string {
	var b strings.Builder
	b.WriteString("Analyze this test case template and summarize its structure.\n")
	fmt.Fprintf(&b, "Root tag: %s, elements: %d, cases: %d.\n", summary.RootTag, summary.TotalElements, summary.CaseCount)
	if len(summary.Categories) > 0 {
		fmt.Fprintf(&b, "Categories: %s.\n", strings.Join(summary.Categories, ", "))
	}
	for k, v := range config {
		fmt.Fprintf(&b, "Config %s=%s.\n", k, v)
	}
	return b.String()
}

func generationPrompt(sess *session.Session) string {
	var b strings.Builder
	b.WriteString("Generate the test cases we discussed as a JSON array. ")
	b.WriteString("Each case needs id, name, preconditions, steps and expectedResults.")
	if sess.Analysis != nil && sess.Analysis.TemplateInfo != "" {
		b.WriteString(" Template: ")
		b.WriteString(sess.Analysis.TemplateInfo)
	}
	return b.String()
}

func localAnalysis(summary *testcase.TemplateSummary) *session.Analysis {
	info := fmt.Sprintf("Template with root <%s>, %d elements, %d existing cases.",
		summary.RootTag, summary.TotalElements, summary.CaseCount)
	suggestions := []string{
		"Describe the feature under test and its main flows.",
		"Mention edge cases and failure modes that matter to you.",
		"Say \"start generation\" when the requirements are complete.",
	}
	return &session.Analysis{TemplateInfo: info, Suggestions: suggestions}
}

func greetingFor(analysis *session.Analysis) string {
	var b strings.Builder
	b.WriteString("I have read your template. ")
	b.WriteString(analysis.TemplateInfo)
	b.WriteString(" Tell me about the requirements, then say \"start generation\" when you are ready.")
	return b.String()
}

// extractCases pulls a JSON test case array out of a model answer, which may
// wrap it in prose or a fenced code block.
func extractCases(answer string) ([]testcase.TestCase, error) {
	start := strings.Index(answer, "[")
	end := strings.LastIndex(answer, "]")
	if start < 0 || end <= start {
		return nil, errors.New("no JSON array in answer")
	}

	var cases []testcase.TestCase
	if err := json.Unmarshal([]byte(answer[start:end+1]), &cases); err != nil {
		return nil, fmt.Errorf("decode cases: %w", err)
	}
	if err := testcase.Validate(cases); err != nil {
		return nil, err
	}
	return cases, nil
}

// fallbackCases produces a minimal deterministic set shaped after the
// session's template when the model answer cannot be parsed.
func fallbackCases(sess *session.Session) []testcase.TestCase {
	name := "Generated case"
	if sess.Analysis != nil && sess.Analysis.TemplateInfo != "" {
		name = "Generated case from template"
	}
	return []testcase.TestCase{
		{
			ID:   "TC001",
			Name: name + " - main flow",
			Preconditions: []testcase.Block{
				{ID: "pre1", Name: "System is reachable", Expanded: true},
			},
			Steps: []testcase.Block{
				{ID: "step1", Name: "Execute the main flow", Expanded: true},
			},
			ExpectedResults: []testcase.Block{
				{ID: "exp1", Name: "The flow completes without errors", Expanded: true},
			},
		},
		{
			ID:   "TC002",
			Name: name + " - invalid input",
			Preconditions: []testcase.Block{
				{ID: "pre1", Name: "System is reachable", Expanded: true},
			},
			Steps: []testcase.Block{
				{ID: "step1", Name: "Submit invalid input", Expanded: true},
			},
			ExpectedResults: []testcase.Block{
				{ID: "exp1", Name: "A validation error is reported", Expanded: true},
			},
		},
	}
}
