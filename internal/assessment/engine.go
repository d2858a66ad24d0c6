// Package assessment runs the scripted conversation: safety gate first on every
// turn, then the step handler for the session's current position.
package assessment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ent0n29/anees/internal/generate"
	"github.com/ent0n29/anees/internal/observability"
	"github.com/ent0n29/anees/internal/safety"
	"github.com/ent0n29/anees/internal/session"
)

const questionsPerPhase = 5

var ErrNotFound = errors.New("session not found")

// Generator produces question and reply text. Implementations absorb their own
// failures.
type Generator interface {
	Choice(ctx context.Context, in generate.Input) session.Question
	Open(ctx context.Context, in generate.Input) string
	Empathize(ctx context.Context, feeling string) string
}

// Synthesizer produces the final narrative.
type Synthesizer interface {
	Synthesize(ctx context.Context, userID string, personality, mental []session.Answer, history []session.Utterance) string
}

type Engine struct {
	store   *session.Store
	gate    *safety.Gate
	gen     Generator
	report  Synthesizer
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

func NewEngine(store *session.Store, gate *safety.Gate, gen Generator, report Synthesizer, logger *zap.Logger, metrics *observability.Metrics) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gate == nil {
		gate = safety.NewGate(safety.Directory{})
	}
	return &Engine{
		store:   store,
		gate:    gate,
		gen:     gen,
		report:  report,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// NewUserID returns a server-generated session key.
func (e *Engine) NewUserID() string { return uuid.NewString() }

// Start opens a fresh session under a new id and runs its greeting turn.
func (e *Engine) Start(ctx context.Context) (Response, error) {
	return e.Process(ctx, e.NewUserID(), "")
}

// Sessions lists live sessions.
func (e *Engine) Sessions() []session.Info { return e.store.List() }

// ActiveSessions returns the number of live sessions.
func (e *Engine) ActiveSessions() int { return e.store.ActiveCount() }

// Delete removes a live session.
func (e *Engine) Delete(userID string) error {
	if !e.store.Remove(userID) {
		return ErrNotFound
	}
	e.metrics.SessionEvent("deleted")
	e.metrics.SetActiveSessions(e.store.ActiveCount())
	return nil
}

// outcome tells Process what to do with the session after a step.
type outcome int

const (
	keep outcome = iota
	finish
)

// Process runs one turn for userID. An empty userID gets a new server-generated id.
// If ctx ends before the turn completes the stored session is left untouched and an
// error is returned.
func (e *Engine) Process(ctx context.Context, userID, message string) (Response, error) {
	if strings.TrimSpace(userID) == "" {
		userID = e.NewUserID()
	}

	lease, created := e.store.Acquire(userID, func(s *session.Session) {
		s.RiskSessionID = e.gate.NewSessionID()
	})
	if created {
		e.metrics.SessionEvent("created")
		e.metrics.SetActiveSessions(e.store.ActiveCount())
		e.logger.Info("session created", zap.String("user_id", userID))
	}

	resp := Response{UserID: userID, Options: []string{}}

	risk := e.gate.Decide(message, lease.Session.RiskSessionID)
	if risk.Tripped() {
		lease.Remove()
		e.metrics.SessionEvent("safety_trip")
		e.metrics.SetActiveSessions(e.store.ActiveCount())
		e.logger.Warn("safety gate tripped, session destroyed",
			zap.String("user_id", userID),
			zap.String("step", lease.Session.Step.String()),
			zap.Int("patterns", len(risk.Matched)),
		)
		resp.Response = e.gate.FormatReferral(risk)
		resp.Phase = session.PhaseError
		resp.IsFinished = true
		resp.Error = strPtr(ErrorSafetyConcern)
		resp.Timestamp = e.now().UTC()
		return resp, nil
	}

	work := lease.Session.Clone()
	step := work.Step
	e.metrics.Turn(string(step.Kind))

	out, event := e.dispatch(ctx, work, strings.TrimSpace(message), &resp)
	resp.Timestamp = e.now().UTC()

	if err := ctx.Err(); err != nil {
		lease.Release()
		e.logger.Error("turn aborted", zap.String("user_id", userID), zap.String("step", step.String()), zap.Error(err))
		return Response{}, fmt.Errorf("process turn: %w", err)
	}

	if out == finish {
		lease.Remove()
		e.metrics.SessionEvent(event)
		e.metrics.SetActiveSessions(e.store.ActiveCount())
		e.logger.Info("session ended", zap.String("user_id", userID), zap.String("event", event), zap.String("step", step.String()))
		return resp, nil
	}

	*lease.Session = *work
	lease.Release()
	return resp, nil
}

func (e *Engine) dispatch(ctx context.Context, s *session.Session, msg string, resp *Response) (outcome, string) {
	switch s.Step.Kind {
	case session.StepIntro:
		return e.intro(s, resp)
	case session.StepFeelingCheck:
		return e.feelingCheck(ctx, s, msg, resp)
	case session.StepReadyCheck:
		return e.readyCheck(s, msg, resp)
	case session.StepWaitingForStart:
		return e.waitingForStart(ctx, s, resp)
	case session.StepPersonality:
		return e.personality(ctx, s, msg, resp)
	case session.StepMental:
		return e.mental(ctx, s, msg, resp)
	case session.StepGeneratingReport:
		return e.generatingReport(ctx, s, resp)
	default:
		e.logger.Error("unknown step, restarting session", zap.String("step", s.Step.String()))
		*s = session.Session{UserID: s.UserID, RiskSessionID: s.RiskSessionID, CreatedAt: s.CreatedAt, Step: session.Step{Kind: session.StepIntro}}
		return e.intro(s, resp)
	}
}

func (e *Engine) intro(s *session.Session, resp *Response) (outcome, string) {
	resp.Response = msgGreeting
	resp.Phase = session.PhaseIntro
	s.Step = session.Step{Kind: session.StepFeelingCheck}
	return keep, ""
}

func (e *Engine) feelingCheck(ctx context.Context, s *session.Session, msg string, resp *Response) (outcome, string) {
	if isNumeric(msg) {
		resp.Response = msgNumericFeeling
		return keep, ""
	}
	if utf8.RuneCountInString(msg) < 2 {
		resp.Response = msgShortFeeling
		return keep, ""
	}

	reply := e.gen.Empathize(ctx, msg)
	resp.Response = reply + msgReadyPrompt
	resp.Phase = session.PhaseIntro
	s.Step = session.Step{Kind: session.StepReadyCheck}
	return keep, ""
}

func (e *Engine) readyCheck(s *session.Session, msg string, resp *Response) (outcome, string) {
	switch strings.ToLower(msg) {
	case "yes", "y":
	default:
		resp.Response = msgNotReady
		resp.IsFinished = true
		return finish, "declined"
	}
	resp.Response = msgBegin
	resp.Phase = session.PhasePersonality
	s.Phase = session.PhasePersonality
	s.Step = session.Step{Kind: session.StepWaitingForStart}
	return keep, ""
}

func (e *Engine) waitingForStart(ctx context.Context, s *session.Session, resp *Response) (outcome, string) {
	q := e.nextChoice(ctx, s, 1, false)
	resp.Response = firstChoiceText(q.Text, q.Options)
	resp.Options = q.Options
	resp.QuestionNumber = 1
	resp.Phase = session.PhasePersonality
	s.Step = session.Personality(1)
	return keep, ""
}

// nextChoice generates personality question n, normalizes it and makes it pending.
func (e *Engine) nextChoice(ctx context.Context, s *session.Session, n int, decline bool) session.Question {
	q := e.gen.Choice(ctx, generate.Input{
		History:     s.History,
		Answers:     s.PersonalityAnswers,
		Index:       n,
		SkipHistory: s.PersonalitySkipHistory,
		Decline:     decline,
	})
	q.Options = NormalizeOptions(q.Options)
	s.Pending = &q
	return q
}

func (e *Engine) personality(ctx context.Context, s *session.Session, msg string, resp *Response) (outcome, string) {
	n := s.Step.N
	resp.QuestionNumber = n
	resp.Phase = session.PhasePersonality

	if s.Pending == nil {
		q := e.nextChoice(ctx, s, n, false)
		resp.Response = nextChoiceText(n, q.Text, q.Options)
		resp.Options = q.Options
		return keep, ""
	}

	switch strings.ToUpper(msg) {
	case "SKIP", "DECLINE":
		decline := strings.EqualFold(msg, "DECLINE")
		leadIn := msgSkipLeadIn
		if decline {
			leadIn = msgDeclineLeadIn
		}
		s.PersonalitySkipHistory = append(s.PersonalitySkipHistory, s.Pending.Text)
		q := e.nextChoice(ctx, s, n, decline)
		resp.Response = regeneratedChoiceText(leadIn, q.Text, q.Options)
		resp.Options = q.Options
		return keep, ""
	case "EXIT":
		resp.Response = msgPersonalityExit
		resp.IsFinished = true
		return finish, "exited"
	}

	idx := choiceIndex(msg, len(s.Pending.Options))
	if idx < 0 {
		resp.Response = invalidChoiceText(n, s.Pending.Text, s.Pending.Options)
		resp.Options = s.Pending.Options
		return keep, ""
	}

	chosen := s.Pending.Options[idx]
	s.PersonalityAnswers = append(s.PersonalityAnswers, session.Answer{
		Question: s.Pending.Text,
		Options:  append([]string(nil), s.Pending.Options...),
		Answer:   chosen,
	})
	s.History = append(s.History, session.Utterance{
		Role:    "user",
		Content: fmt.Sprintf("For the personality question '%s', my answer is: %s.", s.Pending.Text, chosen),
	})

	if n < questionsPerPhase {
		q := e.nextChoice(ctx, s, n+1, false)
		resp.Response = nextChoiceText(n+1, q.Text, q.Options)
		resp.Options = q.Options
		resp.QuestionNumber = n + 1
		s.Step = session.Personality(n + 1)
		return keep, ""
	}

	s.Pending = nil
	resp.Response = msgTransition
	resp.Phase = session.PhaseMentalHealth
	s.Phase = session.PhaseMentalHealth
	s.Step = session.Mental(1)
	return keep, ""
}

// openQuestion generates the mental question shown at overall position index.
func (e *Engine) openQuestion(ctx context.Context, s *session.Session, index int, decline bool) string {
	q := e.gen.Open(ctx, generate.Input{
		History:     s.History,
		Answers:     s.MentalAnswers,
		Index:       index,
		SkipHistory: s.MentalSkipHistory,
		Decline:     decline,
	})
	s.LastMentalQuestion = q
	return q
}

func (e *Engine) mental(ctx context.Context, s *session.Session, msg string, resp *Response) (outcome, string) {
	n := s.Step.N
	resp.QuestionNumber = n + questionsPerPhase
	resp.Phase = session.PhaseMentalHealth

	switch strings.ToLower(msg) {
	case "skip", "decline":
		decline := strings.EqualFold(msg, "decline")
		if s.LastMentalQuestion != "" {
			s.MentalSkipHistory = append(s.MentalSkipHistory, s.LastMentalQuestion)
		}
		q := e.openQuestion(ctx, s, n+questionsPerPhase, decline)
		if decline {
			resp.Response = mentalDeclineText(n, q)
		} else {
			resp.Response = mentalSkipText(n, q)
		}
		return keep, ""
	case "exit":
		resp.Response = msgMentalExit
		resp.IsFinished = true
		return finish, "exited"
	case "":
		resp.Response = emptyMentalText(n, s.LastMentalQuestion)
		return keep, ""
	}

	if n == 1 {
		// The first mental question is generated on the turn that answers it.
		e.openQuestion(ctx, s, 1+questionsPerPhase, false)
	}
	if s.LastMentalQuestion != "" {
		s.MentalAnswers = append(s.MentalAnswers, session.Answer{Question: s.LastMentalQuestion, Answer: msg})
		s.History = append(s.History, session.Utterance{Role: "user", Content: "Answer: " + msg})
	}

	if n < questionsPerPhase {
		q := e.openQuestion(ctx, s, n+1+questionsPerPhase, false)
		resp.Response = nextMentalText(n, n+1, q)
		resp.QuestionNumber = n + 1 + questionsPerPhase
		s.Step = session.Mental(n + 1)
		return keep, ""
	}

	resp.Response = msgAllAnswered
	s.Step = session.Step{Kind: session.StepGeneratingReport}
	return keep, ""
}

func (e *Engine) generatingReport(ctx context.Context, s *session.Session, resp *Response) (outcome, string) {
	report := e.report.Synthesize(ctx, s.UserID, s.PersonalityAnswers, s.MentalAnswers, s.History)
	s.Phase = session.PhaseCompleted
	resp.Response = finalText(report)
	resp.FinalReport = strPtr(report)
	resp.IsFinished = true
	resp.Phase = session.PhaseCompleted
	return finish, "finished"
}

// isNumeric reports whether s is digits with at most one decimal point.
func isNumeric(s string) bool {
	s = strings.Replace(s, ".", "", 1)
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
