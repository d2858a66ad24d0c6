package session

import (
	"fmt"
	"time"
)

// StepKind names a position in the assessment script.
type StepKind string

const (
	StepIntro            StepKind = "intro"
	StepFeelingCheck     StepKind = "feeling_check"
	StepReadyCheck       StepKind = "ready_check"
	StepWaitingForStart  StepKind = "waiting_for_start"
	StepPersonality      StepKind = "personality"
	StepMental           StepKind = "mental"
	StepGeneratingReport StepKind = "generating_report"
)

// Step is a tagged value; N is the 1-based question slot for the personality and
// mental kinds and zero otherwise.
type Step struct {
	Kind StepKind `json:"kind"`
	N    int      `json:"n,omitempty"`
}

func Personality(n int) Step { return Step{Kind: StepPersonality, N: n} }

func Mental(n int) Step { return Step{Kind: StepMental, N: n} }

// String renders the legacy label, e.g. "personality_3".
func (s Step) String() string {
	if s.Kind == StepPersonality || s.Kind == StepMental {
		return fmt.Sprintf("%s_%d", s.Kind, s.N)
	}
	return string(s.Kind)
}

// Phase is the coarse label returned to clients.
type Phase string

const (
	PhaseUnset        Phase = ""
	PhaseIntro        Phase = "intro"
	PhasePersonality  Phase = "personality"
	PhaseMentalHealth Phase = "mental_health"
	PhaseCompleted    Phase = "completed"
	PhaseError        Phase = "error"
)

// Answer is one question/answer pair. For fixed-choice questions Options holds
// the offered options and Answer the full text of the chosen one.
type Answer struct {
	Question string   `json:"question"`
	Options  []string `json:"options,omitempty"`
	Answer   string   `json:"answer"`
}

// CloneAnswers deep-copies answers, including their option slices.
func CloneAnswers(in []Answer) []Answer {
	if in == nil {
		return nil
	}
	out := make([]Answer, len(in))
	for i, a := range in {
		if a.Options != nil {
			a.Options = append([]string(nil), a.Options...)
		}
		out[i] = a
	}
	return out
}

// Utterance is one role-tagged history entry.
type Utterance struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Question is a generated fixed-choice question awaiting an answer.
type Question struct {
	Text    string   `json:"question"`
	Options []string `json:"options"`
}

// Session is the per-user conversation state. It is only touched while its lease
// is held.
type Session struct {
	UserID                 string      `json:"user_id"`
	Step                   Step        `json:"step"`
	Phase                  Phase       `json:"phase"`
	PersonalityAnswers     []Answer    `json:"personality_answers"`
	MentalAnswers          []Answer    `json:"mental_answers"`
	History                []Utterance `json:"history"`
	PersonalitySkipHistory []string    `json:"personality_skip_history"`
	MentalSkipHistory      []string    `json:"mental_skip_history"`
	Pending                *Question   `json:"current_question_data,omitempty"`
	LastMentalQuestion     string      `json:"last_mental_question"`
	RiskSessionID          string      `json:"risk_session_id"`
	CreatedAt              time.Time   `json:"created_at"`
	LastActivityAt         time.Time   `json:"last_activity_at"`
}

// Info is the admin snapshot of a live session.
type Info struct {
	UserID            string    `json:"user_id"`
	CreatedAt         time.Time `json:"created_at"`
	LastActivityAt    time.Time `json:"last_activity_at"`
	CurrentStep       string    `json:"current_step"`
	CurrentPhase      Phase     `json:"current_phase"`
	QuestionsAnswered int       `json:"questions_answered"`
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	c := *s
	c.PersonalityAnswers = CloneAnswers(s.PersonalityAnswers)
	c.MentalAnswers = CloneAnswers(s.MentalAnswers)
	c.History = append([]Utterance(nil), s.History...)
	c.PersonalitySkipHistory = append([]string(nil), s.PersonalitySkipHistory...)
	c.MentalSkipHistory = append([]string(nil), s.MentalSkipHistory...)
	if s.Pending != nil {
		p := Question{Text: s.Pending.Text, Options: append([]string(nil), s.Pending.Options...)}
		c.Pending = &p
	}
	return &c
}

func (s *Session) Info() Info {
	return Info{
		UserID:            s.UserID,
		CreatedAt:         s.CreatedAt,
		LastActivityAt:    s.LastActivityAt,
		CurrentStep:       s.Step.String(),
		CurrentPhase:      s.Phase,
		QuestionsAnswered: len(s.PersonalityAnswers) + len(s.MentalAnswers),
	}
}
