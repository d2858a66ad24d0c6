package assessment

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/anees/internal/generate"
	"github.com/ent0n29/anees/internal/safety"
	"github.com/ent0n29/anees/internal/session"
)

type call struct {
	kind string
	in   generate.Input
}

type scriptedGenerator struct {
	mu      sync.Mutex
	calls   []call
	options []string
	block   chan struct{}
}

func (g *scriptedGenerator) record(kind string, in generate.Input) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	in.SkipHistory = append([]string(nil), in.SkipHistory...)
	g.calls = append(g.calls, call{kind: kind, in: in})
	n := 0
	for _, c := range g.calls {
		if c.kind == kind {
			n++
		}
	}
	return n
}

func (g *scriptedGenerator) Choice(_ context.Context, in generate.Input) session.Question {
	n := g.record("choice", in)
	opts := g.options
	if opts == nil {
		opts = []string{"Plan ahead", "B) Go with the flow", "c) Ask a friend"}
	}
	return session.Question{Text: fmt.Sprintf("choice %d", n), Options: append([]string(nil), opts...)}
}

func (g *scriptedGenerator) Open(ctx context.Context, in generate.Input) string {
	if g.block != nil {
		select {
		case <-g.block:
		case <-ctx.Done():
		}
	}
	n := g.record("open", in)
	return fmt.Sprintf("open %d", n)
}

func (g *scriptedGenerator) Empathize(_ context.Context, feeling string) string {
	g.record("empathy", generate.Input{})
	return "I hear that you feel " + feeling + "."
}

func (g *scriptedGenerator) byKind(kind string) []call {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []call
	for _, c := range g.calls {
		if c.kind == kind {
			out = append(out, c)
		}
	}
	return out
}

type stubSynth struct {
	calls       int
	personality []session.Answer
	mental      []session.Answer
}

func (s *stubSynth) Synthesize(_ context.Context, _ string, p, m []session.Answer, _ []session.Utterance) string {
	s.calls++
	s.personality, s.mental = p, m
	return "integrated report"
}

func newTestEngine(t *testing.T) (*Engine, *scriptedGenerator, *stubSynth) {
	t.Helper()
	gen := &scriptedGenerator{}
	synth := &stubSynth{}
	e := NewEngine(session.NewStore(time.Minute), safety.NewGate(safety.Directory{}), gen, synth, nil, nil)
	return e, gen, synth
}

func send(t *testing.T, e *Engine, user string, msgs ...string) Response {
	t.Helper()
	var resp Response
	for _, m := range msgs {
		var err error
		resp, err = e.Process(context.Background(), user, m)
		require.NoError(t, err, "message %q", m)
	}
	return resp
}

func step(t *testing.T, e *Engine, user string) string {
	t.Helper()
	for _, info := range e.Sessions() {
		if info.UserID == user {
			return info.CurrentStep
		}
	}
	return ""
}

func toPersonality1(t *testing.T, e *Engine, user string) Response {
	t.Helper()
	return send(t, e, user, "", "okay I guess", "yes", "start")
}

func TestIntroGreetsAndAdvances(t *testing.T) {
	e, _, _ := newTestEngine(t)
	resp := send(t, e, "u1", "")
	assert.Equal(t, msgGreeting, resp.Response)
	assert.Equal(t, session.PhaseIntro, resp.Phase)
	assert.Equal(t, "u1", resp.UserID)
	assert.NotNil(t, resp.Options)
	assert.Nil(t, resp.FinalReport)
	assert.Nil(t, resp.Error)
	assert.Equal(t, "feeling_check", step(t, e, "u1"))
}

func TestFeelingCheckRejectsNumbersAndShortInput(t *testing.T) {
	e, gen, _ := newTestEngine(t)
	send(t, e, "u1", "")

	for _, in := range []string{"42", "3.5", " 7 "} {
		resp := send(t, e, "u1", in)
		assert.Equal(t, msgNumericFeeling, resp.Response, in)
		assert.Equal(t, session.PhaseUnset, resp.Phase)
		assert.Equal(t, "feeling_check", step(t, e, "u1"))
	}
	resp := send(t, e, "u1", "k")
	assert.Equal(t, msgShortFeeling, resp.Response)
	assert.Equal(t, "feeling_check", step(t, e, "u1"))
	assert.Empty(t, gen.byKind("empathy"))

	resp = send(t, e, "u1", "1.2.3")
	assert.Equal(t, "I hear that you feel 1.2.3."+msgReadyPrompt, resp.Response)
	assert.Equal(t, "ready_check", step(t, e, "u1"))
}

func TestReadyCheckDeclineDestroysSession(t *testing.T) {
	e, _, _ := newTestEngine(t)
	resp := send(t, e, "u1", "", "fine thanks", "not now")
	assert.Equal(t, msgNotReady, resp.Response)
	assert.True(t, resp.IsFinished)
	assert.Zero(t, e.ActiveSessions())
}

func TestReadyCheckAcceptsY(t *testing.T) {
	e, gen, _ := newTestEngine(t)
	resp := send(t, e, "u1", "", "fine thanks", " Y ")
	assert.Equal(t, msgBegin, resp.Response)
	assert.Equal(t, session.PhasePersonality, resp.Phase)
	assert.Equal(t, "waiting_for_start", step(t, e, "u1"))
	assert.Empty(t, gen.byKind("choice"))
}

func TestFirstPersonalityQuestionIsNormalized(t *testing.T) {
	e, gen, _ := newTestEngine(t)
	resp := toPersonality1(t, e, "u1")

	want := []string{"A) Plan ahead", "B) Go with the flow", "c) Ask a friend"}
	assert.Equal(t, want, resp.Options)
	assert.Equal(t, 1, resp.QuestionNumber)
	assert.Equal(t, "[Personality Question 1/5]\n choice 1\n  A) Plan ahead\n  B) Go with the flow\n  c) Ask a friend\n"+
		"\nYour choice (A/B/C), 'skip', 'decline', or 'exit': ", resp.Response)

	calls := gen.byKind("choice")
	require.Len(t, calls, 1)
	assert.Equal(t, 1, calls[0].in.Index)
	assert.False(t, calls[0].in.Decline)
	assert.Empty(t, calls[0].in.SkipHistory)
}

func TestPersonalitySkipAndDeclineKeepNumbering(t *testing.T) {
	e, gen, _ := newTestEngine(t)
	toPersonality1(t, e, "u1")
	send(t, e, "u1", "A")

	resp := send(t, e, "u1", "skip")
	assert.Equal(t, 2, resp.QuestionNumber)
	assert.Equal(t, session.PhasePersonality, resp.Phase)
	assert.True(t, strings.HasPrefix(resp.Response, msgSkipLeadIn+"choice 3\n"), resp.Response)
	assert.Equal(t, "personality_2", step(t, e, "u1"))

	resp = send(t, e, "u1", "DECLINE")
	assert.Equal(t, 2, resp.QuestionNumber)
	assert.True(t, strings.HasPrefix(resp.Response, msgDeclineLeadIn+"choice 4\n"), resp.Response)
	assert.Equal(t, "personality_2", step(t, e, "u1"))

	calls := gen.byKind("choice")
	require.Len(t, calls, 4)
	assert.Equal(t, []string{"choice 2"}, calls[2].in.SkipHistory)
	assert.False(t, calls[2].in.Decline)
	assert.Equal(t, 2, calls[2].in.Index)
	assert.Equal(t, []string{"choice 2", "choice 3"}, calls[3].in.SkipHistory)
	assert.True(t, calls[3].in.Decline)
	assert.Equal(t, 2, calls[3].in.Index)
}

func TestPersonalityInvalidInputRedisplays(t *testing.T) {
	e, gen, _ := newTestEngine(t)
	toPersonality1(t, e, "u1")

	resp := send(t, e, "u1", "D")
	assert.Equal(t, "Please choose one of: A, B, C, or type 'skip' or 'decline'\n\n"+
		"[Personality Question 1/5]\nchoice 1\n  A) Plan ahead\n  B) Go with the flow\n  c) Ask a friend\n"+
		"\nYour choice (A/B/C), 'skip', 'decline', or 'exit': ", resp.Response)
	assert.Equal(t, 1, resp.QuestionNumber)
	assert.Len(t, resp.Options, 3)
	assert.Len(t, gen.byKind("choice"), 1)
	assert.Equal(t, "personality_1", step(t, e, "u1"))
}

func TestPersonalityAnswerRecordsFullOption(t *testing.T) {
	e, gen, _ := newTestEngine(t)
	toPersonality1(t, e, "u1")

	resp := send(t, e, "u1", "b")
	assert.Equal(t, 2, resp.QuestionNumber)
	assert.True(t, strings.HasPrefix(resp.Response, " [Personality Question 2/5]\nchoice 2\n"), resp.Response)

	calls := gen.byKind("choice")
	require.Len(t, calls, 2)
	offered := []string{"A) Plan ahead", "B) Go with the flow", "c) Ask a friend"}
	assert.Equal(t, []session.Answer{{Question: "choice 1", Options: offered, Answer: "B) Go with the flow"}}, calls[1].in.Answers)
	require.Len(t, calls[1].in.History, 1)
	assert.Equal(t, "For the personality question 'choice 1', my answer is: B) Go with the flow.", calls[1].in.History[0].Content)
	assert.Equal(t, 2, calls[1].in.Index)
}

func TestEndToEndCompletesAndDestroysSession(t *testing.T) {
	e, gen, synth := newTestEngine(t)

	script := []string{"", "okay I guess", "yes", "A", "A", "A", "A", "A", "answer1", "answer2", "answer3", "answer4", "answer5"}
	var resp Response
	for i, m := range script {
		var err error
		resp, err = e.Process(context.Background(), "u1", m)
		require.NoError(t, err)
		assert.False(t, resp.IsFinished, "turn %d finished early", i)
	}
	// "answer1" starts with a letter and answers personality question 5.
	assert.Equal(t, "mental_5", step(t, e, "u1"))
	assert.Equal(t, 10, resp.QuestionNumber)

	resp = send(t, e, "u1", "answer6")
	assert.Equal(t, msgAllAnswered, resp.Response)
	assert.Equal(t, 10, resp.QuestionNumber)
	assert.False(t, resp.IsFinished)
	assert.Equal(t, "generating_report", step(t, e, "u1"))
	assert.Zero(t, synth.calls)

	resp = send(t, e, "u1", "thanks")
	require.NotNil(t, resp.FinalReport)
	assert.Equal(t, "integrated report", *resp.FinalReport)
	assert.True(t, resp.IsFinished)
	assert.Equal(t, session.PhaseCompleted, resp.Phase)
	assert.Equal(t, msgSummaryHeader+"integrated report"+msgDisclaimer, resp.Response)
	assert.Equal(t, 1, synth.calls)
	assert.Len(t, synth.personality, 5)
	assert.Len(t, synth.mental, 5)
	assert.Equal(t, "answer2", synth.mental[0].Answer)
	for i, a := range synth.personality {
		assert.Equal(t, fmt.Sprintf("choice %d", i+1), a.Question)
		assert.Equal(t, []string{"A) Plan ahead", "B) Go with the flow", "c) Ask a friend"}, a.Options)
		assert.Equal(t, "A) Plan ahead", a.Answer)
	}
	for _, a := range synth.mental {
		assert.Nil(t, a.Options)
	}
	assert.Zero(t, e.ActiveSessions())

	// mental_1 generates twice: the question it answers, then the next one.
	opens := gen.byKind("open")
	idx := make([]int, len(opens))
	for i, c := range opens {
		idx[i] = c.in.Index
	}
	assert.Equal(t, []int{6, 7, 8, 9, 10}, idx)

	resp = send(t, e, "u1", "hello again")
	assert.Equal(t, msgGreeting, resp.Response)
	assert.Equal(t, "feeling_check", step(t, e, "u1"))
}

func toMental(t *testing.T, e *Engine, user string) {
	t.Helper()
	toPersonality1(t, e, user)
	send(t, e, user, "A", "A", "A", "A", "A")
	require.Equal(t, "mental_1", step(t, e, user))
}

func TestTransitionToMentalPhase(t *testing.T) {
	e, _, _ := newTestEngine(t)
	toPersonality1(t, e, "u1")
	resp := send(t, e, "u1", "A", "A", "A", "A", "c")
	assert.Equal(t, msgTransition, resp.Response)
	assert.Equal(t, session.PhaseMentalHealth, resp.Phase)
	assert.Equal(t, 5, resp.QuestionNumber)
	assert.Empty(t, resp.Options)
}

func TestMentalNumbering(t *testing.T) {
	e, _, _ := newTestEngine(t)
	toMental(t, e, "u1")

	resp := send(t, e, "u1", "tired lately")
	assert.Equal(t, 7, resp.QuestionNumber)
	assert.Equal(t, "\nAnees [Mental Health Question 2/5]\nopen 2\n\nYou (or type 'skip', 'decline', 'exit'): ", resp.Response)

	resp = send(t, e, "u1", "not sleeping")
	assert.Equal(t, "mental_3", step(t, e, "u1"))
	assert.Equal(t, 8, resp.QuestionNumber)
	assert.Equal(t, "\nAnees [Mental Health Question 3/5]\n open 3\n\nYou (or type 'skip', 'decline', 'exit'): ", resp.Response)

	resp = send(t, e, "u1", "skip")
	assert.Equal(t, 8, resp.QuestionNumber)
	assert.Equal(t, session.PhaseMentalHealth, resp.Phase)
	assert.Equal(t, "mental_3", step(t, e, "u1"))
}

func TestMentalSkipAndDecline(t *testing.T) {
	e, gen, _ := newTestEngine(t)
	toMental(t, e, "u1")

	// Nothing has been shown yet at mental_1, so nothing is recorded as skipped.
	resp := send(t, e, "u1", "skip")
	assert.Equal(t, 6, resp.QuestionNumber)
	assert.Equal(t, msgSkipLeadIn+"[Mental Health Question 1/5]\n open 1\n(or type 'skip', 'decline', 'exit'): ", resp.Response)

	resp = send(t, e, "u1", "Decline")
	assert.Equal(t, 6, resp.QuestionNumber)
	assert.Equal(t, " "+msgDeclineLeadIn+"[Mental Health Question 1/5]\nopen 2\n\n(or type 'skip', 'decline', 'exit'): ", resp.Response)

	opens := gen.byKind("open")
	require.Len(t, opens, 2)
	assert.Empty(t, opens[0].in.SkipHistory)
	assert.False(t, opens[0].in.Decline)
	assert.Equal(t, []string{"open 1"}, opens[1].in.SkipHistory)
	assert.True(t, opens[1].in.Decline)
	assert.Equal(t, 6, opens[1].in.Index)
}

func TestMentalEmptyMessageReprompts(t *testing.T) {
	e, gen, _ := newTestEngine(t)
	toMental(t, e, "u1")
	send(t, e, "u1", "first answer")

	resp := send(t, e, "u1", "   ")
	assert.Equal(t, msgShortFeeling+"\n\n[Mental Health Question 2/5]\n open 2\n(or type 'skip', 'decline', 'exit'): ", resp.Response)
	assert.Equal(t, "mental_2", step(t, e, "u1"))
	assert.Len(t, gen.byKind("open"), 2)
}

func TestExitDestroysSession(t *testing.T) {
	e, _, _ := newTestEngine(t)
	toPersonality1(t, e, "p")
	resp := send(t, e, "p", "exit")
	assert.Equal(t, msgPersonalityExit, resp.Response)
	assert.True(t, resp.IsFinished)
	assert.Equal(t, 1, resp.QuestionNumber)

	toMental(t, e, "m")
	resp = send(t, e, "m", "EXIT")
	assert.Equal(t, msgMentalExit, resp.Response)
	assert.True(t, resp.IsFinished)
	assert.Equal(t, 6, resp.QuestionNumber)

	assert.Zero(t, e.ActiveSessions())
	resp = send(t, e, "m", "A")
	assert.Equal(t, msgGreeting, resp.Response)
}

func TestSafetyTripAtAnyStep(t *testing.T) {
	cases := []struct {
		name  string
		setup func(t *testing.T, e *Engine, user string)
		step  string
	}{
		{"fresh session", func(*testing.T, *Engine, string) {}, ""},
		{"feeling check", func(t *testing.T, e *Engine, u string) { send(t, e, u, "") }, "feeling_check"},
		{"ready check", func(t *testing.T, e *Engine, u string) { send(t, e, u, "", "okay I guess") }, "ready_check"},
		{"waiting for start", func(t *testing.T, e *Engine, u string) { send(t, e, u, "", "okay I guess", "yes") }, "waiting_for_start"},
		{"personality", func(t *testing.T, e *Engine, u string) { toPersonality1(t, e, u); send(t, e, u, "A", "A") }, "personality_3"},
		{"mental", func(t *testing.T, e *Engine, u string) { toMental(t, e, u); send(t, e, u, "a1", "a2") }, "mental_3"},
		{"generating report", func(t *testing.T, e *Engine, u string) {
			toMental(t, e, u)
			send(t, e, u, "a1", "a2", "a3", "a4", "a5")
		}, "generating_report"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e, gen, synth := newTestEngine(t)
			tc.setup(t, e, "u1")
			require.Equal(t, tc.step, step(t, e, "u1"))

			gen.mu.Lock()
			before := len(gen.calls)
			gen.mu.Unlock()

			resp := send(t, e, "u1", "I want to end my life")
			assert.True(t, resp.IsFinished)
			require.NotNil(t, resp.Error)
			assert.Equal(t, ErrorSafetyConcern, *resp.Error)
			assert.Equal(t, session.PhaseError, resp.Phase)
			assert.Zero(t, resp.QuestionNumber)
			assert.Nil(t, resp.FinalReport)
			assert.Contains(t, resp.Response, "Jordan support:")
			assert.Zero(t, e.ActiveSessions())
			assert.Zero(t, synth.calls)

			gen.mu.Lock()
			after := len(gen.calls)
			gen.mu.Unlock()
			assert.Equal(t, before, after, "no generation after the gate trips")

			resp = send(t, e, "u1", "")
			assert.Equal(t, msgGreeting, resp.Response)
			assert.Equal(t, "feeling_check", step(t, e, "u1"))
		})
	}
}

func TestCanceledTurnLeavesSessionIntact(t *testing.T) {
	e, gen, _ := newTestEngine(t)
	toMental(t, e, "u1")
	gen.block = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Process(ctx, "u1", "an answer")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "mental_1", step(t, e, "u1"))

	close(gen.block)
	resp := send(t, e, "u1", "an answer")
	assert.Equal(t, 7, resp.QuestionNumber)
}

func TestConcurrentTurnsAreSerialized(t *testing.T) {
	e, _, _ := newTestEngine(t)
	toPersonality1(t, e, "u1")

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Process(context.Background(), "u1", "A")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, "personality_5", step(t, e, "u1"))
	infos := e.Sessions()
	require.Len(t, infos, 1)
	assert.Equal(t, 4, infos[0].QuestionsAnswered)
}

func TestStartAndDelete(t *testing.T) {
	e, _, _ := newTestEngine(t)
	resp, err := e.Start(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, resp.UserID)
	assert.Equal(t, msgGreeting, resp.Response)

	require.NoError(t, e.Delete(resp.UserID))
	assert.ErrorIs(t, e.Delete(resp.UserID), ErrNotFound)
}

func TestEmptyUserIDGetsGeneratedID(t *testing.T) {
	e, _, _ := newTestEngine(t)
	resp := send(t, e, "", "")
	assert.NotEmpty(t, resp.UserID)
	assert.Equal(t, 1, e.ActiveSessions())
}
