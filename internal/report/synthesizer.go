package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/anees/internal/llm"
	"github.com/ent0n29/anees/internal/observability"
	"github.com/ent0n29/anees/internal/retrieval"
	"github.com/ent0n29/anees/internal/session"
)

const Flow = "report"

const integrationQuery = "Myers-Briggs personality types traits coping styles and DSM-5 concepts " +
	"about mood, anxiety, stress, personality functioning and resilience."

const Fallback = "I had trouble generating the final summary. " +
	"But from what you've shared, it could really help to talk to a trusted adult " +
	"or a mental health professional about how you're feeling."

const systemPrompt = "You are an mental health assistant for university student's.\n" +
	"You have:\n" +
	"- A summary of the university student's answers to personality-style questions (MBTI-like).\n" +
	"- A summary of the university student's answers to mental-health-style questions.\n" +
	"- Reference excerpts from DSM-5 and MBTI documents.\n\n" +
	"Your job:\n" +
	"- Provide a clear, kind, and NON-DIAGNOSTIC overview of patterns.\n" +
	"- Explain how certain personality traits (introversion/extraversion, sensing/intuition, " +
	"thinking/feeling, judging/perceiving) *might* relate to how they experience stress, mood, " +
	"relationships, and university life.\n" +
	"- Use DSM-5 concepts to describe general themes (like anxiety, low mood, difficulty concentrating) " +
	"without naming specific disorders but giving indications.\n" +
	"- Suggest healthy coping strategies (sleep, routines, physical activity, hobbies, social support, " +
	"emotion regulation, CBT-style thinking, asking for help, etc.).\n" +
	"- Encourage them to talk with a trusted professional (a licensed mental health professional)" +
	" if they are struggling.\n" +
	"- If their answers sound like they might be in significant distress, gently recommend reaching out " +
	"for professional help. Do NOT give any self-harm instructions or anything unsafe.\n" +
	"- Keep the tone supportive, non-judgmental, and easy to understand.\n" +
	"Format the response using clear section headers:\n" +
	"- Important Notice\n" +
	"- Symptom Indicator Overview\n" +
	"- DSM-Informed Themes\n" +
	"- Personality Profile (MBTI)\n" +
	"- Personality & Coping Link\n" +
	"- What This Means\n" +
	"- What Helps\n" +
	"- When to Seek Support\n" +
	"- Final Reassurance\n" +
	"Do NOT write a long essay. " +
	"Use short paragraphs and bullet points."

// Synthesizer turns a completed assessment into the integrated narrative.
type Synthesizer struct {
	retriever retrieval.Retriever
	completer llm.Completer
	archive   Archive
	logger    *zap.Logger
	metrics   *observability.Metrics
	now       func() time.Time
}

func NewSynthesizer(r retrieval.Retriever, c llm.Completer, a Archive, logger *zap.Logger, metrics *observability.Metrics) *Synthesizer {
	if r == nil {
		r = retrieval.NoneRetriever{}
	}
	if a == nil {
		a = NoneArchive{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{retriever: r, completer: c, archive: a, logger: logger, metrics: metrics, now: time.Now}
}

// Synthesize always returns displayable text. Only successfully generated reports
// are archived. history is accepted for parity with the generators and is not
// sent to the model.
func (s *Synthesizer) Synthesize(ctx context.Context, userID string, personality, mental []session.Answer, history []session.Utterance) string {
	start := time.Now()
	defer func() { s.metrics.ObserveGeneration(Flow, time.Since(start)) }()

	res, err := s.retriever.Retrieve(ctx, integrationQuery, 20)
	if err != nil {
		s.logger.Warn("retrieval failed, continuing without context", zap.String("flow", Flow), zap.Error(err))
		res = retrieval.Result{}
	}
	corpus := retrieval.BuildContext(res, 0.02, 10)

	user := fmt.Sprintf("DOCUMENT CONTEXT (DSM-5 + MBTI):\n%s\n\n"+
		"USER ANSWER SUMMARY:\n%s\n\n"+
		"Now write an integrated explanation that:\n"+
		"- Talks about their possible personality patterns and their personality type.\n"+
		"- Connects that to how they might experience stress or emotional ups and downs.\n"+
		"- Offers concrete, realistic suggestions they can try.\n"+
		"- Reminds them that this is not a diagnosis and that professionals can help.",
		corpus, answerSummary(personality, mental))

	text, err := s.completer.Complete(ctx, llm.Request{
		System:      systemPrompt,
		User:        user,
		Temperature: 0.3,
		MaxTokens:   900,
	})
	if err == nil && strings.TrimSpace(text) == "" {
		err = llm.ErrEmptyCompletion
	}
	if err != nil {
		s.logger.Warn("report generation failed, using fallback", zap.Error(err))
		s.metrics.Fallback(Flow)
		return Fallback
	}

	rec := newRecord(userID, personality, mental, text, s.now())
	if err := s.archive.Save(ctx, rec); err != nil {
		s.logger.Error("archive report", zap.String("user_id", userID), zap.Error(err))
	}
	return text
}

func answerSummary(personality, mental []session.Answer) string {
	var b strings.Builder
	b.WriteString("Personality-related answers:\n")
	for i, p := range personality {
		fmt.Fprintf(&b, "%d. Q: %s | A: %s\n", i+1, p.Question, p.Answer)
	}
	b.WriteString("\nMental health-related answers:\n")
	for i, m := range mental {
		short := strings.ReplaceAll(m.Answer, "\n", " ")
		if r := []rune(short); len(r) > 160 {
			short = string(r[:160]) + "..."
		}
		fmt.Fprintf(&b, "%d. Q: %s | A: %s\n", i+1, m.Question, short)
	}
	return b.String()
}
