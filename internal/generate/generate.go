// Package generate produces the assessment's questions and the empathy reply. Every
// operation is grounded in retrieved corpus context and always yields usable text:
// generation failures fall back to fixed content.
package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/anees/internal/llm"
	"github.com/ent0n29/anees/internal/observability"
	"github.com/ent0n29/anees/internal/retrieval"
	"github.com/ent0n29/anees/internal/session"
)

const (
	FlowPersonality = "personality_question"
	FlowMental      = "mental_question"
	FlowEmpathy     = "empathy"
)

const (
	personalityQuery = "Myers-Briggs personality types preferences extraversion introversion " +
		"sensing intuition thinking feeling judging perceiving"
	mentalQuery = "DSM-5 mood anxiety stress sleep concentration personality functioning " +
		"coping social relationships university functioning"
)

const (
	FallbackOpenQuestion = "How have you been feeling emotionally most days recently?"
	FallbackEmpathy      = "I'm really glad you shared that with me. Thank you for being open."
)

// FallbackChoice is the fixed question used whenever a fixed-choice question cannot
// be generated.
func FallbackChoice() session.Question {
	return session.Question{
		Text: "When you have free time, what sounds more fun?",
		Options: []string{
			"A) Hanging out with a group of friends or going to a busy place",
			"B) Doing something calm alone, like reading, gaming, or drawing",
			"C) Spending time with one or two close friends",
			"D) Trying something new or spontaneous",
		},
	}
}

type Generator struct {
	retriever retrieval.Retriever
	completer llm.Completer
	logger    *zap.Logger
	metrics   *observability.Metrics
}

func New(r retrieval.Retriever, c llm.Completer, logger *zap.Logger, metrics *observability.Metrics) *Generator {
	if r == nil {
		r = retrieval.NoneRetriever{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{retriever: r, completer: c, logger: logger, metrics: metrics}
}

// Input carries what a question generator may use. SkipHistory lists questions the
// user passed on; Decline asks for a different category than before.
type Input struct {
	History     []session.Utterance
	Answers     []session.Answer
	Index       int
	SkipHistory []string
	Decline     bool
}

type choicePrompt struct {
	Context                string `json:"context"`
	Instructions           string `json:"instructions"`
	Index                  int    `json:"index"`
	PreviousAnswersSummary string `json:"previous_answers_summary"`
}

type choiceReply struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// Choice generates one fixed-choice personality question.
func (g *Generator) Choice(ctx context.Context, in Input) session.Question {
	start := time.Now()
	defer func() { g.metrics.ObserveGeneration(FlowPersonality, time.Since(start)) }()

	corpus := g.corpusContext(ctx, FlowPersonality, personalityQuery, 12, 0.02, 5)

	var sys strings.Builder
	sys.WriteString("You are creating a multiple-choice question to explore a teen's MBTI-style " +
		"personality preferences. You MUST:\n" +
		"- Use ONLY information consistent with MBTI theory.\n" +
		"- Ask on everyday situations (university, friends, hobbies, energy, decisions).\n" +
		"- Avoid clinical or mental health language in this part.\n" +
		"- USE VARIETY OF QUESTION STYLES. \n" +
		"- Make the question simple and culture-appropriate.\n" +
		"- Ensure the questions categories are diverse. \n" +
		"- Provide exactly 3-4 options.\n" +
		"- IMPORTANT: The 'options' list MUST include the letter AND the text description.\n" +
		"  CORRECT JSON Example: { \"question\": \"...\", \"options\": [\"A) I like to plan ahead\", \"B) I go with the flow\"] }\n" +
		"  INCORRECT JSON Example: { \"options\": [\"A\", \"B\"] }\n" +
		"- Each question explores at least one MBTI dimension.\n")
	if len(in.SkipHistory) > 0 {
		sys.WriteString("\n- Do NOT repeat or create similar questions to these:\n")
		for _, q := range in.SkipHistory {
			fmt.Fprintf(&sys, "  - '%s'\n", q)
		}
	}
	if in.Decline {
		sys.WriteString("\n- Generate a question from a DIFFERENT CATEGORY than previously asked questions.\n")
		sys.WriteString("- Focus on a NEW MBTI dimension or situation type.\n")
	}

	var summary strings.Builder
	if len(in.Answers) > 0 {
		summary.WriteString("Previous personality answers:\n")
		for i, a := range in.Answers {
			fmt.Fprintf(&summary, "%d. Q: %s | A: %s\n", i+1, a.Question, a.Answer)
		}
	}

	user, err := json.Marshal(choicePrompt{
		Context: corpus,
		Instructions: "Generate ONE new MBTI-style multiple-choice question in JSON form. " +
			"Ensure options contain full text descriptions. " +
			"Return ONLY valid JSON.",
		Index:                  in.Index,
		PreviousAnswersSummary: summary.String(),
	})
	if err != nil {
		return g.choiceFallback(fmt.Errorf("marshal prompt: %w", err))
	}

	raw, err := g.completer.Complete(ctx, llm.Request{
		System:      sys.String(),
		User:        string(user),
		Temperature: 0.4,
		MaxTokens:   400,
		JSON:        true,
	})
	if err != nil {
		return g.choiceFallback(err)
	}

	q, err := parseChoice(raw)
	if err != nil {
		return g.choiceFallback(err)
	}
	return q
}

func (g *Generator) choiceFallback(err error) session.Question {
	g.logger.Warn("personality question generation failed, using fallback", zap.Error(err))
	g.metrics.Fallback(FlowPersonality)
	return FallbackChoice()
}

func parseChoice(raw string) (session.Question, error) {
	var reply choiceReply
	if err := json.Unmarshal([]byte(stripFences(raw)), &reply); err != nil {
		return session.Question{}, fmt.Errorf("parse question json: %w", err)
	}
	text := strings.TrimSpace(reply.Question)
	if text == "" || len(reply.Options) == 0 {
		return session.Question{}, fmt.Errorf("missing question or options")
	}
	return session.Question{Text: text, Options: reply.Options}, nil
}

// stripFences removes a surrounding ``` or ```json markdown fence.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// Open generates one open-ended mental-health check-in question.
func (g *Generator) Open(ctx context.Context, in Input) string {
	start := time.Now()
	defer func() { g.metrics.ObserveGeneration(FlowMental, time.Since(start)) }()

	corpus := g.corpusContext(ctx, FlowMental, mentalQuery, 15, 0.02, 6)

	var sys strings.Builder
	sys.WriteString("You are creating an open-ended mental health check-in question for a university student.\n" +
		"Use DSM-5 concepts to inspire the topic (mood, anxiety, sleep, energy, " +
		"concentration, relationships, stress, coping) BUT:\n" +
		"- Do NOT diagnose.\n" +
		"- Do NOT use clinical labels like 'major depressive disorder' or 'generalized anxiety disorder'.\n" +
		"- Do NOT ask about self-harm methods, suicide plans, or anything graphic.\n" +
		"- You MAY gently ask about safety, like 'Do you feel safe right now?', but keep it simple.\n" +
		"- Ask in a kind, non-judgmental, conversational way.\n" +
		"- Make the next question adaptive: use what the user has already shared.\n" +
		"- Return ONLY the question text, no JSON, no explanations.")
	if len(in.SkipHistory) > 0 {
		sys.WriteString("\nCRITICAL: Do not repeat or ask something similar to these questions:\n")
		for _, q := range in.SkipHistory {
			fmt.Fprintf(&sys, "- '%s'\n", q)
		}
	}
	if in.Decline {
		sys.WriteString("\n- Generate a question from a DIFFERENT CATEGORY than previously asked questions.\n")
		sys.WriteString("- Focus on a NEW mental health theme (e.g., if previous was about mood, now ask about sleep or relationships).\n")
	}

	var summary strings.Builder
	if len(in.Answers) > 0 {
		summary.WriteString("Previous mental health answers (short summary):\n")
		recent := in.Answers
		if len(recent) > 5 {
			recent = recent[len(recent)-5:]
		}
		for i, a := range recent {
			fmt.Fprintf(&summary, "%d. Q: %s | A: %s...\n", i+1, a.Question, truncate(a.Answer, 80))
		}
	}

	user := fmt.Sprintf("DOCUMENT CONTEXT (DSM-5 themes):\n%s\n\n"+
		"CONVERSATION SUMMARY:\n%s\n\n"+
		"Now generate a single open-ended question number %d that helps understand "+
		"how this student is feeling, coping, or functioning day-to-day.", corpus, summary.String(), in.Index)

	text, err := g.completer.Complete(ctx, llm.Request{
		System:      sys.String(),
		User:        user,
		Temperature: 0.8,
		MaxTokens:   200,
	})
	text = strings.TrimSpace(text)
	if err == nil && text == "" {
		err = llm.ErrEmptyCompletion
	}
	if err != nil {
		g.logger.Warn("mental health question generation failed, using fallback", zap.Error(err))
		g.metrics.Fallback(FlowMental)
		return FallbackOpenQuestion
	}
	return text
}

// Empathize returns a short validating reply to the user's stated feeling.
func (g *Generator) Empathize(ctx context.Context, feeling string) string {
	start := time.Now()
	defer func() { g.metrics.ObserveGeneration(FlowEmpathy, time.Since(start)) }()

	text, err := g.completer.Complete(ctx, llm.Request{
		System: "You are Anees, a gentle, supportive assistant. " +
			"Your job is to respond empathetically to how the user feels. " +
			"Do NOT give diagnoses, medical instructions, or self-harm guidance. " +
			"Just validate, reassure, and be warm." +
			"You are mental health professional assistant." +
			"Your answers should not include any questions." +
			"Your answers should be in simple English.",
		User:        "The user says they feel: " + feeling,
		Temperature: 0.6,
		MaxTokens:   150,
	})
	text = strings.TrimSpace(text)
	if err == nil && text == "" {
		err = llm.ErrEmptyCompletion
	}
	if err != nil {
		g.logger.Warn("empathy reply failed, using fallback", zap.Error(err))
		g.metrics.Fallback(FlowEmpathy)
		return FallbackEmpathy
	}
	return text
}

// corpusContext retrieves and renders corpus context. A retrieval failure degrades to the
// empty-result sentinel.
func (g *Generator) corpusContext(ctx context.Context, flow, query string, n int, floor float64, maxChunks int) string {
	res, err := g.retriever.Retrieve(ctx, query, n)
	if err != nil {
		g.logger.Warn("retrieval failed, continuing without context", zap.String("flow", flow), zap.Error(err))
		res = retrieval.Result{}
	}
	return retrieval.BuildContext(res, floor, maxChunks)
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
