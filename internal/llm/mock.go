package llm

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
)

// MockCompleter provides deterministic local replies when no model is configured.
type MockCompleter struct {
	calls atomic.Uint64
}

func NewMockCompleter() *MockCompleter { return &MockCompleter{} }

type mockChoice struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

var mockChoices = []mockChoice{
	{"At a party, where are you usually found?", []string{"A) In the middle of the group", "B) Talking with one friend", "C) Near the snacks, watching", "D) Leaving early"}},
	{"When you plan a trip, what do you do first?", []string{"A) Make a detailed schedule", "B) Pick a place and see what happens", "C) Ask friends what they want", "D) Look for something unusual"}},
	{"How do you usually make a hard decision?", []string{"A) List the facts", "B) Go with my gut", "C) Think about how others feel", "D) Wait until I have to"}},
	{"Which school task do you enjoy most?", []string{"A) Group projects", "B) Solo research", "C) Creative assignments", "D) Hands-on experiments"}},
	{"After a long week, how do you recharge?", []string{"A) Going out with friends", "B) A quiet night alone", "C) A walk outside", "D) Trying a new hobby"}},
}

var mockOpenQuestions = []string{
	"How has your sleep been over the past couple of weeks?",
	"What has been weighing on your mind the most lately?",
	"How easy or hard has it been to focus on your studies recently?",
	"When things feel stressful, what usually helps you cope?",
	"How connected do you feel to the people around you these days?",
}

func (m *MockCompleter) Complete(ctx context.Context, req Request) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	n := m.calls.Add(1) - 1
	if req.JSON {
		raw, err := json.Marshal(mockChoices[n%uint64(len(mockChoices))])
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}

	sys := strings.ToLower(req.System)
	switch {
	case strings.Contains(sys, "empathetic"):
		return "Thank you for telling me how you're feeling. It means a lot that you shared it.", nil
	case strings.Contains(sys, "report") || strings.Contains(sys, "summary"):
		return "Personality snapshot: you shared a thoughtful mix of preferences.\n\n" +
			"Emotional overview: some stress came through, alongside real strengths.\n\n" +
			"Gentle suggestions: keep routines that help you rest and talk to people you trust.", nil
	case strings.Contains(sys, "question"):
		return mockOpenQuestions[n%uint64(len(mockOpenQuestions))], nil
	default:
		return "I hear you.", nil
	}
}
