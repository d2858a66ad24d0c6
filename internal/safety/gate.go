// Package safety screens user utterances for crisis language before any other
// processing happens.
package safety

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

type Level string

const (
	LevelNone      Level = "none"
	LevelEmergency Level = "emergency"
)

type Action string

const (
	ActionContinue     Action = "continue"
	ActionStopAndRefer Action = "stop_and_refer"
)

// Contact is one entry of the referral directory.
type Contact struct {
	Name   string `json:"name"`
	Number string `json:"number"`
}

// Directory is the emergency referral shown when the gate trips.
type Directory struct {
	Contacts []Contact `json:"contacts"`
	Guidance string    `json:"guidance"`
}

// RiskResult is the outcome of one Decide call.
type RiskResult struct {
	Level    Level     `json:"risk_level"`
	Action   Action    `json:"action"`
	Matched  []string  `json:"matched"`
	Referral Directory `json:"referral"`
}

// Tripped reports whether the conversation must stop.
func (r RiskResult) Tripped() bool {
	return r.Action == ActionStopAndRefer
}

var crisisPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bkill\s*my\s*self\b`),
	regexp.MustCompile(`(?i)\bend\s*my\s*life\b`),
	regexp.MustCompile(`(?i)\bhurt\s*my\s*self\b`),
	regexp.MustCompile(`(?i)\bself[-\s]*harm\b`),
	regexp.MustCompile(`(?i)\bsuicid(?:e|al|ality)?\b`),
	regexp.MustCompile(`(?i)\bsucide\b`),
	regexp.MustCompile(`(?i)\bsuicde\b`),
	regexp.MustCompile(`(?i)\bi\s*(want|wanna|am\s*going)\s*to\s*(?:die|suicid(?:e|al)|sucide)\b`),
}

// DefaultDirectory returns the built-in Jordan referral directory.
func DefaultDirectory() Directory {
	return Directory{
		Contacts: []Contact{
			{Name: "Emergency (Police)", Number: "911"},
			{Name: "Ambulance", Number: "193"},
			{Name: "Fire Department", Number: "199"},
			{Name: "MOH Crisis Unit (Amman)", Number: "+962 5 057 921"},
			{Name: "IMC/MoH Mental Health Hotline 24/7", Number: "+962 795 785 095"},
			{Name: "JCPA Hotline provides 24/7", Number: "+962795440416"},
			{Name: "24/7 Mental Health & Psychosocial Support Hotline", Number: "+962 79 578 5095"},
		},
		Guidance: "If you feel in immediate danger, call emergency services now. " +
			"If you can, reach out to a trusted and supportive friend nearby.",
	}
}

// Gate is a deterministic pattern matcher. It holds no per-session state.
type Gate struct {
	referral Directory
}

// NewGate builds a gate with the given directory, or the default one when the
// directory has no contacts.
func NewGate(referral Directory) *Gate {
	if len(referral.Contacts) == 0 {
		referral = DefaultDirectory()
	}
	return &Gate{referral: referral}
}

// NewSessionID returns an identifier used to correlate gate decisions for one session.
func (g *Gate) NewSessionID() string {
	return "sess_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Decide classifies text. The second argument is the caller's correlation id;
// classification does not depend on it.
func (g *Gate) Decide(text, _ string) RiskResult {
	in := strings.ToLower(strings.TrimSpace(text))

	var matched []string
	for _, re := range crisisPatterns {
		if re.MatchString(in) {
			matched = append(matched, re.String())
		}
	}

	if len(matched) > 0 {
		return RiskResult{
			Level:    LevelEmergency,
			Action:   ActionStopAndRefer,
			Matched:  matched,
			Referral: g.referral,
		}
	}
	return RiskResult{
		Level:    LevelNone,
		Action:   ActionContinue,
		Matched:  []string{},
		Referral: g.referral,
	}
}

// FormatReferral renders the fixed stop-and-refer message.
func (g *Gate) FormatReferral(result RiskResult) string {
	lines := []string{
		"I’m really sorry you’re feeling this way. I’m concerned about your safety.",
		"I can’t continue with questions right now. Please get support immediately.",
		"",
		"Jordan support:",
	}
	for _, c := range result.Referral.Contacts {
		lines = append(lines, "- "+c.Name+": "+c.Number)
	}
	lines = append(lines, "", result.Referral.Guidance)
	return strings.Join(lines, "\n")
}
