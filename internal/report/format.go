package report

import (
	"strconv"
	"strings"
)

// FormatPlain renders a record as a plain-text document.
func FormatPlain(rec Record) string {
	lines := []string{
		"Assessment Report - " + rec.Timestamp,
		strings.Repeat("=", 50),
		"",
		"PERSONALITY ASSESSMENT (MBTI Style)",
		strings.Repeat("-", 30),
	}
	for i, a := range rec.PersonalityAnswers {
		lines = append(lines, qLabel(i)+orNA(a.Question))
		if len(a.Options) > 0 {
			lines = append(lines, "Options: "+strings.Join(a.Options, " | "))
		}
		lines = append(lines, "Answer: "+orNA(a.Answer), "")
	}

	lines = append(lines, "MENTAL HEALTH CHECK-IN", strings.Repeat("-", 30))
	for i, a := range rec.MentalAnswers {
		answer := orNA(a.Answer)
		if r := []rune(answer); len(r) > 200 {
			answer = string(r[:197]) + "..."
		}
		lines = append(lines, qLabel(i)+orNA(a.Question), "Answer: "+answer, "")
	}

	lines = append(lines, "INTEGRATED SUMMARY", strings.Repeat("-", 30), rec.FinalReport)
	return strings.Join(lines, "\n")
}

func qLabel(i int) string {
	return "Q" + strconv.Itoa(i+1) + ": "
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
