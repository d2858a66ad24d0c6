package report

import (
	"context"
	"regexp"

	"github.com/ent0n29/anees/internal/session"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
)

// RedactPII masks email addresses, card numbers and phone numbers in input.
func RedactPII(input string) (redacted string, changed bool) {
	out := emailPattern.ReplaceAllString(input, "[REDACTED_EMAIL]")
	// Cards before phones so long digit runs are not labeled as phone numbers.
	out = cardPattern.ReplaceAllString(out, "[REDACTED_CARD]")
	out = phonePattern.ReplaceAllString(out, "[REDACTED_PHONE]")
	return out, out != input
}

// redactingArchive masks PII in user answers before handing records to next.
type redactingArchive struct {
	next Archive
}

func (a redactingArchive) Save(ctx context.Context, rec Record) error {
	rec.PersonalityAnswers = redactAnswers(rec.PersonalityAnswers)
	rec.MentalAnswers = redactAnswers(rec.MentalAnswers)
	rec.FinalReport, _ = RedactPII(rec.FinalReport)
	return a.next.Save(ctx, rec)
}

func (a redactingArchive) Close() error { return a.next.Close() }

func redactAnswers(in []session.Answer) []session.Answer {
	out := session.CloneAnswers(in)
	for i := range out {
		out[i].Answer, _ = RedactPII(out[i].Answer)
	}
	return out
}
