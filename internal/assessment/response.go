package assessment

import (
	"time"

	"github.com/ent0n29/anees/internal/session"
)

// ErrorSafetyConcern is the Error value of a response that ended on a safety trip.
const ErrorSafetyConcern = "safety_concern"

// Response is the outcome of one turn.
type Response struct {
	UserID         string        `json:"user_id"`
	Response       string        `json:"response"`
	Options        []string      `json:"options"`
	QuestionNumber int           `json:"question_number"`
	Phase          session.Phase `json:"phase"`
	IsFinished     bool          `json:"is_finished"`
	FinalReport    *string       `json:"final_report"`
	Error          *string       `json:"error"`
	Timestamp      time.Time     `json:"timestamp"`
}

func strPtr(s string) *string { return &s }
