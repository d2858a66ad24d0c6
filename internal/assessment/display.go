package assessment

import (
	"fmt"
	"strings"
)

const (
	msgGreeting = "\n Hello, I'm Anees. Think of me as your supportive guide and companion " +
		"on the journey to understanding yourself better and finding inner balance.\n\n" +
		"To help us get settled, how are you feeling right now?"
	msgNumericFeeling = "I'd like to hear about your feelings in words, rather than numbers. How are you doing?"
	msgShortFeeling   = "Feel free to share a bit more with me."
	msgReadyPrompt    = "\n\nI'd like to guide you through a gentle discovery session. " +
		"This will help us understand exactly where you are emotionally and how I can best support you.\n\n" +
		"Are you ready to begin? (yes/no)"
	msgNotReady        = "That's completely okay. Whenever you're ready, you can come back and we'll begin. 💛"
	msgBegin           = "Great. We'll begin gently, starting with some personality reflections.\n"
	msgSkipLeadIn      = "Okay, let's try another question on a similar topic.\n"
	msgDeclineLeadIn   = "I understand. Let's move to a different type of question.\n"
	msgPersonalityExit = "\nNo worries. We can pause here. Take care 💛"
	msgTransition      = "\n Thank you. Now we'll shift gently into understanding your emotional world a bit better.\n"
	msgMentalExit      = "\nThank you for sharing what you could. Take care of yourself 💛"
	msgAllAnswered     = "\nThank you for completing all 10 questions. " +
		"Let me take a moment to reflect on everything you shared.\n"
	msgSummaryHeader = "Anees – Your Integrated Summary :\n\n"
	msgDisclaimer    = "\n\n Remember, this is not a diagnosis. If you're having a tough time, " +
		"speaking with a trusted mental health professional can be incredibly helpful. 💛"
)

func choicePrompt(options []string) string {
	return fmt.Sprintf("\nYour choice (%s), 'skip', 'decline', or 'exit': ", strings.Join(validLetters(len(options)), "/"))
}

func writeOptions(b *strings.Builder, options []string) {
	for _, opt := range options {
		fmt.Fprintf(b, "  %s\n", opt)
	}
	b.WriteString(choicePrompt(options))
}

// firstChoiceText renders personality question 1.
func firstChoiceText(question string, options []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[Personality Question 1/5]\n %s\n", question)
	writeOptions(&b, options)
	return b.String()
}

// nextChoiceText renders personality questions 2 to 5.
func nextChoiceText(n int, question string, options []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, " [Personality Question %d/5]\n%s\n", n, question)
	writeOptions(&b, options)
	return b.String()
}

// regeneratedChoiceText renders a replacement question after skip or decline.
func regeneratedChoiceText(leadIn, question string, options []string) string {
	var b strings.Builder
	b.WriteString(leadIn)
	b.WriteString(question + "\n")
	writeOptions(&b, options)
	return b.String()
}

func invalidChoiceText(n int, question string, options []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Please choose one of: %s, or type 'skip' or 'decline'\n\n", strings.Join(validLetters(len(options)), ", "))
	fmt.Fprintf(&b, "[Personality Question %d/5]\n%s\n", n, question)
	writeOptions(&b, options)
	return b.String()
}

func mentalSkipText(n int, question string) string {
	return msgSkipLeadIn +
		fmt.Sprintf("[Mental Health Question %d/5]\n %s\n", n, question) +
		"(or type 'skip', 'decline', 'exit'): "
}

func mentalDeclineText(n int, question string) string {
	return " " + msgDeclineLeadIn +
		fmt.Sprintf("[Mental Health Question %d/5]\n%s\n", n, question) +
		"\n(or type 'skip', 'decline', 'exit'): "
}

// nextMentalText renders mental questions 2 to 5. The question after mental_1 has
// no space before its text.
func nextMentalText(from, n int, question string) string {
	sep := " "
	if from == 1 {
		sep = ""
	}
	return fmt.Sprintf("\nAnees [Mental Health Question %d/5]\n%s%s\n", n, sep, question) +
		"\nYou (or type 'skip', 'decline', 'exit'): "
}

// emptyMentalText is shown when a mental step receives no text.
func emptyMentalText(n int, question string) string {
	if question == "" {
		return msgShortFeeling
	}
	return msgShortFeeling + "\n\n" +
		fmt.Sprintf("[Mental Health Question %d/5]\n %s\n", n, question) +
		"(or type 'skip', 'decline', 'exit'): "
}

func finalText(report string) string {
	return msgSummaryHeader + report + msgDisclaimer
}
