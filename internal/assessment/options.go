package assessment

import "strings"

var letters = []string{"A", "B", "C", "D"}

// NormalizeOptions prefixes each option with its positional letter unless it already
// starts with it. At most four options are kept. Applying it twice is a no-op.
func NormalizeOptions(options []string) []string {
	if len(options) > len(letters) {
		options = options[:len(letters)]
	}
	out := make([]string, 0, len(options))
	for i, opt := range options {
		letter := letters[i]
		if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(opt)), letter) {
			opt = letter + ") " + opt
		}
		out = append(out, opt)
	}
	return out
}

// validLetters returns the choice letters for n offered options.
func validLetters(n int) []string {
	if n > len(letters) {
		n = len(letters)
	}
	return letters[:n]
}

// choiceIndex maps the first character of msg to an option index, or -1.
func choiceIndex(msg string, n int) int {
	if msg == "" {
		return -1
	}
	first := strings.ToUpper(msg[:1])
	for i, l := range validLetters(n) {
		if l == first {
			return i
		}
	}
	return -1
}
