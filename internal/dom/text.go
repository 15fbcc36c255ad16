package dom

import (
	"regexp"
	"strings"
)

// NormalizeText collapses whitespace runs and trims.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// FirstLine returns the first non-empty line of s, trimmed.
func FirstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

// EqualFold compares normalized texts case-insensitively.
func EqualFold(a, b string) bool {
	return strings.EqualFold(NormalizeText(a), NormalizeText(b))
}

// ContainsFold reports whether text contains term, ignoring case and
// whitespace differences.
func ContainsFold(text, term string) bool {
	return strings.Contains(strings.ToLower(NormalizeText(text)), strings.ToLower(NormalizeText(term)))
}

// ContainsAnyFold reports whether text contains any of terms.
func ContainsAnyFold(text string, terms ...string) bool {
	for _, t := range terms {
		if ContainsFold(text, t) {
			return true
		}
	}
	return false
}

// LooseMatcher compiles term into a case-insensitive pattern where spaces
// match any whitespace run. Labels in the panel wrap unpredictably.
func LooseMatcher(term string) *regexp.Regexp {
	fields := strings.Fields(term)
	for i, f := range fields {
		fields[i] = regexp.QuoteMeta(f)
	}
	return regexp.MustCompile(`(?i)` + strings.Join(fields, `\s+`))
}

// IsBooleanWord reports whether v reads as a boolean toggle value.
func IsBooleanWord(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "false", "on", "off", "yes", "no", "1", "0", "enable", "disable", "enabled", "disabled":
		return true
	}
	return false
}

// Truthy reports whether v requests the on state.
func Truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "on", "yes", "1", "enable", "enabled":
		return true
	}
	return false
}

// HasClassToken reports whether class contains token as a whole word.
func HasClassToken(class, token string) bool {
	for _, c := range strings.Fields(class) {
		if c == token {
			return true
		}
	}
	return false
}
