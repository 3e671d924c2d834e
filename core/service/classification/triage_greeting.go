package classification

import (
	"regexp"
	"strings"
)

// greetingPatterns are matched against lowercased, whitespace-collapsed text.
var greetingPatterns = []*regexp.Regexp{
	wordPattern(`merry\s+(christmas|xmas)`),
	wordPattern(`happy\s+new\s+year`),
	wordPattern(`happy\s+holidays`),
	wordPattern(`season'?s\s+greetings`),
	wordPattern(`feliz\s+natal`),
	wordPattern(`feliz\s+ano[\s-]*novo`),
	wordPattern(`pr(o|ó)spero\s+ano[\s-]*novo`),
	wordPattern(`boas\s+festas`),
	wordPattern(`boas\s+entradas`),
	wordPattern(`feliz\s+p(a|á)scoa`),
}

// wordPattern anchors expr on Unicode word boundaries (RE2's \b is ASCII-only).
func wordPattern(expr string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}_])` + expr + `(?:$|[^\p{L}\p{N}_])`)
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// NormalizeGreetingText lowercases text and collapses every whitespace run to one space.
func NormalizeGreetingText(text string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(strings.ToLower(text), " "))
}

// IsGreeting reports whether text contains a holiday greeting anywhere.
func IsGreeting(text string) bool {
	normalized := NormalizeGreetingText(text)
	if normalized == "" {
		return false
	}
	for _, p := range greetingPatterns {
		if p.MatchString(normalized) {
			return true
		}
	}
	return false
}
