// Package classifier scores a message list into a complexity bucket and
// required-capability set. It is a pure function: no shared state, so
// repeated calls on identical input always yield identical output
// (spec.md §8 "classifier stability" law).
package classifier

import (
	"regexp"
	"strings"
)

// Complexity is the classifier's bucketed output.
type Complexity string

const (
	Simple   Complexity = "simple"
	Moderate Complexity = "moderate"
	Complex  Complexity = "complex"
)

// Message is the minimal shape the classifier needs from a chat message.
type Message struct {
	Role    string
	Content string
}

// Result is the classifier's output for one request.
type Result struct {
	Complexity           Complexity
	RequiredCapabilities map[string]bool
	EstimatedTokens      int
	Reasoning            string
}

var (
	codePatterns = []*regexp.Regexp{
		regexp.MustCompile("(?i)```"),
		regexp.MustCompile("(?i)\\bfunction\\b|\\bdef \\b|\\bclass \\b|\\bconst \\b|\\bimport \\b"),
		regexp.MustCompile("(?i)\\b(algorithm|refactor|compile|stack trace|traceback|exception|debug)\\b"),
	}
	mathPatterns = []*regexp.Regexp{
		regexp.MustCompile("(?i)\\b(integral|derivative|equation|theorem|probability|matrix|eigenvalue)\\b"),
		regexp.MustCompile(`[=+\-*/^]{1}\s*\d`),
	}
	creativePatterns = []*regexp.Regexp{
		regexp.MustCompile("(?i)\\b(write a (poem|story|song|haiku)|once upon a time|compose a)\\b"),
	}
	simpleQueryPattern = regexp.MustCompile("(?i)^(what is|who is|when is|where is|how many|define)\\b")
)

func countMatches(patterns []*regexp.Regexp, text string) int {
	n := 0
	for _, p := range patterns {
		if p.MatchString(text) {
			n++
		}
	}
	return n
}

// Classify applies the scored-rule algorithm from spec.md §4.4.
func Classify(messages []Message) Result {
	var all strings.Builder
	totalChars := 0
	for _, m := range messages {
		all.WriteString(m.Content)
		all.WriteString("\n")
		totalChars += len(m.Content)
	}
	text := all.String()

	lastUser := ""
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			lastUser = messages[i].Content
			break
		}
	}

	score := 0
	caps := map[string]bool{"general": true, "instruction-following": true}
	var reasons []string

	codeHits := countMatches(codePatterns, text)
	switch {
	case codeHits >= 2:
		score += 3
		caps["code"] = true
		reasons = append(reasons, "multiple code patterns")
	case codeHits == 1:
		score += 1
		caps["code"] = true
		reasons = append(reasons, "one code pattern")
	}

	if countMatches(mathPatterns, text) >= 1 {
		score += 2
		caps["math"] = true
		reasons = append(reasons, "math pattern present")
	}

	if countMatches(creativePatterns, lastUser) >= 1 {
		score += 1
		caps["creative"] = true
		reasons = append(reasons, "creative-writing request")
	}

	messageCount := len(messages)
	switch {
	case messageCount > 6:
		score += 2
		reasons = append(reasons, "long conversation (>6 messages)")
	case messageCount > 3:
		score += 1
		reasons = append(reasons, "multi-turn conversation (>3 messages)")
	}

	estimatedTokens := (totalChars + 3) / 4
	switch {
	case estimatedTokens > 2000:
		score += 2
		reasons = append(reasons, "large estimated token count (>2000)")
	case estimatedTokens > 500:
		score += 1
		reasons = append(reasons, "moderate estimated token count (>500)")
	}

	if simpleQueryPattern.MatchString(strings.TrimSpace(lastUser)) && messageCount <= 2 && estimatedTokens < 100 {
		score -= 2
		reasons = append(reasons, "simple factual question")
	}
	if score < 0 {
		score = 0
	}

	var complexity Complexity
	switch {
	case score <= 1:
		complexity = Simple
	case score <= 4:
		complexity = Moderate
	default:
		complexity = Complex
	}

	reasoning := "no distinguishing patterns detected"
	if len(reasons) > 0 {
		reasoning = strings.Join(reasons, "; ")
	}

	return Result{
		Complexity:           complexity,
		RequiredCapabilities: caps,
		EstimatedTokens:      estimatedTokens,
		Reasoning:            reasoning,
	}
}
