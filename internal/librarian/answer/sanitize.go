package answer

import (
	"regexp"
	"strings"
)

// summaryLabels are boilerplate the final round sometimes duplicates even
// though the prompt forbids it.
var summaryLabels = []string{
	"Extended summary:",
	"extended summary:",
	"Summary:",
	"summary:",
}

var blankRuns = regexp.MustCompile(`\n{3,}`)

// Sanitize strips leftover summary labels, collapses runs of blank lines and
// trims the reply.
func Sanitize(text string) string {
	for _, label := range summaryLabels {
		text = strings.ReplaceAll(text, label, "")
	}
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
