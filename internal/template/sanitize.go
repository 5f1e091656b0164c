package template

import "regexp"

var (
	whitespaceRuns = regexp.MustCompile(`[\n\r\t]+`)
	longSpaceRuns  = regexp.MustCompile(` {4,}`)
)

// Sanitize flattens free text so the provider accepts it as a template
// parameter: newlines and tabs collapse to single spaces, and runs of
// four or more spaces shrink to three.
func Sanitize(s string) string {
	s = whitespaceRuns.ReplaceAllString(s, " ")
	s = longSpaceRuns.ReplaceAllString(s, "   ")
	return s
}
