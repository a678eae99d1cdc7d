package normalize

import (
	"slices"
	"strings"
	"unicode"
)

const (
	minCandidateLen    = 4
	minAlphaRatio      = 0.55
	maxCandidateWords  = 12
	maxCandidateLength = 160
)

// authorSeparators split "Title - Author" style lines emitted by vision models.
var authorSeparators = []string{" - ", " – ", " — ", " by ", " | "}

// Candidates extracts plausible title lines from OCR or vision model output.
// Lines are cleaned to letters, digits and spaces, filtered for noise and
// returned longest first. When a line looks like "Title - Author" its title
// part is offered as an additional candidate.
func Candidates(text string) []string {
	lines := strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == '\r' })

	seen := make(map[string]struct{})
	var out []string
	add := func(raw string) {
		c := cleanCandidate(raw)
		if c == "" {
			return
		}
		key := strings.ToLower(c)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}

	for _, line := range lines {
		line = stripListMarker(strings.TrimSpace(line))
		if line == "" {
			continue
		}

		add(line)

		lower := strings.ToLower(line)
		for _, sep := range authorSeparators {
			if i := strings.Index(lower, sep); i > 0 {
				add(line[:i])
				break
			}
		}
	}

	slices.SortStableFunc(out, func(a, b string) int {
		return len(b) - len(a)
	})

	return out
}

func cleanCandidate(raw string) string {
	if len(strings.TrimSpace(raw)) < minCandidateLen {
		return ""
	}

	var b strings.Builder
	for _, r := range raw {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}

	words := strings.Fields(b.String())
	if len(words) == 0 || len(words) > maxCandidateWords {
		return ""
	}

	line := strings.Join(words, " ")
	if len(line) < minCandidateLen || len(line) > maxCandidateLength {
		return ""
	}

	alpha := 0
	for _, r := range line {
		if unicode.IsLetter(r) {
			alpha++
		}
	}
	if float64(alpha)/float64(len(line)) < minAlphaRatio {
		return ""
	}

	return line
}

// stripListMarker drops leading bullets ("-", "*", "•") and enumerations
// ("1.", "2)") that models put in front of each line.
func stripListMarker(line string) string {
	line = strings.TrimLeft(line, "-*•> \t")

	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i > 0 && i < len(line) && (line[i] == '.' || line[i] == ')') {
		line = strings.TrimSpace(line[i+1:])
	}

	return strings.Trim(line, "\"'`*_ ")
}
