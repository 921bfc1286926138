package marker

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var (
	numberRe         = regexp.MustCompile(`[-+]?\d+(?:\.\d+)?`)
	trailingNumberRe = regexp.MustCompile(`[-+]?\d+(?:\.\d+)?$`)
)

// hasKeyword reports whether kw appears in text, ignoring case.
func hasKeyword(text, kw string) bool {
	return strings.Contains(strings.ToLower(text), strings.ToLower(kw))
}

// coverage counts the keywords present in text and returns the missing ones
// in their original order. Empty keywords are ignored.
func coverage(text string, keywords []string) (found int, missing []string) {
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if hasKeyword(text, kw) {
			found++
		} else {
			missing = append(missing, kw)
		}
	}
	return found, missing
}

// proportional scales marks by found/total, rounding halves up.
func proportional(found, total, marks int) int {
	if total <= 0 || found <= 0 {
		return 0
	}
	return int(math.Round(float64(found) / float64(total) * float64(marks)))
}

// summarize joins up to limit items and marks the rest with an ellipsis.
func summarize(items []string, limit int) string {
	if len(items) <= limit {
		return strings.Join(items, ", ")
	}
	return strings.Join(items[:limit], ", ") + "..."
}

// squash lower-cases s and drops all whitespace.
func squash(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
}

// finalAnswerMatches compares the trailing token of the response with the
// expected answer. For a numeric answer the response must end with the same
// number, optionally followed by the expected unit. Otherwise the response
// must end with the expected text. Case and spacing are ignored.
func finalAnswerMatches(response, expected string) bool {
	if squash(expected) == "" {
		return false
	}
	body := strings.TrimRightFunc(response, isTrailingPunct)

	loc := numberRe.FindStringIndex(expected)
	if loc == nil {
		return strings.HasSuffix(squash(body), strings.TrimRight(squash(expected), "."))
	}
	want, err := strconv.ParseFloat(expected[loc[0]:loc[1]], 64)
	if err != nil {
		return false
	}

	if unit := strings.TrimRight(squash(expected[loc[1]:]), "."); unit != "" {
		if trimmed, ok := trimSuffixFold(body, unit); ok {
			body = trimmed
		}
	}
	body = strings.TrimRightFunc(body, unicode.IsSpace)
	idx := trailingNumberRe.FindStringIndex(body)
	if idx == nil || (idx[0] > 0 && body[idx[0]-1] == '.') {
		return false
	}
	got, err := strconv.ParseFloat(body[idx[0]:idx[1]], 64)
	if err != nil {
		return false
	}
	return math.Abs(got-want) <= 1e-9*math.Max(1, math.Abs(want))
}

func isTrailingPunct(r rune) bool {
	return unicode.IsSpace(r) || r == '.' || r == '!'
}

// trimSuffixFold removes suffix from the end of s, skipping whitespace in s
// and comparing case-insensitively. suffix must already be squashed.
func trimSuffixFold(s, suffix string) (string, bool) {
	rs, want := []rune(s), []rune(suffix)
	i := len(rs)
	for j := len(want); j > 0; {
		i--
		if i < 0 {
			return s, false
		}
		if unicode.IsSpace(rs[i]) {
			continue
		}
		if unicode.ToLower(rs[i]) != want[j-1] {
			return s, false
		}
		j--
	}
	return string(rs[:i]), true
}
