// Package match implements the keyword decision procedure.
package match

import "strings"

// Decision is the outcome of matching one message against the watch list.
type Decision struct {
	// Matched holds the keywords found in the text, in list order.
	Matched []string
	// Suppressed is set when an excluded keyword also occurred.
	Suppressed bool
}

// Alert reports whether the message should be forwarded.
func (d Decision) Alert() bool { return len(d.Matched) > 0 && !d.Suppressed }

// Decide matches text against keywords and exclusions.
//
// Matching is plain case-insensitive substring containment, not word-boundary
// matching: a keyword inside a longer word still matches. That quirk is load
// bearing for existing watch lists, keep it.
func Decide(text string, keywords, excluded []string) Decision {
	lower := strings.ToLower(text)

	var d Decision
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			d.Matched = append(d.Matched, kw)
		}
	}
	if len(d.Matched) == 0 {
		return d
	}

	// Exclusions apply to the whole text, independent of which keyword hit.
	for _, ex := range excluded {
		if ex == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(ex)) {
			d.Suppressed = true
			break
		}
	}
	return d
}
