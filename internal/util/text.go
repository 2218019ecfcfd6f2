package util

import "strings"

// MeaningfulLength measures the substantive length of a reply: @-mentions
// and URLs are stripped before counting, so a reply that is only a link and
// a mention does not pass a minimum-length filter.
func MeaningfulLength(text string) int {
	fields := strings.Fields(text)
	kept := make([]string, 0, len(fields))
	for _, f := range fields {
		if strings.HasPrefix(f, "@") && len(f) > 1 {
			continue
		}
		if strings.HasPrefix(f, "http://") || strings.HasPrefix(f, "https://") {
			continue
		}
		kept = append(kept, f)
	}
	return len(strings.Join(kept, " "))
}
