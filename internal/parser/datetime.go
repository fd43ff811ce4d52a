package parser

import (
	"regexp"
	"strings"
	"time"

	"github.com/jpvargas/gastotrack/internal/model"
)

// dateLayouts are tried in order against the normalized date string.
var dateLayouts = []string{
	"02/01/2006 15:04",
	"02-01-2006 15:04",
	"Jan 2, 2006, 15:04",
	"Jan 2, 2006 15:04",
}

var dateFieldRegex = regexp.MustCompile(`(?i)fecha:?\s*(.+)`)

// monthToken matches Spanish and English month abbreviations; longer tokens
// come first so "sept" is not consumed as "sep".
var monthToken = regexp.MustCompile(`(?i)\b(sept|ene|feb|mar|abr|may|jun|jul|ago|set|sep|oct|nov|dic|jan|apr|aug|dec)\b`)

var monthNames = map[string]string{
	"ene": "Jan", "feb": "Feb", "mar": "Mar", "abr": "Apr", "may": "May",
	"jun": "Jun", "jul": "Jul", "ago": "Aug", "sept": "Sep", "set": "Sep",
	"sep": "Sep", "oct": "Oct", "nov": "Nov", "dic": "Dec",
	"jan": "Jan", "apr": "Apr", "aug": "Aug", "dec": "Dec",
}

// extractDate resolves the transaction date from a label field or a
// "Fecha: ..." phrase, falling back to the email's own received timestamp and
// finally the current time. The second return reports whether a date-bearing
// field actually parsed.
func extractDate(labels map[string]string, body string, email *model.RawEmail) (time.Time, bool) {
	candidates := []string{firstLabel(labels, "fecha")}
	if m := dateFieldRegex.FindStringSubmatch(body); m != nil {
		candidates = append(candidates, m[1])
	}

	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		if parsed, ok := parseDateString(candidate); ok {
			return parsed, true
		}
	}

	if !email.InternalDate.IsZero() {
		return email.InternalDate, false
	}
	return time.Now(), false
}

// parseDateString translates abbreviated Spanish month names to their English
// equivalents and tries the known layouts.
func parseDateString(value string) (time.Time, bool) {
	normalized := monthToken.ReplaceAllStringFunc(strings.TrimSpace(value), func(m string) string {
		if en, ok := monthNames[strings.ToLower(m)]; ok {
			return en
		}
		return m
	})

	for _, layout := range dateLayouts {
		if parsed, err := time.ParseInLocation(layout, normalized, time.Local); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}
