package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/hyperjump/fsmcheck/internal/models"
)

// RecordSeparator precedes every entry of the bulletin-text list.
const RecordSeparator = "Экстремистский материал №"

var (
	entryPattern = regexp.MustCompile(`(?s)^\s*(\d+):\s*(.+)`)
	datePattern  = regexp.MustCompile(`\(решение .+? от ([0-9.]+)\)?`)
)

// ParseBulletin splits text on RecordSeparator and parses each chunk as
// "<id>: <text>". The segment before the first separator is a preamble and is
// discarded. Chunks that do not match become warnings.
func ParseBulletin(text string) *Result {
	chunks := strings.Split(text, RecordSeparator)
	res := &Result{Records: make([]models.Record, 0, len(chunks)-1)}
	for i, chunk := range chunks[1:] {
		m := entryPattern.FindStringSubmatch(chunk)
		if m == nil {
			res.Warnings = append(res.Warnings, Warning{Position: i + 1, Reason: "no \"<id>:\" prefix", Excerpt: excerpt(chunk)})
			continue
		}
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			res.Warnings = append(res.Warnings, Warning{Position: i + 1, Reason: "id out of range", Excerpt: excerpt(chunk)})
			continue
		}
		body := strings.TrimSpace(m[2])
		if body == "" {
			res.Warnings = append(res.Warnings, Warning{Position: i + 1, Reason: "empty text", Excerpt: excerpt(chunk)})
			continue
		}
		res.Records = append(res.Records, models.Record{
			ID:   id,
			Date: extractDate(body),
			Text: body,
		})
	}
	return res
}

// extractDate returns the decision date or models.DateUnknown. A trailing sentence
// dot captured by the digit class is dropped.
func extractDate(body string) string {
	m := datePattern.FindStringSubmatch(body)
	if m == nil {
		return models.DateUnknown
	}
	date := strings.TrimRight(m[1], ".")
	if date == "" {
		return models.DateUnknown
	}
	return date
}
