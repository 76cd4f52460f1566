// Package wire parses the Wavefront line protocol into typed records.
//
// Parsing is total: every input string maps to exactly one of Metric,
// Histogram, Span or ParseError, or to no record at all for blank lines,
// comment lines and metric lines missing their mandatory source tag.
// Histogram directive lines whose metric name arrives on a following
// physical line are not reassembled; only the directive line is parsed.
package wire

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/loadgen/profiler/pkg/models"
)

var (
	// !M/!H/!D [timestamp] #count centroid pairs
	histogramRe = regexp.MustCompile(`^(!M|!H|!D)\s+(?:(\d+)\s+)?#(\d+)\s+(.*)$`)

	// <operation> source=<source> <middle> <start_ms> <duration_ms>
	spanRe = regexp.MustCompile(`^(\S+)\s+source=(\S+)\s+(.*?)\s+(\d+)\s+(\d+)$`)

	bareNameRe    = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)
	quotedRe      = regexp.MustCompile(`^"((?:[^"\\]|\\.)*)"$`)
	sourceRe      = regexp.MustCompile(`source=(?:"((?:[^"\\]|\\.)*)"|(\S+))`)
	timestampRe   = regexp.MustCompile(`\b(\d{10})\b`)
	tagRe         = regexp.MustCompile(`(\w+)=(?:"((?:[^"\\]|\\.)*)"|(\S+))`)
	deltaPrefixes = []string{"∆", "Δ"} // U+2206 increment, U+0394 capital delta
)

// Parse converts one raw protocol line into a typed record. It returns nil
// for blank lines, comment lines, and metric-shaped lines without a
// source= tag (a deliberately permissive drop preserved from the capture
// pipeline). It never panics: internal failures surface as *ParseError.
func Parse(line string) (rec models.Record) {
	defer func() {
		if r := recover(); r != nil {
			rec = parseError(line, fmt.Sprintf("internal parser failure: %v", r))
		}
	}()

	line = strings.TrimSpace(line)
	if Skippable(line) {
		return nil
	}

	if m := histogramRe.FindStringSubmatch(line); m != nil {
		return parseHistogram(line, m)
	}
	if m := spanRe.FindStringSubmatch(line); m != nil {
		return parseSpan(line, m)
	}
	return parseMetric(line)
}

// Skippable reports whether a trimmed line produces no record by design:
// blank lines and comments.
func Skippable(line string) bool {
	line = strings.TrimSpace(line)
	return line == "" || strings.HasPrefix(line, "#")
}

func parseError(line, message string) *models.ParseError {
	prefix := line
	if len(prefix) > 100 {
		prefix = prefix[:100]
	}
	return &models.ParseError{RawPrefix: prefix, Message: message}
}

var granularities = map[string]models.Granularity{
	"!M": models.GranularityMinute,
	"!H": models.GranularityHour,
	"!D": models.GranularityDay,
}

func parseHistogram(line string, m []string) models.Record {
	var timestamp int64
	if m[2] != "" {
		ts, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			return parseError(line, fmt.Sprintf("invalid histogram timestamp %q", m[2]))
		}
		timestamp = ts
	}

	count, err := strconv.ParseUint(m[3], 10, 32)
	if err != nil {
		return parseError(line, fmt.Sprintf("invalid histogram count %q", m[3]))
	}

	// Centroids are consumed greedily as (count, value) pairs; the first
	// token that breaks a pair ends the list without error.
	tokens := strings.Fields(m[4])
	centroids := make([]models.Centroid, 0, len(tokens)/2)
	for i := 0; i+1 < len(tokens); i += 2 {
		cCount, err := strconv.ParseUint(tokens[i], 10, 32)
		if err != nil {
			break
		}
		cValue, err := strconv.ParseFloat(tokens[i+1], 64)
		if err != nil {
			break
		}
		centroids = append(centroids, models.Centroid{Count: uint32(cCount), Value: cValue})
	}

	return &models.Histogram{
		Granularity: granularities[m[1]],
		Timestamp:   timestamp,
		Count:       uint32(count),
		Centroids:   centroids,
		RawLength:   len(line),
	}
}

func parseSpan(line string, m []string) models.Record {
	startMillis, err := strconv.ParseUint(m[4], 10, 64)
	if err != nil {
		return parseError(line, fmt.Sprintf("invalid span start %q", m[4]))
	}
	durationMillis, err := strconv.ParseUint(m[5], 10, 64)
	if err != nil {
		return parseError(line, fmt.Sprintf("invalid span duration %q", m[5]))
	}

	return &models.Span{
		Operation:      m[1],
		Source:         m[2],
		Tags:           parseTags(m[3]),
		StartMillis:    startMillis,
		DurationMillis: durationMillis,
		RawLength:      len(line),
	}
}

func parseMetric(line string) models.Record {
	parts := strings.Fields(line)
	if len(parts) < 2 {
		return parseError(line, "metric line has no value")
	}

	name, isDelta, ok := parseMetricName(parts[0])
	if !ok {
		return parseError(line, fmt.Sprintf("invalid metric name %q", parts[0]))
	}

	value, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return parseError(line, fmt.Sprintf("invalid metric value %q", parts[1]))
	}

	remaining := strings.Join(parts[2:], " ")

	// source= is mandatory. A metric line without it produces no record at
	// all rather than a ParseError; the pipeline counts these drops.
	loc := sourceRe.FindStringSubmatchIndex(remaining)
	if loc == nil {
		return nil
	}
	var source string
	if loc[2] >= 0 {
		source = unescape(remaining[loc[2]:loc[3]])
	} else {
		source = submatch(remaining, loc, 2)
	}
	remaining = remaining[:loc[0]] + remaining[loc[1]:]

	// Optional timestamp: the first standalone 10-digit integer, removed
	// before tag scanning so it cannot be mistaken for a tag value.
	var timestamp int64
	if tsLoc := timestampRe.FindStringSubmatchIndex(remaining); tsLoc != nil {
		ts, err := strconv.ParseInt(remaining[tsLoc[2]:tsLoc[3]], 10, 64)
		if err == nil {
			timestamp = ts
			remaining = remaining[:tsLoc[0]] + remaining[tsLoc[1]:]
		}
	}

	return &models.Metric{
		Name:      name,
		Value:     value,
		Timestamp: timestamp,
		Source:    source,
		Tags:      parseTags(remaining),
		IsDelta:   isDelta,
		RawLength: len(line),
	}
}

// parseMetricName validates and unwraps the first token of a metric line:
// either a double-quoted string (with \" and \\ escapes) or a bare token of
// alphanumerics, dots, hyphens and underscores. A leading delta symbol marks
// a delta counter and is stripped from the name.
func parseMetricName(token string) (name string, isDelta bool, ok bool) {
	for _, p := range deltaPrefixes {
		if strings.HasPrefix(token, p) {
			isDelta = true
			token = strings.TrimPrefix(token, p)
			break
		}
	}

	if m := quotedRe.FindStringSubmatch(token); m != nil {
		return unescape(m[1]), isDelta, true
	}
	if bareNameRe.MatchString(token) {
		return token, isDelta, true
	}
	return "", false, false
}

// parseTags scans text for key=value pairs. Quoted values are unescaped;
// pairs with empty values are skipped. Duplicate keys keep the last value.
func parseTags(text string) map[string]string {
	matches := tagRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	tags := make(map[string]string, len(matches))
	for _, m := range matches {
		value := m[3]
		if m[2] != "" {
			value = unescape(m[2])
		}
		if value == "" {
			continue
		}
		tags[m[1]] = value
	}
	if len(tags) == 0 {
		return nil
	}
	return tags
}

func unescape(s string) string {
	s = strings.ReplaceAll(s, `\"`, `"`)
	return strings.ReplaceAll(s, `\\`, `\`)
}

func submatch(s string, loc []int, group int) string {
	if loc[2*group] < 0 {
		return ""
	}
	return s[loc[2*group]:loc[2*group+1]]
}
