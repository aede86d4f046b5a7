package tools

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ghonijee/money-tracker-ai-agent/framework"
)

func stringArg(args map[string]interface{}, key string) (string, bool) {
	v, ok := args[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return strings.TrimSpace(s), ok
}

func requireString(tool string, args map[string]interface{}, key string) (string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return "", framework.InvalidArgs(tool, "Args should contain '%s' key", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", framework.InvalidArgs(tool, "Args '%s' should be a string", key)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", framework.InvalidArgs(tool, "Args '%s' cannot be empty", key)
	}
	return s, nil
}

// toFloat accepts JSON numbers and numeric strings ("50000", "50.000,5" is
// not accepted).
func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(n), "_", ""), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// toInt64 accepts whole JSON numbers and numeric strings.
func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	default:
		f, ok := toFloat(v)
		if !ok || f != float64(int64(f)) {
			return 0, false
		}
		return int64(f), true
	}
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseDate reads the formats generate_date and the model commonly produce.
// Values without an offset are interpreted in loc.
func parseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q, use ISO-8601 (YYYY-MM-DDTHH:MM:SS±HH:MM)", s)
}

func formatAmount(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
