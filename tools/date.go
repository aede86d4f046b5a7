package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/ghonijee/money-tracker-ai-agent/agents/pattern"
	"github.com/ghonijee/money-tracker-ai-agent/framework"
)

const dateSystemPrompt = `You are a precise date/time parser. Convert the natural-language expression into an absolute date and time.
Use the reference time and timezone you are given. When no time of day is mentioned, use the time of the reference.
Output ONLY valid JSON like {"datetime": "YYYY-MM-DDTHH:MM:SS±HH:MM"} with no other text.`

// GenerateDateTool resolves expressions like "last friday" into ISO-8601.
// Common relative words are resolved locally; everything else goes to the
// model.
type GenerateDateTool struct {
	Model    framework.LanguageModel
	Location *time.Location
	Now      func() time.Time
}

func (t *GenerateDateTool) Name() string { return "generate_date" }

func (t *GenerateDateTool) Description() string {
	return "Convert a natural-language date or time expression (e.g. 'today', 'yesterday 7pm', 'last friday') into an ISO-8601 datetime."
}

func (t *GenerateDateTool) Parameters() []framework.ToolParameter {
	return []framework.ToolParameter{
		{Name: "expression", Type: "str", Description: "The date/time expression written by the user", Required: true},
		{Name: "reference", Type: "str", Description: "ISO-8601 reference datetime, defaults to now"},
		{Name: "timezone", Type: "str", Description: "IANA timezone name, e.g. Asia/Jakarta"},
		{Name: "format", Type: "str", Description: "Output format: 'datetime' (default ISO-8601), 'date', or a Go time layout"},
	}
}

func (t *GenerateDateTool) OutputSchema() string { return "str (ISO-8601 datetime)" }

func (t *GenerateDateTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	expression, err := requireString(t.Name(), args, "expression")
	if err != nil {
		return "", err
	}
	loc := t.Location
	if loc == nil {
		loc = time.Local
	}
	if tz, ok := stringArg(args, "timezone"); ok && tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return "", framework.InvalidArgs(t.Name(), "Unknown timezone %q", tz)
		}
		loc = l
	}
	ref := t.now().In(loc)
	if r, ok := stringArg(args, "reference"); ok && r != "" {
		parsed, err := parseDate(r, loc)
		if err != nil {
			return "", framework.InvalidArgs(t.Name(), "Invalid reference: %v", err)
		}
		ref = parsed.In(loc)
	}

	resolved, ok := resolveRelative(expression, ref)
	if !ok {
		resolved, err = t.askModel(ctx, expression, ref, loc)
		if err != nil {
			return "", err
		}
	}
	format, _ := stringArg(args, "format")
	return formatDate(resolved.In(loc), format), nil
}

func (t *GenerateDateTool) askModel(ctx context.Context, expression string, ref time.Time, loc *time.Location) (time.Time, error) {
	if t.Model == nil {
		return time.Time{}, fmt.Errorf("generate_date: no language model configured")
	}
	resp, err := t.Model.Chat(ctx, []framework.Message{
		{Role: framework.RoleSystem, Content: dateSystemPrompt},
		{Role: framework.RoleUser, Content: fmt.Sprintf("Expression: %s\nReference: %s\nTimezone: %s", expression, ref.Format(time.RFC3339), loc.String())},
	}, &framework.LLMOptions{Temperature: 0, MaxTokens: 64})
	if err != nil {
		return time.Time{}, fmt.Errorf("generate_date: %w", err)
	}
	if resp == nil {
		return time.Time{}, fmt.Errorf("generate_date: %w: empty response", framework.ErrLLMProvider)
	}
	snippet := pattern.ExtractJSONSnippet(resp.Text)
	value := gjson.Get(snippet, "datetime")
	if snippet == "" || !value.Exists() {
		return time.Time{}, fmt.Errorf("%w: generate_date reply has no datetime field: %q", framework.ErrMalformedAction, resp.Text)
	}
	parsed, err := parseDate(value.String(), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("generate_date: %w", err)
	}
	return parsed, nil
}

var relativeDays = map[string]int{
	"now": 0, "today": 0, "hari ini": 0, "sekarang": 0,
	"yesterday": -1, "kemarin": -1,
	"tomorrow": 1, "besok": 1,
}

func resolveRelative(expression string, ref time.Time) (time.Time, bool) {
	offset, ok := relativeDays[strings.ToLower(strings.TrimSpace(expression))]
	if !ok {
		return time.Time{}, false
	}
	return ref.AddDate(0, 0, offset), true
}

func formatDate(t time.Time, format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "datetime", "iso", "iso-8601", "iso8601":
		return t.Format(time.RFC3339)
	case "date":
		return t.Format("2006-01-02")
	default:
		return t.Format(format)
	}
}

func (t *GenerateDateTool) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}
