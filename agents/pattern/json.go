package pattern

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/ghonijee/money-tracker-ai-agent/framework"
)

// FinalAnswerAction is the reserved action name that ends a run.
const FinalAnswerAction = "final_answer"

// Action is a structured instruction extracted from one model response.
type Action struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

// IsFinal reports whether the action terminates the run.
func (a Action) IsFinal() bool {
	return strings.EqualFold(a.Name, FinalAnswerAction)
}

// Answer returns args.answer for a final action.
func (a Action) Answer() (string, bool) {
	answer, ok := a.Args["answer"].(string)
	return answer, ok && strings.TrimSpace(answer) != ""
}

// ExtractJSONSnippet returns the substring from the first '{' to the last '}'.
// When delimiters are missing it returns an empty string so callers can
// surface a more helpful error.
func ExtractJSONSnippet(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return ""
}

var actionMarker = regexp.MustCompile(`(?i)\baction\s*:`)

// HasActionMarker reports whether a response contains anything that
// introduces an action: an "Action:" label or a brace pair.
func HasActionMarker(raw string) bool {
	return actionMarker.MatchString(raw) || ExtractJSONSnippet(raw) != ""
}

// ExtractAction parses the outermost JSON object in raw into an Action. The
// object must carry a non-empty string "name". A missing, null or empty-string
// "args" becomes an empty map; a JSON-encoded string is decoded.
func ExtractAction(raw string) (Action, error) {
	snippet := ExtractJSONSnippet(raw)
	if snippet == "" {
		return Action{}, fmt.Errorf("%w: no JSON object found in response", framework.ErrMalformedAction)
	}
	obj, err := decodeObject(snippet)
	if err != nil {
		return Action{}, fmt.Errorf("%w: %v", framework.ErrMalformedAction, err)
	}
	name, _ := obj["name"].(string)
	name = strings.TrimSpace(name)
	if name == "" {
		return Action{}, fmt.Errorf("%w: action JSON has no \"name\" field", framework.ErrMalformedAction)
	}
	args, err := normalizeArguments(obj["args"])
	if err != nil {
		return Action{}, fmt.Errorf("%w: %v", framework.ErrMalformedAction, err)
	}
	return Action{Name: name, Args: args}, nil
}

// decodeObject unmarshals snippet as a JSON object. Syntax errors in a
// brace-balanced snippet (single quotes, trailing commas, Python literals)
// get one pass through jsonrepair; unbalanced input is never completed.
func decodeObject(snippet string) (map[string]interface{}, error) {
	var obj map[string]interface{}
	err := json.Unmarshal([]byte(snippet), &obj)
	if err == nil {
		if obj == nil {
			return nil, fmt.Errorf("response JSON is not an object")
		}
		return obj, nil
	}
	if _, ok := err.(*json.SyntaxError); !ok || !balanced(snippet) {
		return nil, err
	}
	fixed, rerr := jsonrepair.JSONRepair(snippet)
	if rerr != nil {
		return nil, err
	}
	obj = nil
	if uerr := json.Unmarshal([]byte(fixed), &obj); uerr != nil || obj == nil {
		return nil, err
	}
	return obj, nil
}

// normalizeArguments coerces the args field into a map so tools always
// receive structured input.
func normalizeArguments(value interface{}) (map[string]interface{}, error) {
	switch v := value.(type) {
	case nil:
		return map[string]interface{}{}, nil
	case map[string]interface{}:
		return v, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return map[string]interface{}{}, nil
		}
		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(v), &obj); err == nil && obj != nil {
			return obj, nil
		}
		return map[string]interface{}{"value": v}, nil
	case []interface{}:
		return map[string]interface{}{"records": v}, nil
	default:
		return nil, fmt.Errorf("args must be an object, got %T", value)
	}
}

// balanced reports whether braces and brackets outside string literals pair
// up. Both quote styles count as strings.
func balanced(s string) bool {
	var stack []rune
	var quote rune
	escaped := false
	for _, r := range s {
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == quote:
				quote = 0
			}
			continue
		}
		switch r {
		case '"', '\'':
			quote = r
		case '{', '[':
			stack = append(stack, r)
		case '}', ']':
			if len(stack) == 0 {
				return false
			}
			open := stack[len(stack)-1]
			if (r == '}' && open != '{') || (r == ']' && open != '[') {
				return false
			}
			stack = stack[:len(stack)-1]
		}
	}
	return quote == 0 && len(stack) == 0
}
