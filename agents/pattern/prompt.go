package pattern

import (
	"fmt"
	"strings"
	"time"

	"github.com/ghonijee/money-tracker-ai-agent/framework"
)

// DefaultSystemTemplate is used when no versioned template is configured.
// Placeholders: {tools}, {tool_names}, {user_memory}, {now}.
const DefaultSystemTemplate = `You are a personal finance assistant that records and looks up the user's income and expenses.

You can use these tools:
{tools}
Tool names: {tool_names}

To use a tool, reply with a short thought followed by exactly one action:
Thought: <your reasoning>
Action: {"name": "<tool name>", "args": {<arguments>}}

You will receive the tool output as "Observation: <result>". Repeat until you can answer.
When you are done, reply with:
Action: {"name": "final_answer", "args": {"answer": "<message for the user>"}}

Current time: {now}
What you remember about this user: {user_memory}`

// Observation texts fed back to the model.
const (
	noActionObservation = `Observation: Your response did not contain an action. Reply with Action: {"name": "<tool name>", "args": {...}} or Action: {"name": "final_answer", "args": {"answer": "..."}}.`
	apologyInstruction  = "Apologize to the user and give your final answer directly using final_answer. Do not call any tool."
)

// RenderSystemPrompt interpolates tool descriptors and the user memory into
// template.
func RenderSystemPrompt(template string, tools []framework.Tool, userMemory string, now time.Time) string {
	if strings.TrimSpace(template) == "" {
		template = DefaultSystemTemplate
	}
	if strings.TrimSpace(userMemory) == "" {
		userMemory = "No previous conversations found."
	}
	r := strings.NewReplacer(
		"{tools}", framework.RenderToolsToPrompt(tools),
		"{tool_names}", framework.RenderToolNames(tools),
		"{user_memory}", userMemory,
		"{now}", now.Format(time.RFC3339),
	)
	return r.Replace(template)
}

func observation(result string) string {
	return "Observation: " + result
}

func systemErrorObservation(err error) string {
	return fmt.Sprintf("Observation: System Error %s, please try again", err)
}

func apologyObservation(err error) string {
	return fmt.Sprintf("Observation: System Error %s. %s", err, apologyInstruction)
}
