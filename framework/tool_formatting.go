package framework

import (
	"fmt"
	"strings"
)

// RenderToolsToPrompt converts tool descriptors into the text block that is
// interpolated into the system prompt.
func RenderToolsToPrompt(tools []Tool) string {
	if len(tools) == 0 {
		return "No tools available."
	}
	var b strings.Builder
	for _, tool := range tools {
		b.WriteString(fmt.Sprintf("## %s\n", tool.Name()))
		b.WriteString(fmt.Sprintf("%s\n", tool.Description()))
		b.WriteString("Arguments:\n")
		params := tool.Parameters()
		if len(params) == 0 {
			b.WriteString("  (No arguments)\n")
		} else {
			for _, param := range params {
				req := "optional"
				if param.Required {
					req = "required"
				}
				b.WriteString(fmt.Sprintf("  - %s (%s, %s): %s\n", param.Name, param.Type, req, param.Description))
			}
		}
		if out := tool.OutputSchema(); out != "" {
			b.WriteString(fmt.Sprintf("Returns: %s\n", out))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// RenderToolNames joins tool names for templates that list them inline.
func RenderToolNames(tools []Tool) string {
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name())
	}
	return strings.Join(names, ", ")
}
