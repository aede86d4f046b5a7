package tui

import (
	"fmt"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sahilm/fuzzy"
)

// CommandHandler mutates model state for a /command.
type CommandHandler func(Model, []string) (Model, tea.Cmd)

// Command describes a slash command entry.
type Command struct {
	Name        string
	Description string
	Handler     CommandHandler
}

var commandRegistry = map[string]Command{}

func init() {
	registerCommand(Command{Name: "help", Description: "Show available commands", Handler: handleHelp})
	registerCommand(Command{Name: "clear", Description: "Clear the chat feed", Handler: handleClear})
	registerCommand(Command{Name: "phone", Description: "Show or switch the phone number you chat as", Handler: handlePhone})
	registerCommand(Command{Name: "quit", Description: "Leave the chat", Handler: handleQuit})
}

func registerCommand(cmd Command) {
	commandRegistry[cmd.Name] = cmd
}

func commandNames() []string {
	names := make([]string, 0, len(commandRegistry))
	for name := range commandRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func parseCommand(raw string) (string, []string) {
	fields := strings.Fields(strings.TrimPrefix(raw, "/"))
	if len(fields) == 0 {
		return "", nil
	}
	return strings.ToLower(fields[0]), fields[1:]
}

func handleCommand(m Model, name string, args []string) (Model, tea.Cmd) {
	if name == "" {
		return m, nil
	}
	cmd, ok := commandRegistry[name]
	if !ok {
		text := fmt.Sprintf("unknown command /%s", name)
		if matches := fuzzy.Find(name, commandNames()); len(matches) > 0 {
			text += fmt.Sprintf(", did you mean /%s?", matches[0].Str)
		}
		return m.appendMessage(RoleSystem, text), nil
	}
	return cmd.Handler(m, args)
}

func handleHelp(m Model, _ []string) (Model, tea.Cmd) {
	var b strings.Builder
	b.WriteString("Commands:")
	for _, name := range commandNames() {
		fmt.Fprintf(&b, "\n  /%-6s %s", name, commandRegistry[name].Description)
	}
	return m.appendMessage(RoleSystem, b.String()), nil
}

func handleClear(m Model, _ []string) (Model, tea.Cmd) {
	m.messages = nil
	return m.refreshFeed(), nil
}

func handlePhone(m Model, args []string) (Model, tea.Cmd) {
	if len(args) == 0 {
		return m.appendMessage(RoleSystem, "chatting as "+m.opts.Phone), nil
	}
	m.opts.Phone = args[0]
	return m.appendMessage(RoleSystem, "now chatting as "+m.opts.Phone), nil
}

func handleQuit(m Model, _ []string) (Model, tea.Cmd) {
	return m, tea.Quit
}
