package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// View composes the feed, prompt bar and status bar.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.feed.View(), m.renderPromptBar(), m.renderStatusBar())
}

func (m Model) renderMessages() string {
	if len(m.messages) == 0 {
		return welcomeStyle.Width(m.width).Render("Record expenses and income in plain language, e.g. \"lunch 50k\".")
	}
	rendered := make([]string, 0, len(m.messages))
	for _, msg := range m.messages {
		rendered = append(rendered, renderMessage(msg, m.width))
	}
	return strings.Join(rendered, "\n")
}

func renderMessage(msg Message, width int) string {
	boxWidth := width - 2
	if boxWidth < 20 {
		boxWidth = 20
	}
	switch msg.Role {
	case RoleUser:
		return userLabelStyle.Render("You") + "\n" + messageBoxStyle.Width(boxWidth).Render(msg.Text)
	case RoleAgent:
		label := agentLabelStyle.Render("Assistant")
		if msg.Duration > 0 {
			label += dimStyle.Render(" " + formatDuration(msg.Duration))
		}
		return label + "\n" + messageBoxStyle.Width(boxWidth).Render(msg.Text)
	case RoleError:
		return errorStyle.Render("error: " + msg.Text)
	default:
		return systemStyle.Render(msg.Text)
	}
}

func (m Model) renderPromptBar() string {
	prefix := "> "
	if m.busy {
		prefix = m.spinner.View() + " "
	}
	hint := dimStyle.Render(" /help | ctrl+l clear | ctrl+c quit")
	return promptBarStyle.Width(m.width).Render(prefix + m.input.View() + hint)
}

func (m Model) renderStatusBar() string {
	left := fmt.Sprintf("phone %s | model %s", m.opts.Phone, m.opts.Model)
	right := fmt.Sprintf("turns %d | %s", m.turns, formatDuration(m.elapsed))
	padding := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 0 {
		padding = 0
	}
	return statusStyle.Render(left + strings.Repeat(" ", padding) + right)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Round(100 * time.Millisecond).String()
}
