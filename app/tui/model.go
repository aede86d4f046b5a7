// Package tui is a terminal chat client for the finance agent.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Agent is the part of the finance agent the chat needs.
type Agent interface {
	Ask(ctx context.Context, rawUserID, text string) (string, error)
}

// Options describe the chat session.
type Options struct {
	Phone   string
	Model   string
	Timeout time.Duration
}

// Run starts the full-screen chat and blocks until the user quits.
func Run(ctx context.Context, agent Agent, opts Options) error {
	if agent == nil {
		return fmt.Errorf("agent is required")
	}
	program := tea.NewProgram(
		NewModel(agent, opts),
		tea.WithContext(ctx),
		tea.WithAltScreen(),
	)
	_, err := program.Run()
	return err
}

// MessageRole identifies who wrote a feed entry.
type MessageRole string

const (
	RoleUser   MessageRole = "user"
	RoleAgent  MessageRole = "agent"
	RoleSystem MessageRole = "system"
	RoleError  MessageRole = "error"
)

// Message is one feed entry.
type Message struct {
	Role      MessageRole
	Text      string
	Timestamp time.Time
	Duration  time.Duration
}

// Model implements tea.Model: a scrollable feed, a prompt bar and a status
// bar.
type Model struct {
	agent Agent
	opts  Options

	feed    viewport.Model
	input   textinput.Model
	spinner spinner.Model

	messages []Message
	busy     bool
	turns    int
	elapsed  time.Duration

	width  int
	height int
	ready  bool
}

// agentReplyMsg carries the result of one Ask call back into Update.
type agentReplyMsg struct {
	text     string
	err      error
	duration time.Duration
}

// NewModel builds the initial chat state.
func NewModel(agent Agent, opts Options) Model {
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Minute
	}
	input := textinput.New()
	input.Placeholder = "Tell me what you spent, or /help"
	input.CharLimit = 225
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return Model{
		agent:   agent,
		opts:    opts,
		feed:    viewport.New(0, 0),
		input:   input,
		spinner: sp,
	}
}

// submit sends the prompt to the agent, or runs it as a slash command.
func (m Model) submit() (Model, tea.Cmd) {
	value := strings.TrimSpace(m.input.Value())
	if value == "" || m.busy {
		return m, nil
	}
	m.input.SetValue("")
	if strings.HasPrefix(value, "/") {
		name, args := parseCommand(value)
		return handleCommand(m, name, args)
	}
	m = m.appendMessage(RoleUser, value)
	m.busy = true
	return m, tea.Batch(m.ask(value), m.spinner.Tick)
}

func (m Model) ask(text string) tea.Cmd {
	agent, phone, timeout := m.agent, m.opts.Phone, m.opts.Timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		start := time.Now()
		reply, err := agent.Ask(ctx, phone, text)
		return agentReplyMsg{text: reply, err: err, duration: time.Since(start)}
	}
}

func (m Model) appendMessage(role MessageRole, text string) Model {
	m.messages = append(m.messages, Message{Role: role, Text: text, Timestamp: time.Now()})
	return m.refreshFeed()
}

func (m Model) refreshFeed() Model {
	if !m.ready {
		return m
	}
	m.feed.SetContent(m.renderMessages())
	m.feed.GotoBottom()
	return m
}
