package tui

import (
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// Init fulfills the Bubble Tea Model interface.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update applies incoming Bubble Tea messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg), nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+d":
			return m, tea.Quit
		case "ctrl+l":
			m.messages = nil
			return m.refreshFeed(), nil
		case "enter":
			return m.submit()
		case "up", "down", "pgup", "pgdown":
			var cmd tea.Cmd
			m.feed, cmd = m.feed.Update(msg)
			return m, cmd
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	case agentReplyMsg:
		return m.handleReply(msg), nil
	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleResize(msg tea.WindowSizeMsg) Model {
	m.width = msg.Width
	m.height = msg.Height
	feedHeight := msg.Height - 2
	if feedHeight < 1 {
		feedHeight = 1
	}
	m.feed.Width = msg.Width
	m.feed.Height = feedHeight
	m.ready = true
	if w := msg.Width - 4; w > 10 {
		m.input.Width = w
	} else {
		m.input.Width = 10
	}
	return m.refreshFeed()
}

func (m Model) handleReply(msg agentReplyMsg) Model {
	m.busy = false
	m.turns++
	m.elapsed += msg.duration
	if msg.err != nil {
		return m.appendMessage(RoleError, msg.err.Error())
	}
	m.messages = append(m.messages, Message{Role: RoleAgent, Text: msg.text, Duration: msg.duration})
	return m.refreshFeed()
}
