package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/zhouzirui/linear-tutor/internal/model/chat"
)

func (m *Model) headerView() string {
	title := m.theme.header.Render("∑ Linear Algebra Tutor")
	st := m.theme.headerStyle.Render("style: " + m.ctrl.Style().Label())
	gap := max(m.width-lipgloss.Width(title)-lipgloss.Width(st)-1, 1)
	return title + strings.Repeat(" ", gap) + st
}

func (m *Model) footerView() string {
	help := "enter send • alt+enter newline • tab style • ctrl+t matrix • ctrl+l clear • esc cancel • ctrl+c quit"
	if m.status == "" {
		return m.theme.muted.Render(help)
	}
	return m.theme.status.Render(m.status) + "  " + m.theme.muted.Render(help)
}

func (m *Model) renderTranscript() string {
	if len(m.messages) == 0 {
		return m.welcomeView()
	}

	width := m.bubbleWidth()
	blocks := make([]string, 0, len(m.messages))
	for _, msg := range m.messages {
		blocks = append(blocks, m.renderMessage(msg, width))
	}
	return strings.Join(blocks, "\n\n")
}

func (m *Model) renderMessage(msg chat.Message, width int) string {
	if msg.Role == chat.RoleUser {
		body := msg.Content
		if note := attachmentNote(msg.Attachment); note != "" {
			body += "\n" + m.theme.muted.Render(note)
		}
		block := lipgloss.JoinVertical(lipgloss.Right,
			m.theme.userLabel.Render("You"),
			m.theme.userBubble.Width(width).Render(body),
		)
		return lipgloss.PlaceHorizontal(m.width, lipgloss.Right, block)
	}

	label := m.theme.tutorLabel.Render("Tutor")
	switch {
	case msg.Failed:
		banner := m.theme.errorBanner.Render("Computation Error")
		return lipgloss.JoinVertical(lipgloss.Left, label,
			m.theme.errorBubble.Width(width).Render(banner+"\n"+msg.Content))
	case msg.Content == "":
		// Open placeholder before the first fragment.
		return lipgloss.JoinVertical(lipgloss.Left, label,
			m.theme.tutorBubble.Width(width).Render(m.spinner.View()+m.theme.muted.Render(" Processing neural vectors...")))
	}

	body := msg.Content
	if msg.Cancelled {
		body += "\n" + m.theme.muted.Render("(cancelled)")
	}
	return lipgloss.JoinVertical(lipgloss.Left, label, m.theme.tutorBubble.Width(width).Render(body))
}

func (m *Model) welcomeView() string {
	lines := []string{
		m.theme.welcomeHead.Render("Initialize Protocol"),
		"",
		"Input linear equations or matrices. The tutor will decompose the",
		"problem, show each step, and verify the result.",
		"",
		"System Ready...",
	}
	return lipgloss.Place(m.viewport.Width, m.viewport.Height, lipgloss.Center, lipgloss.Center,
		m.theme.welcome.Render(strings.Join(lines, "\n")))
}

func (m *Model) bubbleWidth() int {
	return max(m.width*3/4, 20)
}

func attachmentNote(att *chat.Attachment) string {
	if att == nil {
		return ""
	}
	return fmt.Sprintf("[attachment %s, %d bytes]", att.MIMEType, len(att.Data))
}
