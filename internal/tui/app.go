// Package tui renders a conversation in the terminal. It drives the same chat
// service as the HTTP widget and listens to the same event bus.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"

	"github.com/zhouzirui/mira-chat/internal/events"
	"github.com/zhouzirui/mira-chat/internal/model/chat"
	chatService "github.com/zhouzirui/mira-chat/internal/service/chat"
)

// ToastTTL is how long a notification stays on screen.
const ToastTTL = 4 * time.Second

// Subscriber is the read side of the event bus.
type Subscriber interface {
	Subscribe(ctx context.Context, conversationID string) (<-chan events.Event, error)
}

type mode int

const (
	modeName mode = iota
	modeChat
	modeSettings
)

type (
	eventMsg        struct{ ev events.Event }
	feedClosedMsg   struct{}
	nameSetMsg      struct{ err error }
	sentMsg         struct{ err error }
	savedMsg        struct{ err error }
	toastExpiredMsg struct{ id int }
)

type toast struct {
	id int
	n  chat.Notification
}

// Model is the bubbletea model of one conversation.
type Model struct {
	ctx    context.Context
	svc    *chatService.Service
	convID string
	feed   <-chan events.Event

	mode     mode
	input    textinput.Model
	settings textinput.Model
	editor   *chatService.EndpointEditor
	spinner  spinner.Model

	messages  []chat.Message
	lastSeq   int
	busy      bool
	toasts    []toast
	nextToast int
	width     int
}

// New opens a conversation on svc and subscribes to its events. The
// subscription ends with ctx.
func New(ctx context.Context, svc *chatService.Service, subscriber Subscriber) (Model, error) {
	conv, err := svc.OpenConversation(ctx)
	if err != nil {
		return Model{}, err
	}
	feed, err := subscriber.Subscribe(ctx, conv.ID())
	if err != nil {
		return Model{}, err
	}

	in := textinput.New()
	in.CharLimit = 2000

	st := textinput.New()
	st.Placeholder = "https://..."
	st.CharLimit = 500

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = thinkingStyle

	m := Model{
		ctx:      ctx,
		svc:      svc,
		convID:   conv.ID(),
		feed:     feed,
		input:    in,
		settings: st,
		spinner:  sp,
		lastSeq:  -1,
		width:    80,
	}
	for _, msg := range conv.Messages() {
		m.appendMessage(msg)
	}

	if svc.NeedsName() {
		m.mode = modeName
		m.input.Placeholder = "Ton prénom"
	} else {
		m.mode = modeChat
		m.input.Placeholder = "Écris ton message..."
	}
	m.input.Focus()
	return m, nil
}

// ConversationID identifies the conversation the model renders.
func (m Model) ConversationID() string {
	return m.convID
}

func waitForEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return feedClosedMsg{}
		}
		return eventMsg{ev: ev}
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, waitForEvent(m.feed))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case eventMsg:
		cmd := m.apply(msg.ev)
		return m, tea.Batch(cmd, waitForEvent(m.feed))

	case feedClosedMsg:
		return m, nil

	case nameSetMsg:
		if msg.err != nil {
			return m, m.pushToast(errorNotification(msg.err))
		}
		m.mode = modeChat
		m.input.Reset()
		m.input.Placeholder = "Écris ton message..."
		return m, nil

	case sentMsg:
		if msg.err != nil && !errors.Is(msg.err, chatService.ErrBusy) {
			return m, m.pushToast(errorNotification(msg.err))
		}
		return m, nil

	case savedMsg:
		if msg.err != nil {
			return m, m.pushToast(errorNotification(msg.err))
		}
		m.mode = modeChat
		m.editor = nil
		return m, m.input.Focus()

	case toastExpiredMsg:
		for i, t := range m.toasts {
			if t.id == msg.id {
				m.toasts = append(m.toasts[:i], m.toasts[i+1:]...)
				break
			}
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		switch m.mode {
		case modeName:
			return m.updateName(msg)
		case modeChat:
			return m.updateChat(msg)
		case modeSettings:
			return m.updateSettings(msg)
		}
	}
	return m, nil
}

func (m Model) updateName(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "enter" {
		name := strings.TrimSpace(m.input.Value())
		if name == "" {
			return m, nil
		}
		svc, ctx, id := m.svc, m.ctx, m.convID
		return m, func() tea.Msg {
			_, err := svc.SetDisplayName(ctx, id, name)
			return nameSetMsg{err: err}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+s":
		m.editor = m.svc.EditEndpoint(m.convID)
		m.settings.SetValue(m.editor.Draft())
		m.mode = modeSettings
		m.input.Blur()
		return m, m.settings.Focus()
	case "enter":
		text := m.input.Value()
		if m.busy || strings.TrimSpace(text) == "" {
			return m, nil
		}
		m.input.Reset()
		svc, ctx, id := m.svc, m.ctx, m.convID
		return m, func() tea.Msg {
			_, err := svc.Send(ctx, id, text)
			return sentMsg{err: err}
		}
	}
	if m.busy {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateSettings(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.settings.SetValue(m.editor.Cancel())
		m.settings.Blur()
		m.editor = nil
		m.mode = modeChat
		return m, m.input.Focus()
	case "enter":
		m.editor.Edit(m.settings.Value())
		editor, ctx := m.editor, m.ctx
		return m, func() tea.Msg {
			_, err := editor.Save(ctx)
			return savedMsg{err: err}
		}
	}
	var cmd tea.Cmd
	m.settings, cmd = m.settings.Update(msg)
	m.editor.Edit(m.settings.Value())
	return m, cmd
}

// apply folds one bus event into the model.
func (m *Model) apply(ev events.Event) tea.Cmd {
	switch ev.Type {
	case events.MessageAppended:
		if ev.Message != nil {
			m.appendMessage(*ev.Message)
		}
	case events.BusyChanged:
		if ev.Busy != nil {
			m.busy = *ev.Busy
			if m.busy {
				return m.spinner.Tick
			}
		}
	case events.NotificationRaised:
		if ev.Notification != nil {
			return m.pushToast(*ev.Notification)
		}
	}
	return nil
}

func (m *Model) appendMessage(msg chat.Message) {
	if msg.Seq <= m.lastSeq {
		return
	}
	m.messages = append(m.messages, msg)
	m.lastSeq = msg.Seq
}

func (m *Model) pushToast(n chat.Notification) tea.Cmd {
	m.nextToast++
	id := m.nextToast
	m.toasts = append(m.toasts, toast{id: id, n: n})
	return tea.Tick(ToastTTL, func(time.Time) tea.Msg {
		return toastExpiredMsg{id: id}
	})
}

func errorNotification(err error) chat.Notification {
	return chat.Notification{Title: "Erreur", Description: err.Error(), Variant: chat.VariantDestructive}
}

func (m Model) View() string {
	p := m.svc.Persona()
	var b strings.Builder

	b.WriteString(titleStyle.Render(p.Name+" 💕") + dimStyle.Render(p.Title) + "\n\n")

	name := m.svc.Session().DisplayName
	for _, msg := range m.messages {
		b.WriteString(m.renderMessage(msg, p.Name, name))
		b.WriteString("\n\n")
	}

	if m.busy {
		b.WriteString(m.spinner.View() + " " + thinkingStyle.Render(p.ThinkingLine) + "\n\n")
	}

	switch m.mode {
	case modeName:
		b.WriteString(panelStyle.Render("Comment tu t'appelles ?\n" + m.input.View()))
		b.WriteString("\n" + helpStyle.Render("enter: valider • ctrl+c: quitter"))
	case modeChat:
		b.WriteString(m.input.View())
		b.WriteString("\n" + helpStyle.Render("enter: envoyer • ctrl+s: paramètres • ctrl+c: quitter"))
	case modeSettings:
		b.WriteString(panelStyle.Render("URL du webhook\n" + m.settings.View()))
		b.WriteString("\n" + helpStyle.Render("enter: sauvegarder • esc: annuler"))
	}

	for _, t := range m.toasts {
		style := toastStyle
		if t.n.Variant == chat.VariantDestructive {
			style = destructiveToastStyle
		}
		b.WriteString("\n" + style.Render(t.n.Title+"\n"+t.n.Description))
	}
	return b.String() + "\n"
}

func (m Model) renderMessage(msg chat.Message, assistant, user string) string {
	if msg.IsUser() {
		meta := dimStyle.Render(fmt.Sprintf("%s • %s", msg.Timestamp.Local().Format("15:04"), user))
		block := lipgloss.JoinVertical(lipgloss.Right, userTextStyle.Render(msg.Text), meta)
		return lipgloss.NewStyle().Width(m.width).Align(lipgloss.Right).Render(block)
	}
	return assistantLabelStyle.Render(assistant) + "\n" + lipgloss.NewStyle().Width(m.width).Render(msg.Text)
}
