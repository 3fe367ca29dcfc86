// Command poe-repl is an interactive terminal client for calling a Poe bot,
// streaming its response and rendering the final markdown turn.
package main

import (
	"context"
	"fmt"
	"os"

	poe "github.com/poe-platform/fastapi-poe"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	botName        string
	endpoint       string
	accessKeyFlag  string
	conversationID string
)

func main() {
	root := &cobra.Command{
		Use:   "poe-repl",
		Short: "Interactive terminal client for a Poe bot",
		RunE:  run,
	}
	root.Flags().StringVar(&botName, "bot", "", "bot name, used by the client in its logs and errors")
	root.Flags().StringVar(&endpoint, "endpoint", "", "bot endpoint URL (required)")
	root.Flags().StringVar(&accessKeyFlag, "access-key", "", "access key (falls back to POE_ACCESS_KEY/POE_API_KEY)")
	root.MarkFlagRequired("endpoint")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	userStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	botStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("213"))
	dimStyle  = lipgloss.NewStyle().Faint(true)
)

type model struct {
	client      *poe.BotClient
	convID      string
	input       textinput.Model
	spin        spinner.Model
	streaming   bool
	history     []string
	pendingText string
	events      <-chan poe.ClientEvent
}

type tickEventMsg struct {
	ev poe.ClientEvent
	ok bool
}

func waitForEvent(ch <-chan poe.ClientEvent) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		return tickEventMsg{ev: ev, ok: ok}
	}
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if m.streaming || m.input.Value() == "" {
				return m, nil
			}
			text := m.input.Value()
			m.history = append(m.history, userStyle.Render("you: ")+text)
			m.input.SetValue("")
			m.streaming = true
			m.pendingText = ""

			req := poe.QueryRequest{
				ConversationID: m.convID,
				Query: []poe.ProtocolMessage{{Role: poe.RoleUser, Content: text}},
			}
			ch, err := m.client.GetBotResponse(context.Background(), req)
			if err != nil {
				m.history = append(m.history, dimStyle.Render("error: "+err.Error()))
				m.streaming = false
				return m, nil
			}
			m.events = ch
			return m, tea.Batch(waitForEvent(ch), m.spin.Tick)
		}
	case tickEventMsg:
		if !msg.ok {
			m.streaming = false
			if m.pendingText != "" {
				rendered, err := glamour.Render(m.pendingText, "dark")
				if err != nil {
					rendered = m.pendingText
				}
				m.history = append(m.history, botStyle.Render("bot:")+"\n"+rendered)
			}
			return m, nil
		}
		ev := msg.ev
		switch {
		case ev.Partial != nil:
			if ev.Partial.IsReplace {
				m.pendingText = ev.Partial.Text
			} else {
				m.pendingText += ev.Partial.Text
			}
		case ev.Error != nil:
			m.history = append(m.history, dimStyle.Render("bot error: "+ev.Error.Text))
		case ev.Done:
			m.streaming = false
			rendered, err := glamour.Render(m.pendingText, "dark")
			if err != nil {
				rendered = m.pendingText
			}
			m.history = append(m.history, botStyle.Render("bot:")+"\n"+rendered)
			return m, nil
		}
		return m, waitForEvent(m.events)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) View() string {
	s := ""
	for _, line := range m.history {
		s += line + "\n"
	}
	if m.streaming {
		s += m.spin.View() + " streaming...\n"
	}
	s += m.input.View()
	return s
}

func run(cmd *cobra.Command, args []string) error {
	accessKey, err := poe.ResolveAccessKey(accessKeyFlag, "")
	if err != nil {
		return err
	}

	logger, err := poe.NewLogger(poe.LogConfig{Level: "warn"})
	if err != nil {
		return err
	}
	defer logger.Sync()

	if botName == "" {
		botName = "bot"
	}
	client := poe.NewBotClient(botName, endpoint, accessKey, logger)

	ti := textinput.New()
	ti.Placeholder = "say something..."
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	if conversationID == "" {
		conversationID = string(poe.NewIdentifier())
	}

	m := model{
		client: client,
		convID: conversationID,
		input:  ti,
		spin:   sp,
	}

	p := tea.NewProgram(m)
	_, err = p.Run()
	return err
}
