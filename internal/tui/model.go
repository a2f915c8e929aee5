package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"loom-cli/internal/api"
	"loom-cli/internal/chat"
	"loom-cli/internal/config"
	"loom-cli/internal/conv"
)

// ─── App mode ───────────────────────────────────────────────────────────────

type appMode int

const (
	modeIdle appMode = iota
	modeStreaming
	modeLoginURL
	modeLoginUser
	modeLoginPass
)

// ─── Slash command registry ─────────────────────────────────────────────────

type slashCmd struct {
	name string
	desc string
}

var slashCommands = []slashCmd{
	{"/clear", "Clear the screen"},
	{"/config", "Show current configuration"},
	{"/conversations", "List conversations on the server"},
	{"/help", "Show all commands"},
	{"/login", "Login to a Loom server"},
	{"/new", "Start a fresh conversation"},
	{"/quit", "Exit Loom"},
	{"/set", "Set model, conversation or server"},
	{"/switch", "Switch to another conversation"},
}

// ─── Model ──────────────────────────────────────────────────────────────────

type model struct {
	width  int
	height int

	// Bubble Tea components
	input   textinput.Model
	spinner spinner.Model

	// App state
	mode    appMode
	cfg     *config.Config
	client  api.RelayAPI
	subs    *chat.SubscriptionManager
	sess    *chat.Session
	log     zerolog.Logger
	version string
	profile string

	// Streaming state
	pump         *streamPump
	printedLen   int    // how many chars of the visible projection we've printed
	lineBuffer   string // partial line held back until its newline arrives
	streamPrompt string

	// Conversation feed state
	convCh        chan struct{}
	replayPending bool // print the full snapshot when the next one arrives

	// Login flow state
	loginURL  string
	loginUser string

	// UI state
	ready        bool
	cmdMenuIdx   int
	cmdMenuOpen  bool
	lastInputVal string

	// Input history
	history      []string
	historyIdx   int // -1 = not browsing
	historySaved string
}

func initialModel(version, profile string, log zerolog.Logger) model {
	ti := textinput.New()
	ti.Placeholder = "Ask anything or type /help..."
	ti.Focus()
	ti.CharLimit = 4096
	ti.Prompt = "❯ "
	ti.PromptStyle = promptSymbol
	ti.Cursor.Style = lipgloss.NewStyle().Foreground(colorViolet)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(colorViolet)

	cfg, _ := config.Load(profile)

	m := model{
		input:      ti,
		spinner:    sp,
		version:    version,
		profile:    profile,
		cfg:        cfg,
		log:        log,
		mode:       modeIdle,
		history:    make([]string, 0),
		historyIdx: -1,
	}

	if cfg != nil && cfg.Server != "" && cfg.Token != "" {
		m.connect()
	}

	return m
}

// connect builds the authenticated client and the chat plumbing on top of it.
func (m *model) connect() {
	client := api.NewClient(m.cfg)
	m.client = client

	m.convCh = make(chan struct{}, 1)
	ch := m.convCh

	m.subs = chat.NewSubscriptionManager(client, m.log)
	m.subs.OnChange(func([]conv.Turn) {
		select {
		case ch <- struct{}{}:
		default:
		}
	})
	m.sess = chat.NewSession(client, client, m.subs, m.log)
}

func (m model) identity() chat.Identity {
	if m.cfg == nil {
		return chat.Identity{}
	}
	return chat.Identity{User: m.cfg.Username}
}

// ─── Init ───────────────────────────────────────────────────────────────────

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		textinput.Blink,
		m.spinner.Tick,
	}
	if m.convCh != nil {
		cmds = append(cmds, waitForConvChange(m.convCh))
	}
	if m.subs != nil && m.cfg != nil && m.cfg.Conversation != "" {
		cmds = append(cmds, attachConversation(m.subs, m.cfg.Conversation, m.identity()))
	}
	return tea.Batch(cmds...)
}

// ─── Update ─────────────────────────────────────────────────────────────────

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = m.width - 6

		if !m.ready {
			m.ready = true
			welcome := renderWelcome(m.version, serverStr(m.cfg), conversationStr(m.cfg), m.width)
			cmds = append(cmds, tea.Println(welcome))
		}

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			if m.mode == modeStreaming {
				m.mode = modeIdle
				m.stopPump()
				m.resetStreamState()
				cmds = append(cmds, tea.Println(warnMsgStyle.Render("  ! Stopped watching the response. It may still commit in the background.")))
				return m, tea.Batch(cmds...)
			}
			return m, tea.Quit

		case tea.KeyEsc:
			if m.mode == modeStreaming {
				m.mode = modeIdle
				m.stopPump()
				m.resetStreamState()
				cmds = append(cmds, tea.Println(warnMsgStyle.Render("  ! Stopped watching the response. It may still commit in the background.")))
				return m, tea.Batch(cmds...)
			}
			if m.mode == modeLoginURL || m.mode == modeLoginUser || m.mode == modeLoginPass {
				m.mode = modeIdle
				m.input.Placeholder = "Ask anything or type /help..."
				m.input.SetValue("")
				m.input.EchoMode = textinput.EchoNormal
				cmds = append(cmds, tea.Println(warnMsgStyle.Render("  ! Login cancelled.")))
				return m, tea.Batch(cmds...)
			}
			if m.cmdMenuOpen {
				m.cmdMenuOpen = false
				m.cmdMenuIdx = 0
				return m, nil
			}

		case tea.KeyUp:
			if m.mode == modeIdle {
				if m.cmdMenuOpen {
					matches := matchCommands(m.input.Value())
					if len(matches) > 0 {
						m.cmdMenuIdx--
						if m.cmdMenuIdx < 0 {
							m.cmdMenuIdx = len(matches) - 1
						}
						return m, nil
					}
				} else if len(m.history) > 0 {
					if m.historyIdx == -1 {
						m.historySaved = m.input.Value()
						m.historyIdx = len(m.history) - 1
					} else {
						m.historyIdx--
						if m.historyIdx < 0 {
							m.historyIdx = 0
						}
					}
					m.input.SetValue(m.history[m.historyIdx])
					m.input.CursorEnd()
					return m, nil
				}
			}

		case tea.KeyDown:
			if m.mode == modeIdle {
				if m.cmdMenuOpen {
					matches := matchCommands(m.input.Value())
					if len(matches) > 0 {
						m.cmdMenuIdx++
						if m.cmdMenuIdx >= len(matches) {
							m.cmdMenuIdx = 0
						}
						return m, nil
					}
				} else if m.historyIdx != -1 {
					m.historyIdx++
					if m.historyIdx >= len(m.history) {
						m.historyIdx = -1
						m.input.SetValue(m.historySaved)
						m.historySaved = ""
					} else {
						m.input.SetValue(m.history[m.historyIdx])
					}
					m.input.CursorEnd()
					return m, nil
				}
			}

		case tea.KeyTab:
			if m.mode == modeIdle && m.cmdMenuOpen {
				matches := matchCommands(m.input.Value())
				if len(matches) > 0 {
					idx := m.cmdMenuIdx
					if idx < 0 || idx >= len(matches) {
						idx = 0
					}
					m.input.SetValue(matches[idx].name + " ")
					m.input.CursorEnd()
					m.cmdMenuOpen = false
					m.cmdMenuIdx = 0
				}
				return m, nil
			}

		case tea.KeyEnter:
			if m.mode == modeIdle && m.cmdMenuOpen && m.cmdMenuIdx >= 0 {
				matches := matchCommands(m.input.Value())
				if m.cmdMenuIdx < len(matches) {
					m.input.SetValue(matches[m.cmdMenuIdx].name + " ")
					m.input.CursorEnd()
					m.cmdMenuOpen = false
					m.cmdMenuIdx = 0
					return m, nil
				}
			}

			value := strings.TrimSpace(m.input.Value())
			if value == "" {
				return m, nil
			}

			// Avoid back-to-back duplicates in history
			if len(m.history) == 0 || m.history[len(m.history)-1] != value {
				m.history = append(m.history, value)
				if len(m.history) > 1000 {
					m.history = m.history[len(m.history)-1000:]
				}
			}
			m.historyIdx = -1
			m.historySaved = ""

			m.input.SetValue("")
			m.cmdMenuOpen = false
			m.cmdMenuIdx = 0

			switch m.mode {
			case modeLoginURL:
				return m.handleLoginURLSubmit(value)
			case modeLoginUser:
				return m.handleLoginUserSubmit(value)
			case modeLoginPass:
				return m.handleLoginPassSubmit(value)
			default:
				return m.dispatchInput(value)
			}
		}

	// ── Stream messages ───────────────────────────────────────────────
	case chatReadyMsg:
		if m.mode != modeStreaming {
			// Cancelled while the conversation was attaching.
			return m, nil
		}
		pump, cmd := beginChat(m.sess, msg.prompt)
		m.pump = pump
		return m, cmd

	case streamVisibleMsg:
		if m.mode != modeStreaming || m.pump == nil {
			return m, nil
		}
		printCmd := m.handleVisible(msg.visible)
		if printCmd != nil {
			cmds = append(cmds, printCmd)
		}
		cmds = append(cmds, waitForStream(m.pump.ch))
		return m, tea.Batch(cmds...)

	case streamDoneMsg:
		if m.mode != modeStreaming {
			// Cancelled locally; the commit already happened server-side.
			return m, nil
		}
		m.mode = modeIdle
		m.pump = nil
		var flushCmds []tea.Cmd
		if m.lineBuffer != "" {
			flushCmds = append(flushCmds, tea.Println("  "+m.lineBuffer))
			m.lineBuffer = ""
		}
		flushCmds = append(flushCmds,
			tea.Println(""),
			tea.Println(successMsgStyle.Render("  ✓ Response committed")),
			tea.Println(""),
		)
		m.resetStreamState()
		return m, tea.Batch(append(cmds, tea.Sequence(flushCmds...))...)

	case streamErrMsg:
		if m.mode != modeStreaming {
			return m, nil
		}
		m.mode = modeIdle
		m.pump = nil
		m.resetStreamState()
		if errors.Is(msg.err, chat.ErrBusy) {
			cmds = append(cmds, tea.Println(warnMsgStyle.Render("  ! A response is already in flight. Try again when it finishes.")))
		} else {
			cmds = append(cmds,
				tea.Println(errorMsgStyle.Render(fmt.Sprintf("  ✗ %v", msg.err))),
				tea.Println(dimStyle.Render("    A fallback response was committed to the conversation.")),
			)
		}
		return m, tea.Batch(cmds...)

	// ── Conversation feed ─────────────────────────────────────────────
	case convChangedMsg:
		if m.convCh != nil {
			cmds = append(cmds, waitForConvChange(m.convCh))
		}
		if m.replayPending && m.subs != nil && !m.subs.Loading() {
			m.replayPending = false
			cmds = append(cmds, m.renderReplay())
		}
		return m, tea.Batch(cmds...)

	case convAttachedMsg:
		m.replayPending = true
		cmds = append(cmds, tea.Println(successMsgStyle.Render("  ✓ Conversation: "+truncateID(msg.id))))
		return m, tea.Batch(cmds...)

	case convAttachErrMsg:
		cmds = append(cmds, tea.Println(errorMsgStyle.Render(fmt.Sprintf("  ✗ Could not open conversation: %v", msg.err))))
		return m, tea.Batch(cmds...)

	// ── Login result ──────────────────────────────────────────────────
	case loginResultMsg:
		return m.handleLoginResult(msg)

	// ── Async results ─────────────────────────────────────────────────
	case conversationsLoadedMsg:
		return m.handleConversationsLoaded(msg)
	}

	// Update sub-components
	var cmd tea.Cmd

	if m.mode != modeStreaming {
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	m.spinner, cmd = m.spinner.Update(msg)
	cmds = append(cmds, cmd)

	// Track input changes to open/close the command menu
	newVal := m.input.Value()
	if newVal != m.lastInputVal {
		m.lastInputVal = newVal
		if m.historyIdx != -1 {
			if m.historyIdx < len(m.history) && m.history[m.historyIdx] != newVal {
				m.historyIdx = -1
				m.historySaved = ""
			}
		}
		if strings.HasPrefix(newVal, "/") {
			m.cmdMenuOpen = true
			m.cmdMenuIdx = 0
		} else {
			m.cmdMenuOpen = false
			m.cmdMenuIdx = 0
		}
	}

	return m, tea.Batch(cmds...)
}

// ─── View ───────────────────────────────────────────────────────────────────
//
// Inline mode: View() only shows the input prompt + hints.
// All output is printed above via tea.Println.

func (m model) View() string {
	if !m.ready {
		return ""
	}

	var s strings.Builder

	if m.mode == modeStreaming {
		s.WriteString(m.spinner.View() + " " + statusStyle.Render("Thinking..."))
	} else {
		s.WriteString(m.input.View())
	}
	s.WriteString("\n")

	sepWidth := min(m.width, 80)
	if sepWidth < 20 {
		sepWidth = 20
	}
	s.WriteString(separatorStyle.Render(strings.Repeat("─", sepWidth)))
	s.WriteString("\n")

	s.WriteString(m.renderHints())

	return s.String()
}

// ─── Hint bar ───────────────────────────────────────────────────────────────

func (m model) renderHints() string {
	if m.mode == modeStreaming {
		return hintBarStyle.Render("  Esc stop watching")
	}

	if m.mode == modeLoginURL || m.mode == modeLoginUser || m.mode == modeLoginPass {
		return hintBarStyle.Render("  Enter submit   Esc cancel")
	}

	if m.cmdMenuOpen {
		val := m.input.Value()
		matches := matchCommands(val)
		if len(matches) > 0 {
			return m.renderCommandMenu(matches)
		}
	}

	return hintBarStyle.Render("  ? for help")
}

// renderCommandMenu renders a vertical list of matching commands.
func (m model) renderCommandMenu(matches []slashCmd) string {
	maxLen := 0
	for _, c := range matches {
		if len(c.name) > maxLen {
			maxLen = len(c.name)
		}
	}

	var lines []string
	for i, c := range matches {
		padded := c.name
		for len(padded) < maxLen {
			padded += " "
		}

		var line string
		if i == m.cmdMenuIdx {
			line = "  " + cmdSelectedNameStyle.Render(padded) + "  " + cmdSelectedDescStyle.Render(c.desc)
		} else {
			line = "  " + cmdNameStyle.Render(padded) + "  " + cmdDescStyle.Render(c.desc)
		}
		lines = append(lines, line)
	}

	lines = append(lines, hintBarStyle.Render("  ↑↓ navigate  Tab/Enter select"))

	return strings.Join(lines, "\n")
}

// matchCommands returns all slash commands matching a prefix.
func matchCommands(prefix string) []slashCmd {
	prefix = strings.ToLower(prefix)
	if prefix == "/" {
		return slashCommands
	}
	var matches []slashCmd
	for _, c := range slashCommands {
		if strings.HasPrefix(c.name, prefix) {
			matches = append(matches, c)
		}
	}
	return matches
}

// ─── Streaming helpers ──────────────────────────────────────────────────────

// stopPump abandons the live pump so the background submission drains and
// the session frees itself.
func (m *model) stopPump() {
	if m.pump != nil {
		m.pump.stop()
		m.pump = nil
	}
}

func (m *model) resetStreamState() {
	m.printedLen = 0
	m.lineBuffer = ""
	m.streamPrompt = ""
}

// handleVisible prints the part of the visible projection we haven't shown
// yet, holding back the trailing partial line until its newline arrives.
func (m *model) handleVisible(visible string) tea.Cmd {
	if len(visible) <= m.printedLen {
		return nil
	}
	newText := visible[m.printedLen:]
	m.printedLen = len(visible)

	combined := m.lineBuffer + newText
	lines := strings.Split(combined, "\n")

	var printCmds []tea.Cmd
	for i, line := range lines {
		if i < len(lines)-1 {
			printCmds = append(printCmds, tea.Println("  "+line))
		} else {
			m.lineBuffer = line
		}
	}

	if len(printCmds) > 0 {
		return tea.Sequence(printCmds...)
	}
	return nil
}

// renderReplay prints the active conversation's committed turns.
func (m *model) renderReplay() tea.Cmd {
	turns := m.subs.Turns()

	var printCmds []tea.Cmd
	printCmds = append(printCmds, tea.Println(""))

	if len(turns) == 0 {
		printCmds = append(printCmds, tea.Println(dimStyle.Render("  (empty conversation)")), tea.Println(""))
		return tea.Sequence(printCmds...)
	}

	width := m.width - 4
	if width > 76 {
		width = 76
	}

	for _, t := range turns {
		switch t.Sender {
		case conv.SenderUser:
			printCmds = append(printCmds, tea.Println(userPromptStyle.Render("  ❯ "+t.Text)))
		case conv.SenderAI:
			for _, line := range strings.Split(renderMarkdown(t.Text, width), "\n") {
				printCmds = append(printCmds, tea.Println("  "+line))
			}
		}
		printCmds = append(printCmds, tea.Println(""))
	}

	return tea.Sequence(printCmds...)
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func serverStr(cfg *config.Config) string {
	if cfg == nil {
		return ""
	}
	return cfg.Server
}

func conversationStr(cfg *config.Config) string {
	if cfg == nil {
		return ""
	}
	return cfg.Conversation
}

func truncateID(s string) string {
	if len(s) > 20 {
		return s[:8] + "..." + s[len(s)-4:]
	}
	return s
}
