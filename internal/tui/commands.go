package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"loom-cli/internal/api"
	"loom-cli/internal/chat"
	"loom-cli/internal/config"
)

// ─── Input dispatcher ───────────────────────────────────────────────────────

func (m model) dispatchInput(input string) (tea.Model, tea.Cmd) {
	if input == "?" {
		return m.cmdHelp()
	}
	if strings.HasPrefix(input, "/") {
		return m.dispatchCommand(input)
	}
	// Default: treat as a chat prompt
	return m.cmdAsk(input)
}

func (m model) dispatchCommand(input string) (tea.Model, tea.Cmd) {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return m, nil
	}

	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "/help", "/h":
		return m.cmdHelp()
	case "/login":
		return m.cmdLogin(args)
	case "/conversations":
		return m.cmdConversations()
	case "/switch":
		return m.cmdSwitch(args)
	case "/new":
		return m.cmdNew()
	case "/config":
		return m.cmdConfig()
	case "/set":
		return m.cmdSet(args)
	case "/clear":
		return m.cmdClear()
	case "/quit", "/exit", "/q":
		return m, tea.Quit
	default:
		return m, tea.Println(errorMsgStyle.Render(fmt.Sprintf("  ✗ Unknown command: %s — type /help", cmd)))
	}
}

// ─── /help ──────────────────────────────────────────────────────────────────

func (m model) cmdHelp() (tea.Model, tea.Cmd) {
	pad := func(s string, w int) string {
		for len(s) < w {
			s += " "
		}
		return s
	}

	lines := []tea.Cmd{
		tea.Println(""),
		tea.Println(dimStyle.Render("  Shortcuts:")),
		tea.Println(""),
		tea.Println("  " + pad(hintKeyStyle.Render("/login <url>"), 34) + dimStyle.Render("Login to a Loom server")),
		tea.Println("  " + pad(hintKeyStyle.Render("/conversations"), 34) + dimStyle.Render("List conversations on the server")),
		tea.Println("  " + pad(hintKeyStyle.Render("/switch <id>"), 34) + dimStyle.Render("Switch to another conversation")),
		tea.Println("  " + pad(hintKeyStyle.Render("/new"), 34) + dimStyle.Render("Start a fresh conversation")),
		tea.Println("  " + pad(hintKeyStyle.Render("/set model <name>"), 34) + dimStyle.Render("Pick the generation model")),
		tea.Println("  " + pad(hintKeyStyle.Render("/config"), 34) + dimStyle.Render("Show current configuration")),
		tea.Println("  " + pad(hintKeyStyle.Render("/clear"), 34) + dimStyle.Render("Clear the screen")),
		tea.Println("  " + pad(hintKeyStyle.Render("/quit"), 34) + dimStyle.Render("Exit Loom")),
		tea.Println(""),
		tea.Println(dimStyle.Render("  Or just type a message to chat!")),
		tea.Println(""),
	}
	return m, tea.Sequence(lines...)
}

// ─── /login ─────────────────────────────────────────────────────────────────

func (m model) cmdLogin(args []string) (tea.Model, tea.Cmd) {
	if len(args) > 0 {
		m.loginURL = args[0]
		m.mode = modeLoginUser
		m.input.Placeholder = "Username / Email..."
		m.input.SetValue("")
		return m, tea.Println(dimStyle.Render(fmt.Sprintf("  Logging in to %s", m.loginURL)))
	}

	m.mode = modeLoginURL
	m.input.Placeholder = "Server URL (e.g. http://localhost:8080)..."
	m.input.SetValue("")
	return m, tea.Println(dimStyle.Render("  Enter the Loom server URL:"))
}

func (m model) handleLoginURLSubmit(value string) (tea.Model, tea.Cmd) {
	m.loginURL = value
	m.mode = modeLoginUser
	m.input.Placeholder = "Username / Email..."
	m.input.SetValue("")
	return m, tea.Sequence(
		tea.Println(dimStyle.Render(fmt.Sprintf("  Server: %s", value))),
		tea.Println(dimStyle.Render("  Enter your username/email:")),
	)
}

func (m model) handleLoginUserSubmit(value string) (tea.Model, tea.Cmd) {
	m.loginUser = value
	m.mode = modeLoginPass
	m.input.Placeholder = "Password..."
	m.input.SetValue("")
	m.input.EchoCharacter = '•'
	m.input.EchoMode = textinput.EchoPassword
	return m, tea.Sequence(
		tea.Println(dimStyle.Render(fmt.Sprintf("  User: %s", value))),
		tea.Println(dimStyle.Render("  Enter your password:")),
	)
}

type loginResultMsg struct {
	cfg *config.Config
	err error
}

func (m model) handleLoginPassSubmit(value string) (tea.Model, tea.Cmd) {
	password := value
	m.input.EchoMode = textinput.EchoNormal
	m.input.SetValue("")
	m.input.Placeholder = "Authenticating..."

	serverURL := strings.TrimRight(m.loginURL, "/")
	username := m.loginUser
	profile := m.profile

	return m, tea.Sequence(
		tea.Println(statusStyle.Render("  ⟳ Authenticating...")),
		func() tea.Msg {
			client := api.NewClientWithServer(serverURL)

			loginResp, err := client.Login(username, password)
			if err != nil {
				return loginResultMsg{err: fmt.Errorf("authentication failed: %w", err)}
			}

			cfg, err := config.Load(profile)
			if err != nil {
				return loginResultMsg{err: err}
			}

			cfg.Server = serverURL
			cfg.Username = username
			cfg.Token = loginResp.AccessToken

			if err := cfg.Save(); err != nil {
				return loginResultMsg{err: err}
			}

			return loginResultMsg{cfg: cfg}
		},
	)
}

func (m model) handleLoginResult(msg loginResultMsg) (tea.Model, tea.Cmd) {
	m.mode = modeIdle
	m.input.Placeholder = "Ask anything or type /help..."

	if msg.err != nil {
		return m, tea.Println(errorMsgStyle.Render(fmt.Sprintf("  ✗ %v", msg.err)))
	}

	m.cfg = msg.cfg
	m.connect()

	cmds := []tea.Cmd{
		tea.Println(successMsgStyle.Render("  ✓ Logged in successfully!")),
		tea.Println(dimStyle.Render(fmt.Sprintf("    Server: %s", m.cfg.Server))),
		tea.Println(dimStyle.Render(fmt.Sprintf("    User: %s", m.cfg.Username))),
		tea.Println(""),
		waitForConvChange(m.convCh),
	}
	if m.cfg.Conversation != "" {
		cmds = append(cmds, attachConversation(m.subs, m.cfg.Conversation, m.identity()))
	} else {
		cmds = append(cmds, tea.Println(dimStyle.Render("    Next: just type a message, or /switch to an existing conversation")))
	}

	m.loginURL = ""
	m.loginUser = ""
	return m, tea.Batch(cmds...)
}

// ─── /config ────────────────────────────────────────────────────────────────

func (m model) cmdConfig() (tea.Model, tea.Cmd) {
	if m.cfg == nil {
		return m, tea.Println(warnMsgStyle.Render("  ! No configuration found. Run /login first."))
	}

	val := func(s string) string {
		if s == "" {
			return dimStyle.Render("(not set)")
		}
		return s
	}
	token := dimStyle.Render("(not set)")
	if m.cfg.Token != "" {
		end := 12
		if len(m.cfg.Token) < end {
			end = len(m.cfg.Token)
		}
		token = m.cfg.Token[:end] + "..."
	}

	return m, tea.Sequence(
		tea.Println(""),
		tea.Println(dimStyle.Render("  Configuration:")),
		tea.Println(fmt.Sprintf("    Profile:      %s", config.ProfileName(m.profile))),
		tea.Println(fmt.Sprintf("    Server:       %s", val(m.cfg.Server))),
		tea.Println(fmt.Sprintf("    User:         %s", val(m.cfg.Username))),
		tea.Println(fmt.Sprintf("    Model:        %s", m.cfg.ModelName())),
		tea.Println(fmt.Sprintf("    Conversation: %s", val(m.cfg.Conversation))),
		tea.Println(fmt.Sprintf("    Token:        %s", token)),
		tea.Println(""),
	)
}

// ─── /conversations ─────────────────────────────────────────────────────────

type conversationsLoadedMsg struct {
	conversations []api.ConversationInfo
	err           error
}

func (m model) cmdConversations() (tea.Model, tea.Cmd) {
	if m.client == nil {
		return m, tea.Println(errorMsgStyle.Render("  ✗ Not logged in. Run /login first."))
	}

	client := m.client

	return m, tea.Sequence(
		tea.Println(statusStyle.Render("  ⟳ Loading conversations...")),
		func() tea.Msg {
			resp, err := client.ListConversations()
			if err != nil {
				return conversationsLoadedMsg{err: err}
			}
			return conversationsLoadedMsg{conversations: resp.Conversations}
		},
	)
}

func (m model) handleConversationsLoaded(msg conversationsLoadedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		return m, tea.Println(errorMsgStyle.Render(fmt.Sprintf("  ✗ Failed to load conversations: %v", msg.err)))
	}

	if len(msg.conversations) == 0 {
		return m, tea.Println(warnMsgStyle.Render("  ! No conversations found. /new starts one."))
	}

	active := ""
	if m.subs != nil {
		active = m.subs.ActiveID()
	}

	var cmds []tea.Cmd
	cmds = append(cmds,
		tea.Println(""),
		tea.Println(dimStyle.Render(fmt.Sprintf("  Conversations (%d):", len(msg.conversations)))),
		tea.Println(""),
	)

	for _, c := range msg.conversations {
		title := c.Title
		if title == "" {
			title = "(untitled)"
		}
		marker := " "
		if c.ID == active {
			marker = successMsgStyle.Render("●")
		}
		cmds = append(cmds,
			tea.Println(fmt.Sprintf("  %s %s", marker, title)),
			tea.Println(dimStyle.Render(fmt.Sprintf("    %s  %d turns", c.ID, c.TurnCount))),
		)
	}

	cmds = append(cmds,
		tea.Println(""),
		tea.Println(dimStyle.Render("  Tip: /switch <id> to continue one of them")),
		tea.Println(""),
	)

	return m, tea.Sequence(cmds...)
}

// ─── /switch and /new ───────────────────────────────────────────────────────

type convAttachedMsg struct {
	id string
}

type convAttachErrMsg struct {
	err error
}

// attachConversation binds the live feed to a conversation off the UI
// goroutine; Subscribe opens a network stream.
func attachConversation(subs *chat.SubscriptionManager, id string, identity chat.Identity) tea.Cmd {
	return func() tea.Msg {
		if err := subs.SetActive(id, identity); err != nil {
			return convAttachErrMsg{err: err}
		}
		return convAttachedMsg{id: id}
	}
}

func (m model) cmdSwitch(args []string) (tea.Model, tea.Cmd) {
	if m.subs == nil {
		return m, tea.Println(errorMsgStyle.Render("  ✗ Not logged in. Run /login first."))
	}
	if len(args) == 0 {
		active := m.subs.ActiveID()
		if active != "" {
			return m, tea.Println(dimStyle.Render(fmt.Sprintf("  Active conversation: %s", active)))
		}
		return m, tea.Println(dimStyle.Render("  Usage: /switch <conversation-id>"))
	}

	id := args[0]
	m.cfg.Conversation = id
	if err := m.cfg.Save(); err != nil {
		return m, tea.Println(errorMsgStyle.Render(fmt.Sprintf("  ✗ Failed to save config: %v", err)))
	}

	return m, tea.Sequence(
		tea.Println(statusStyle.Render("  ⟳ Switching conversation...")),
		attachConversation(m.subs, id, m.identity()),
	)
}

func (m model) cmdNew() (tea.Model, tea.Cmd) {
	if m.subs == nil {
		return m, tea.Println(errorMsgStyle.Render("  ✗ Not logged in. Run /login first."))
	}

	id := uuid.NewString()
	m.cfg.Conversation = id
	if err := m.cfg.Save(); err != nil {
		return m, tea.Println(errorMsgStyle.Render(fmt.Sprintf("  ✗ Failed to save config: %v", err)))
	}

	return m, tea.Sequence(
		tea.Println(statusStyle.Render("  ⟳ Starting a fresh conversation...")),
		attachConversation(m.subs, id, m.identity()),
	)
}

// ─── /set ───────────────────────────────────────────────────────────────────

func (m model) cmdSet(args []string) (tea.Model, tea.Cmd) {
	if len(args) < 2 {
		return m, tea.Sequence(
			tea.Println(""),
			tea.Println(dimStyle.Render("  Usage: /set <model|conversation|server> <value>")),
			tea.Println(""),
		)
	}
	if m.cfg == nil {
		return m, tea.Println(errorMsgStyle.Render("  ✗ Not logged in. Run /login first."))
	}

	key := strings.ToLower(args[0])
	value := args[1]

	switch key {
	case "model":
		m.cfg.Model = value
	case "conversation":
		return m.cmdSwitch([]string{value})
	case "server":
		m.cfg.Server = value
	default:
		return m, tea.Println(errorMsgStyle.Render(fmt.Sprintf("  ✗ Unknown key: %s (valid: model, conversation, server)", key)))
	}

	if err := m.cfg.Save(); err != nil {
		return m, tea.Println(errorMsgStyle.Render(fmt.Sprintf("  ✗ Failed to save config: %v", err)))
	}
	if m.cfg.Server != "" && m.cfg.Token != "" {
		m.connect()
	}
	return m, tea.Println(successMsgStyle.Render(fmt.Sprintf("  ✓ %s set to %s", key, value)))
}

// ─── /clear ─────────────────────────────────────────────────────────────────

func (m model) cmdClear() (tea.Model, tea.Cmd) {
	return m, tea.ClearScreen
}

// ─── Chat submission ────────────────────────────────────────────────────────

func (m model) cmdAsk(prompt string) (tea.Model, tea.Cmd) {
	if m.sess == nil {
		return m, tea.Println(errorMsgStyle.Render("  ✗ Not logged in. Type /login to get started."))
	}

	m.mode = modeStreaming
	m.resetStreamState()
	m.streamPrompt = prompt

	header := []tea.Cmd{
		tea.Println(""),
		tea.Println(userPromptStyle.Render("  ❯ " + prompt)),
		tea.Println(""),
	}

	// No conversation yet: create one, attach off the UI goroutine, and let
	// Update start the pump when chatReadyMsg comes back. The pump itself is
	// only ever created and read on the UI goroutine.
	if m.subs.ActiveID() == "" {
		id := uuid.NewString()
		m.cfg.Conversation = id
		_ = m.cfg.Save()

		subs := m.subs
		identity := m.identity()

		return m, tea.Sequence(append(header, func() tea.Msg {
			if err := subs.SetActive(id, identity); err != nil {
				return streamErrMsg{err: err}
			}
			return chatReadyMsg{prompt: prompt}
		})...)
	}

	pump, cmd := beginChat(m.sess, prompt)
	m.pump = pump
	return m, tea.Sequence(append(header, cmd)...)
}
