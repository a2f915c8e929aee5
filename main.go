package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"loom-cli/internal/api"
	"loom-cli/internal/chat"
	"loom-cli/internal/config"
	"loom-cli/internal/conv"
	"loom-cli/internal/display"
	"loom-cli/internal/tui"
)

const version = "0.1.0"

var activeProfile string

func main() {
	args := os.Args[1:]

	// Parse global flags first (--profile)
	args = parseGlobalFlags(args)

	// No args → launch interactive mode (default)
	if len(args) == 0 {
		if err := tui.Run(version, activeProfile); err != nil {
			display.Error(err.Error())
			os.Exit(1)
		}
		return
	}

	// Explicit -i flag also launches interactive mode
	if args[0] == "-i" || args[0] == "--interactive" || args[0] == "interactive" {
		if err := tui.Run(version, activeProfile); err != nil {
			display.Error(err.Error())
			os.Exit(1)
		}
		return
	}

	var err error

	switch args[0] {
	case "login":
		err = cmdLogin(args[1:])
	case "set":
		err = cmdSet(args[1:])
	case "config":
		err = cmdConfig()
	case "ask", "chat":
		err = cmdAsk(args[1:])
	case "conversations":
		err = cmdConversations()
	case "profiles":
		err = cmdProfiles()
	case "help", "--help", "-h":
		printUsage()
	case "version", "--version", "-v":
		fmt.Printf("loom %s\n", version)
	default:
		display.Error(fmt.Sprintf("Unknown command: %s", args[0]))
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		display.Error(err.Error())
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	level := zerolog.WarnLevel
	if os.Getenv("LOOM_DEBUG") != "" {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}

// ─── login ──────────────────────────────────────────────────────────────────

func cmdLogin(args []string) error {
	var username, password string
	var positional []string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-u", "--username":
			if i+1 < len(args) {
				i++
				username = args[i]
			} else {
				return fmt.Errorf("--username requires a value")
			}
		case "-p", "--password":
			if i+1 < len(args) {
				i++
				password = args[i]
			} else {
				return fmt.Errorf("--password requires a value")
			}
		default:
			positional = append(positional, args[i])
		}
	}

	if len(positional) == 0 {
		fmt.Println("Usage: loom login <url> -u <username> -p <password>")
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  loom login http://localhost:8080 -u user@company.com -p pass")
		return nil
	}

	serverURL := strings.TrimRight(positional[0], "/")

	if username == "" {
		fmt.Print("Username/Email: ")
		fmt.Scanln(&username)
	}
	if password == "" {
		fmt.Print("Password: ")
		fmt.Scanln(&password)
	}

	if username == "" || password == "" {
		return fmt.Errorf("username and password are required")
	}

	fmt.Println()
	display.Spinner("Authenticating...")

	client := api.NewClientWithServer(serverURL)
	loginResp, err := client.Login(username, password)
	if err != nil {
		display.ClearLine()
		return fmt.Errorf("authentication failed: %w", err)
	}

	display.ClearLine()
	display.Success("Authenticated successfully")

	cfg, err := config.Load(activeProfile)
	if err != nil {
		return err
	}

	cfg.Server = serverURL
	cfg.Username = username
	cfg.Token = loginResp.AccessToken

	if err := cfg.Save(); err != nil {
		return err
	}

	display.Info("Server:", serverURL)
	display.Info("User:", username)
	display.Info("Model:", cfg.ModelName())

	pf := ""
	if activeProfile != "" {
		pf = " --profile " + activeProfile
	}

	fmt.Println()
	fmt.Printf("  %sNext:%s Run %sloom%s ask \"<question>\"%s to start chatting.\n\n",
		display.Dim, display.Reset, display.Cyan, pf, display.Reset)

	return nil
}

// ─── set ────────────────────────────────────────────────────────────────────

func cmdSet(args []string) error {
	if len(args) < 2 {
		fmt.Println("Usage: loom set <key> <value>")
		fmt.Println()
		fmt.Println("Keys:")
		fmt.Println("  server        Loom server URL  (e.g. http://server:8080)")
		fmt.Println("  model         Generation model name")
		fmt.Println("  conversation  Active conversation ID")
		fmt.Println("  token         JWT authentication token")
		return nil
	}

	cfg, err := config.Load(activeProfile)
	if err != nil {
		return err
	}

	key, value := args[0], args[1]

	switch key {
	case "server":
		cfg.Server = value
	case "model":
		cfg.Model = value
	case "conversation":
		cfg.Conversation = value
	case "token":
		cfg.Token = value
	default:
		return fmt.Errorf("unknown config key: %s (valid: server, model, conversation, token)", key)
	}

	if err := cfg.Save(); err != nil {
		return err
	}

	display.Success(fmt.Sprintf("%s set to %s", key, value))
	return nil
}

// ─── config ─────────────────────────────────────────────────────────────────

func cmdConfig() error {
	cfg, err := config.Load(activeProfile)
	if err != nil {
		return err
	}

	display.Header("Loom Configuration")

	display.Info("Profile:", config.ProfileName(activeProfile))

	server := cfg.Server
	if server == "" {
		server = display.Dim + "(not set)" + display.Reset
	}
	display.Info("Server:", server)

	username := cfg.Username
	if username == "" {
		username = display.Dim + "(not set)" + display.Reset
	}
	display.Info("User:", username)

	display.Info("Model:", cfg.ModelName())

	conversation := cfg.Conversation
	if conversation == "" {
		conversation = display.Dim + "(none)" + display.Reset
	}
	display.Info("Conversation:", conversation)

	token := display.Dim + "(not set)" + display.Reset
	if cfg.Token != "" {
		end := 12
		if len(cfg.Token) < end {
			end = len(cfg.Token)
		}
		token = cfg.Token[:end] + "..."
	}
	display.Info("Token:", token)
	fmt.Println()

	return nil
}

// ─── ask ────────────────────────────────────────────────────────────────────

func cmdAsk(args []string) error {
	var conversationID string
	var positional []string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-c", "--conversation":
			if i+1 < len(args) {
				i++
				conversationID = args[i]
			} else {
				return fmt.Errorf("--conversation requires a value")
			}
		default:
			positional = append(positional, args[i])
		}
	}

	if len(positional) == 0 {
		fmt.Println("Usage: loom ask <question> [--conversation <id>]")
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println(`  loom ask "What is a monad?"`)
		fmt.Println(`  loom ask "Tell me more" --conversation <id>`)
		return nil
	}
	prompt := strings.Join(positional, " ")

	cfg, err := config.Load(activeProfile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if conversationID == "" {
		conversationID = cfg.Conversation
	}
	if conversationID == "" {
		conversationID = uuid.NewString()
		fmt.Println()
		display.Success(fmt.Sprintf("New conversation: %s", conversationID))
	} else {
		fmt.Println()
		display.Success(fmt.Sprintf("Continuing conversation: %s", conversationID))
	}

	cfg.Conversation = conversationID
	_ = cfg.Save()

	log := newLogger()
	client := api.NewClient(cfg)

	subs := chat.NewSubscriptionManager(client, log)
	defer subs.Close()

	firstSnapshot := make(chan struct{}, 1)
	subs.OnChange(func([]conv.Turn) {
		select {
		case firstSnapshot <- struct{}{}:
		default:
		}
	})

	if err := subs.SetActive(conversationID, chat.Identity{User: cfg.Username}); err != nil {
		return fmt.Errorf("opening conversation: %w", err)
	}

	// Give the feed a moment to deliver the current state so the transcript
	// tail can print; streaming works fine without it.
	select {
	case <-firstSnapshot:
	case <-time.After(2 * time.Second):
	}

	printTranscriptTail(subs.Turns())

	sess := chat.NewSession(client, client, subs, log)

	fmt.Println()
	fmt.Printf("  %s❯%s %s\n\n", display.Cyan, display.Reset, prompt)

	printed := 0
	err = sess.Submit(context.Background(), prompt, func(visible string) {
		if len(visible) > printed {
			fmt.Print(visible[printed:])
			printed = len(visible)
		}
	})
	fmt.Println()

	if err != nil {
		return fmt.Errorf("chat failed: %w", err)
	}

	fmt.Println()
	display.Success("Response committed")
	fmt.Printf("  %sTip:%s Run %sloom ask \"<follow-up>\"%s to continue this conversation.\n\n",
		display.Dim, display.Reset, display.Cyan, display.Reset)

	return nil
}

// printTranscriptTail shows the last few committed turns of the conversation
// being continued.
func printTranscriptTail(turns []conv.Turn) {
	if len(turns) == 0 {
		return
	}

	fmt.Println()
	display.SubHeader("  Recent turns")

	start := len(turns) - 4
	if start < 0 {
		start = 0
	}
	for _, t := range turns[start:] {
		fmt.Printf("  %s  %s\n", display.SenderLabel(string(t.Sender)), previewLine(t.Text))
	}
}

// previewLine reduces a turn to a single transcript line.
func previewLine(text string) string {
	if i := strings.Index(text, "\n"); i >= 0 {
		text = text[:i]
	}
	if len(text) > 80 {
		text = text[:77] + "..."
	}
	return text
}

// ─── conversations ──────────────────────────────────────────────────────────

func cmdConversations() error {
	cfg, err := config.Load(activeProfile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	client := api.NewClient(cfg)

	resp, err := client.ListConversations()
	if err != nil {
		return fmt.Errorf("listing conversations: %w", err)
	}

	display.Header(fmt.Sprintf("Conversations (%d)", len(resp.Conversations)))

	if len(resp.Conversations) == 0 {
		display.Warn("No conversations found.")
		return nil
	}

	for _, c := range resp.Conversations {
		title := c.Title
		if title == "" {
			title = display.Dim + "(untitled)" + display.Reset
		}

		marker := " "
		if c.ID == cfg.Conversation {
			marker = display.Green + "●" + display.Reset
		}

		fmt.Printf("\n  %s %s%s%s\n", marker, display.Bold, title, display.Reset)
		fmt.Printf("    %sID:%s      %s\n", display.Dim, display.Reset, c.ID)
		fmt.Printf("    %sTurns:%s   %d\n", display.Dim, display.Reset, c.TurnCount)
		if c.LastUpdate != "" {
			fmt.Printf("    %sUpdated:%s %s\n", display.Dim, display.Reset, display.FormatTime(c.LastUpdate))
		}
	}

	fmt.Println()
	fmt.Printf("  %sTip:%s Run %sloom set conversation <id>%s to continue one of them.\n\n",
		display.Dim, display.Reset, display.Cyan, display.Reset)

	return nil
}

// ─── profiles ───────────────────────────────────────────────────────────────

func cmdProfiles() error {
	profiles, err := config.ListProfiles()
	if err != nil {
		return err
	}

	display.Header(fmt.Sprintf("Profiles (%d)", len(profiles)))

	if len(profiles) == 0 {
		display.Warn("No profiles found.")
		return nil
	}

	for _, p := range profiles {
		marker := " "
		if p == config.ProfileName(activeProfile) {
			marker = display.Green + "●" + display.Reset
		}
		fmt.Printf("  %s %s\n", marker, p)
	}
	fmt.Println()

	return nil
}

// ─── helpers ────────────────────────────────────────────────────────────────

func parseGlobalFlags(args []string) []string {
	var remaining []string
	for i := 0; i < len(args); i++ {
		if args[i] == "--profile" {
			if i+1 < len(args) {
				i++
				activeProfile = args[i]
			}
			continue
		}
		remaining = append(remaining, args[i])
	}
	return remaining
}

// ─── usage ──────────────────────────────────────────────────────────────────

func printUsage() {
	fmt.Printf(`%sLoom%s — streaming chat for reasoning models (v%s)

%sUsage:%s
  loom                                             Launch interactive mode (default)
  loom [--profile <name>] <command> [arguments]    Run a specific command

%sGetting Started:%s
  login <url> -u <user> -p <pass>  Authenticate against a Loom server
  config                           Show current configuration

%sSettings:%s
  set server <url>          Override the server URL
  set model <name>          Pick the generation model
  set conversation <id>     Set the active conversation
  set token <jwt>           Manually set the auth token

%sChat:%s
  ask "<question>"          Send a prompt and stream the reply
    -c, --conversation <id>   Continue in an existing conversation

%sConversations:%s
  conversations             List conversations on the server

%sProfiles:%s
  profiles                  List all config profiles
  --profile <name>          Use a named config profile (default: unnamed)

%sExamples:%s
  loom                                             # Start interactive mode
  loom login http://localhost:8080 -u admin@company.com -p secret
  loom ask "What is a monad?"
  loom ask "Tell me more" -c <conversation-id>
  loom --profile staging login http://staging:8080 -u user -p pass

`, display.Bold, display.Reset, version,
		display.Cyan, display.Reset,
		display.Cyan, display.Reset,
		display.Cyan, display.Reset,
		display.Cyan, display.Reset,
		display.Cyan, display.Reset,
		display.Cyan, display.Reset,
		display.Cyan, display.Reset)
}
