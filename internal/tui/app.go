package tui

import (
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
)

// Run launches the interactive TUI. The app renders inline: committed output
// scrolls above the prompt via tea.Println.
func Run(version, profile string) error {
	m := initialModel(version, profile, newLogger())

	p := tea.NewProgram(m)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	if m.subs != nil {
		m.subs.Close()
	}

	return nil
}

// newLogger writes structured logs to ~/.loom/tui.log. Stdout belongs to
// Bubble Tea, so logging falls back to a no-op when the file can't be opened.
func newLogger() zerolog.Logger {
	home, err := os.UserHomeDir()
	if err != nil {
		return zerolog.Nop()
	}
	dir := filepath.Join(home, ".loom")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return zerolog.Nop()
	}
	f, err := os.OpenFile(filepath.Join(dir, "tui.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return zerolog.Nop()
	}
	return zerolog.New(f).With().Timestamp().Logger()
}
