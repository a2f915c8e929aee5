package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
)

// ─── Welcome Screen ─────────────────────────────────────────────────────────

func renderWelcome(version, server, conversation string, width int) string {
	titleLine := logoTitleStyle.Render("Loom") + " " + versionStyle.Render("v"+version)

	var infoLine string
	if server == "" {
		infoLine = welcomeHintStyle.Render("Type /login to get started")
	} else {
		serverDisplay := server
		if len(serverDisplay) > 40 {
			serverDisplay = serverDisplay[:37] + "..."
		}
		convDisplay := dimStyle.Render("no conversation")
		if conversation != "" {
			convDisplay = conversation
			if len(convDisplay) > 36 {
				convDisplay = convDisplay[:33] + "..."
			}
		}
		infoLine = welcomeInfoLabel.Render(fmt.Sprintf("%s · %s", serverDisplay, convDisplay))
	}

	logo := renderLoomASCIIArt()
	return fmt.Sprintf("\n%s\n\n%s\n%s\n", logo, titleLine, infoLine)
}

const loomASCIIArt = `
      ╔═══════════════════════════╗
      ║ │ │ │ │ │ │ │ │ │ │ │ │ │ ║
      ║─┼─┼─┼─┼─+++++─┼─┼─┼─┼─┼─┼─║
      ║ │ │ │ +++ │ +++ │ │ │ │ │ ║
      ║─┼─┼─+++─┼─┼─┼─+++─┼─┼─┼─┼─║
      ║ │ │ +++ │ │ │ +++ │ │ │ │ ║
      ║─┼─┼─┼─+++─┼─+++─┼─┼─┼─┼─┼─║
      ║ │ │ │ │ +++++ │ │ │ │ │ │ ║
      ║─┼─┼─┼─┼─┼─+─┼─┼─┼─┼─┼─┼─┼─║
      ║ │ │ │ │ │ │ │ │ │ │ │ │ │ ║
      ╚═══════════════════════════╝
`

func renderLoomASCIIArt() string {
	lines := strings.Split(loomASCIIArt, "\n")
	lines = trimEmptyEdgeLines(lines)

	minIndent := -1
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		indent := countLeadingSpaces(line)
		if minIndent == -1 || indent < minIndent {
			minIndent = indent
		}
	}

	for i, line := range lines {
		line = strings.TrimRight(line, " ")
		if minIndent > 0 && len(line) >= minIndent {
			line = line[minIndent:]
		}
		lines[i] = colorizeLoomLine(line)
	}

	return strings.Join(lines, "\n")
}

func trimEmptyEdgeLines(lines []string) []string {
	start := 0
	for start < len(lines) && strings.TrimSpace(lines[start]) == "" {
		start++
	}

	end := len(lines)
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return lines[start:end]
}

func countLeadingSpaces(s string) int {
	i := 0
	for i < len(s) && s[i] == ' ' {
		i++
	}
	return i
}

// colorizeLoomLine renders warp/frame characters dim and the woven thread
// (the + runs) in the accent color.
func colorizeLoomLine(line string) string {
	const (
		stylePlain = iota
		styleFrame
		styleThread
	)

	styleFor := func(r rune) int {
		switch r {
		case '+':
			return styleThread
		case '║', '╔', '╗', '╚', '╝', '═', '│', '┼', '─':
			return styleFrame
		default:
			return stylePlain
		}
	}

	render := func(style int, s string) string {
		switch style {
		case styleFrame:
			return logoFrameStyle.Render(s)
		case styleThread:
			return logoThreadStyle.Render(s)
		default:
			return s
		}
	}

	var out strings.Builder
	var run strings.Builder
	currentStyle := stylePlain
	first := true

	flush := func() {
		if run.Len() == 0 {
			return
		}
		out.WriteString(render(currentStyle, run.String()))
		run.Reset()
	}

	for _, r := range line {
		nextStyle := styleFor(r)
		if first {
			currentStyle = nextStyle
			first = false
		} else if nextStyle != currentStyle {
			flush()
			currentStyle = nextStyle
		}
		run.WriteRune(r)
	}

	flush()
	return out.String()
}

// ─── Markdown ───────────────────────────────────────────────────────────────

// renderMarkdown renders committed response text for replay views. Falls back
// to the raw text when the renderer cannot be constructed.
func renderMarkdown(text string, width int) string {
	if width < 20 {
		width = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return text
	}
	out, err := r.Render(text)
	if err != nil {
		return text
	}
	return strings.Trim(out, "\n")
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
