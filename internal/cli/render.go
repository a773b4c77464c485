package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"fidoochat/internal/domain"
)

const defaultWidth = 72

var (
	// Styles
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	authorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	mineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Align(lipgloss.Right)

	timeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	emptyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42")).
		Bold(true)
)

// renderFeed draws the feed oldest first. Messages whose author label is
// me are right-aligned without a label.
func renderFeed(f domain.Feed, me string, width int) string {
	if f.Len() == 0 {
		return emptyStyle.Render("No hay mensajes aún...")
	}

	var b strings.Builder
	for i, m := range f {
		if i > 0 {
			b.WriteByte('\n')
		}
		stamp := ""
		if !m.CreatedAt.IsZero() {
			stamp = timeStyle.Render(m.CreatedAt.Local().Format("15:04"))
		}

		if me != "" && m.AuthorLabel == me {
			b.WriteString(mineStyle.Width(width).Render(m.Text + " " + stamp))
			continue
		}
		fmt.Fprintf(&b, "%s %s %s", authorStyle.Render(m.AuthorLabel+":"), m.Text, stamp)
	}
	return b.String()
}

func printFeed(w io.Writer, f domain.Feed, me string) {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%d mensajes", f.Len())))
	fmt.Fprintln(w, renderFeed(f, me, terminalWidth()))
}

func terminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return defaultWidth
}
