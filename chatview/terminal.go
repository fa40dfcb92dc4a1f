// Package chatview is a terminal front end for a chat session.
package chatview

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/abhirockzz/ele-chat/assistant"
	"github.com/abhirockzz/ele-chat/conversation"
)

const (
	colorReset = "\033[0m"
	colorBold  = "\033[1m"
	colorDim   = "\033[2m"
	colorGreen = "\033[32m"
	colorCyan  = "\033[36m"
)

const defaultWidth = 80

// Terminal reads one line per submission and prints each answer as rendered markdown.
type Terminal struct {
	session  *conversation.Session
	in       io.Reader
	out      io.Writer
	color    bool
	renderer *glamour.TermRenderer
}

// New builds a Terminal. Colors and terminal styling are used only when out is a terminal.
func New(session *conversation.Session, in io.Reader, out io.Writer) (*Terminal, error) {
	width, tty := terminalSize(out)

	style := glamour.WithStandardStyle("notty")
	if tty {
		style = glamour.WithAutoStyle()
	}
	renderer, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width-4))
	if err != nil {
		return nil, fmt.Errorf("error creating markdown renderer: %w", err)
	}

	return &Terminal{session: session, in: in, out: out, color: tty, renderer: renderer}, nil
}

func terminalSize(out io.Writer) (int, bool) {
	f, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return defaultWidth, false
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return defaultWidth, true
	}
	return width, true
}

// Run loops until the input ends, ctx is cancelled or the user types /exit.
func (t *Terminal) Run(ctx context.Context) error {
	logger := zerolog.Ctx(ctx)

	unsubscribe := t.session.Store().Subscribe(func(h conversation.History) {
		if last, ok := h.Last(); ok && last.Role == assistant.RoleAssistant {
			t.printAnswer(last.Content)
		}
	})
	defer unsubscribe()

	t.printAnswer(t.session.Latest())

	scanner := bufio.NewScanner(t.in)
	for {
		t.printf("\n%s%s>%s ", colorBold, colorGreen, colorReset)
		if !scanner.Scan() {
			return scanner.Err()
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		}

		t.printf("%s%s%s\n", colorDim, conversation.PendingText, colorReset)

		if _, err := t.session.Submit(ctx, line); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			// history is left as it was, the user can simply retry
			logger.Error().Err(err).Msg("no answer for this message")
		}
	}
}

func (t *Terminal) printAnswer(content string) {
	rendered, err := t.renderer.Render(content)
	if err != nil {
		rendered = content + "\n"
	}
	t.printf("\n%s%sEle says:%s\n%s", colorBold, colorCyan, colorReset, rendered)
}

func (t *Terminal) printf(format string, args ...any) {
	if !t.color {
		format = stripColors(format)
	}
	fmt.Fprintf(t.out, format, args...)
}

var colorReplacer = strings.NewReplacer(colorReset, "", colorBold, "", colorDim, "", colorGreen, "", colorCyan, "")

func stripColors(format string) string {
	return colorReplacer.Replace(format)
}
