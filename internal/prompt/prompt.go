// Package prompt asks the operator the two questions a run can need:
// what to do with a duplicate room title and whether to roll back.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/lherron/chatmig/internal/domain"
	"github.com/lherron/chatmig/internal/journal"
)

// ErrNoAnswer is returned when input ends before a valid answer.
var ErrNoAnswer = errors.New("no answer on input")

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69"))
	warnStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))

	DiffAddStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))  // green
	DiffRemStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")) // red
	DiffHunkStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))  // blue
	DiffHeaderStyle = lipgloss.NewStyle().Bold(true)
)

// Terminal reads answers line by line from in and writes questions to out.
type Terminal struct {
	in  *bufio.Reader
	out io.Writer
}

// New creates a Terminal prompt.
func New(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: bufio.NewReader(in), out: out}
}

func (t *Terminal) readLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	line, err := t.in.ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return "", err
		}
		if line == "" {
			return "", ErrNoAnswer
		}
	}
	return strings.ToLower(strings.TrimSpace(line)), nil
}

// OnDuplicate asks whether to migrate into a second room with an existing
// title or skip the source room. It repeats until it gets m or s.
func (t *Terminal) OnDuplicate(ctx context.Context, title string) (domain.Policy, error) {
	for {
		fmt.Fprintf(t.out, "%s %s\n", warnStyle.Render("Room already exists:"), titleStyle.Render(title))
		fmt.Fprint(t.out, helpStyle.Render("(m)igrate anyway or (s)kip? "))

		answer, err := t.readLine(ctx)
		if err != nil {
			return "", err
		}
		switch answer {
		case "m", "migrate":
			return domain.PolicyMigrateAnyway, nil
		case "s", "skip":
			return domain.PolicySkip, nil
		}
		fmt.Fprintf(t.out, "Unrecognized answer %q\n", answer)
	}
}

// ConfirmLeave lists the rooms and asks once whether identity should leave
// them. Anything but y or yes declines.
func (t *Terminal) ConfirmLeave(ctx context.Context, identity string, rooms []journal.Room) (bool, error) {
	fmt.Fprintf(t.out, "%s\n", titleStyle.Render(fmt.Sprintf("%d room(s) recorded in the journal:", len(rooms))))
	for _, r := range rooms {
		fmt.Fprintf(t.out, "  %s %s\n", r.Title, helpStyle.Render("("+r.ID+")"))
	}
	fmt.Fprintf(t.out, "%s ", warnStyle.Render(fmt.Sprintf("Leave all of them as %s? [y/N]", identity)))

	answer, err := t.readLine(ctx)
	if errors.Is(err, ErrNoAnswer) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return answer == "y" || answer == "yes", nil
}
