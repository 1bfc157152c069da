// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package console

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/danielhkuo/quickly-form/answers"
	"github.com/danielhkuo/quickly-form/models"
)

var ErrInvalidInput = errors.New("invalid input")

// Prompter reads answers line by line and writes plain-text prompts.
type Prompter struct {
	in          *bufio.Reader
	out         io.Writer
	interactive bool
	now         func() time.Time
}

// New returns a Prompter. It is interactive when in is a terminal; prompts
// are only written in interactive mode.
func New(in io.Reader, out io.Writer) *Prompter {
	interactive := false
	if f, ok := in.(*os.File); ok {
		fd := f.Fd()
		interactive = isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	}
	return &Prompter{
		in:          bufio.NewReader(in),
		out:         out,
		interactive: interactive,
		now:         time.Now,
	}
}

// SetInteractive overrides terminal detection.
func (p *Prompter) SetInteractive(v bool) {
	p.interactive = v
}

func (p *Prompter) Interactive() bool {
	return p.interactive
}

func (p *Prompter) Printf(format string, args ...any) {
	fmt.Fprintf(p.out, format, args...)
}

// Header prints the form title, description and window.
func (p *Prompter) Header(form *models.PublicForm) {
	fmt.Fprintf(p.out, "%s\n", form.Title)
	if form.Description != "" {
		fmt.Fprintf(p.out, "%s\n", form.Description)
	}
	fmt.Fprintf(p.out, "(%s)\n\n", DescribeWindow(p.now(), form.StartAt, form.EndAt))
}

// Render writes one question with its options, marking the current selection.
// errMsg is printed under the title when set.
func (p *Prompter) Render(index, total int, q models.Question, current answers.Answer, errMsg string) {
	fmt.Fprintf(p.out, "[%d/%d] %s\n", index, total, q.Title)
	if errMsg != "" {
		fmt.Fprintf(p.out, "  ! %s\n", errMsg)
	}

	switch q.Type {
	case models.QuestionSingleChoice, models.QuestionMultipleChoice:
		for i, opt := range q.Options {
			mark := " "
			if slices.Contains(current.OptionIDs, opt.ID) {
				mark = "x"
			}
			fmt.Fprintf(p.out, "  [%s] %d. %s\n", mark, i+1, opt.Title)
		}
	default:
		if current.Text != "" {
			fmt.Fprintf(p.out, "  current: %s\n", current.Text)
		}
	}
}

// Ask renders q and reads an answer, prompting again on invalid input.
// It returns io.EOF when input ends.
func (p *Prompter) Ask(index, total int, q models.Question, current answers.Answer, errMsg string) (answers.Answer, error) {
	p.Render(index, total, q, current, errMsg)
	for {
		if p.interactive {
			fmt.Fprint(p.out, promptFor(q))
		}
		line, err := p.readLine()
		if err != nil {
			return current, err
		}

		if !q.IsChoice() {
			if strings.TrimSpace(line) == "" {
				return current, nil
			}
			return answers.Text(line), nil
		}

		a, err := ParseChoice(q, line, current)
		if err != nil {
			fmt.Fprintf(p.out, "  ! %v\n", err)
			continue
		}
		return a, nil
	}
}

// Confirm asks a yes/no question. Anything but y or yes is no.
func (p *Prompter) Confirm(question string) (bool, error) {
	fmt.Fprintf(p.out, "%s [y/N] ", question)
	line, err := p.readLine()
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// ReadLine writes prompt and returns the next line without its line ending.
func (p *Prompter) ReadLine(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	return p.readLine()
}

func (p *Prompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func promptFor(q models.Question) string {
	switch q.Type {
	case models.QuestionSingleChoice:
		return "  choose one> "
	case models.QuestionMultipleChoice:
		return "  choose one or more (e.g. 1,3)> "
	}
	return "  > "
}

// ParseChoice turns 1-based option numbers separated by commas or spaces into
// a choice answer. Blank input keeps current. A single choice question
// takes exactly one number.
func ParseChoice(q models.Question, input string, current answers.Answer) (answers.Answer, error) {
	fields := strings.FieldsFunc(input, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	if len(fields) == 0 {
		if current.Kind != answers.KindChoice {
			return answers.Choice(), nil
		}
		return current, nil
	}

	ids := make([]uint, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 1 || n > len(q.Options) {
			return current, fmt.Errorf("%w: %q is not an option number between 1 and %d", ErrInvalidInput, f, len(q.Options))
		}
		id := q.Options[n-1].ID
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}

	if q.Type == models.QuestionSingleChoice && len(ids) != 1 {
		return current, fmt.Errorf("%w: choose exactly one option", ErrInvalidInput)
	}
	return answers.Choice(ids...), nil
}

// DescribeWindow says when a form opens or closes relative to now.
func DescribeWindow(now time.Time, start, end *time.Time) string {
	if start != nil && !start.IsZero() && now.Before(*start) {
		return "opens " + humanize.RelTime(*start, now, "ago", "from now")
	}
	if end != nil && !end.IsZero() {
		if !now.Before(*end) {
			return "closed " + humanize.RelTime(*end, now, "ago", "from now")
		}
		return "closes " + humanize.RelTime(*end, now, "ago", "from now")
	}
	return "open"
}

// DescribeDraft summarizes saved progress, e.g. "40% complete, saved 3 minutes ago".
func DescribeDraft(now time.Time, d *models.DraftSubmission) string {
	return fmt.Sprintf("%.0f%% complete, saved %s",
		d.ProgressPercentage,
		humanize.RelTime(d.LastModified, now, "ago", "from now"),
	)
}
