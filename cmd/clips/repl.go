package main

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var termCheck = term.IsTerminal

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	outputStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const (
	prompt         = "CLIPS> "
	continuePrompt = "   ... "
)

func newReplCommand(opts *rootOptions) *cobra.Command {
	var files []string
	var plain bool

	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Read and evaluate expressions interactively",
		Long: `Start a read-eval-print loop. Constructs (deftemplate, defrule, ...)
are built, anything else is evaluated and its value printed.

On a terminal the loop runs full screen; otherwise input is read line
by line from stdin and results are written to stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			f, isFile := in.(*os.File)
			interactive := !plain && isFile && isTerminal(f)

			var captured bytes.Buffer
			out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
			if interactive {
				out, errOut = &captured, &captured
			}
			s, err := openSession(cmd.Context(), opts, streams{out: out, errOut: errOut, in: strings.NewReader("")})
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.loadConfigured(); err != nil {
				return err
			}
			if err := s.loadFiles(files); err != nil {
				return err
			}

			ev := &evaluator{s: s}
			if !interactive {
				return runLines(ev, in, cmd.OutOrStdout(), cmd.ErrOrStderr())
			}
			ev.captured = &captured
			p := tea.NewProgram(newReplModel(ev), tea.WithAltScreen(), tea.WithContext(cmd.Context()))
			_, err = p.Run()
			return err
		},
	}

	cmd.Flags().StringSliceVarP(&files, "load", "l", nil, "construct files to load first")
	cmd.Flags().BoolVar(&plain, "plain", false, "read lines from stdin even on a terminal")
	return cmd
}

// evaluator feeds REPL input to a session one complete form at a time.
type evaluator struct {
	s        *session
	captured *bytes.Buffer
	pending  strings.Builder
}

// feed adds a line of input and returns the forms it completes.
func (ev *evaluator) feed(line string) []string {
	ev.pending.WriteString(line)
	ev.pending.WriteByte('\n')
	forms, rest := splitForms(ev.pending.String())
	ev.pending.Reset()
	ev.pending.WriteString(rest)
	return forms
}

// incomplete reports whether a form is still open.
func (ev *evaluator) incomplete() bool {
	return strings.TrimSpace(ev.pending.String()) != ""
}

// exec builds a construct or evaluates an expression. Engine output
// produced meanwhile is returned first when it is being captured.
func (ev *evaluator) exec(form string) (output, result string, err error) {
	if ev.captured != nil {
		ev.captured.Reset()
		defer func() { output = ev.captured.String() }()
	}
	env := ev.s.env
	if isConstruct(form) {
		return "", "", env.Build(form)
	}
	v, err := env.Eval(form)
	if err != nil {
		return "", "", err
	}
	defer releaseValue(v)
	return "", formatValue(env, v), nil
}

func runLines(ev *evaluator, in io.Reader, out, errOut io.Writer) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		for _, form := range ev.feed(sc.Text()) {
			if isQuit(form) {
				return nil
			}
			_, result, err := ev.exec(form)
			if err != nil {
				fmt.Fprintln(errOut, err)
				continue
			}
			if result != "" {
				fmt.Fprintln(out, result)
			}
		}
	}
	return sc.Err()
}

var constructs = map[string]bool{
	"deftemplate":        true,
	"defrule":            true,
	"deffacts":           true,
	"deffunction":        true,
	"defglobal":          true,
	"defclass":           true,
	"defmessage-handler": true,
	"definstances":       true,
	"defgeneric":         true,
	"defmethod":          true,
	"defmodule":          true,
}

func isConstruct(form string) bool {
	return constructs[head(form)]
}

func isQuit(form string) bool {
	switch strings.TrimSpace(form) {
	case "exit", "quit", "(exit)", "(quit)":
		return true
	}
	return false
}

// head returns the first word of a parenthesized form.
func head(form string) string {
	form = strings.TrimSpace(form)
	if !strings.HasPrefix(form, "(") {
		return ""
	}
	fields := strings.FieldsFunc(form[1:], func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '(' || r == ')'
	})
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// splitForms cuts text into complete top-level forms. Whatever follows
// the last complete form is returned as rest.
func splitForms(text string) (forms []string, rest string) {
	depth := 0
	start := -1
	inString, escaped, comment := false, false, false

	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case comment:
			if c == '\n' {
				comment = false
			}
			continue
		case inString:
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case ';':
			comment = true
		case '"':
			if start < 0 {
				start = i
			}
			inString = true
		case '(':
			if start < 0 {
				start = i
			}
			depth++
		case ')':
			if start < 0 {
				start = i
			}
			depth--
			if depth <= 0 {
				forms = append(forms, text[start:i+1])
				start, depth = -1, 0
			}
		case ' ', '\t', '\n', '\r':
			if depth == 0 && start >= 0 {
				forms = append(forms, text[start:i])
				start = -1
			}
		default:
			if start < 0 {
				start = i
			}
		}
	}
	if start >= 0 {
		rest = text[start:]
	}
	return forms, rest
}

// replModel is the full-screen REPL.
type replModel struct {
	ev         *evaluator
	input      textinput.Model
	transcript []string
	history    []string
	recall     int
	height     int
	busy       bool
}

type execResultMsg struct {
	err    error
	output string
	result string
	quit   bool
}

func newReplModel(ev *evaluator) *replModel {
	ti := textinput.New()
	ti.Prompt = promptStyle.Render(prompt)
	ti.Placeholder = "(+ 1 2)"
	ti.Width = 72
	ti.Focus()
	return &replModel{ev: ev, input: ti, height: 24}
}

func (m *replModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *replModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.height = msg.Height
		m.input.Width = max(msg.Width-len(prompt)-2, 10)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+d":
			return m, tea.Quit

		case "up":
			if len(m.history) > 0 && m.recall > 0 {
				m.recall--
				m.input.SetValue(m.history[m.recall])
				m.input.CursorEnd()
			}
			return m, nil

		case "down":
			if m.recall < len(m.history)-1 {
				m.recall++
				m.input.SetValue(m.history[m.recall])
				m.input.CursorEnd()
			} else {
				m.recall = len(m.history)
				m.input.SetValue("")
			}
			return m, nil

		case "enter":
			if m.busy {
				return m, nil
			}
			line := m.input.Value()
			m.input.SetValue("")
			p := prompt
			if m.ev.incomplete() {
				p = continuePrompt
			}
			m.transcript = append(m.transcript, promptStyle.Render(p)+line)
			if strings.TrimSpace(line) != "" {
				m.history = append(m.history, line)
			}
			m.recall = len(m.history)

			forms := m.ev.feed(line)
			m.setPrompt()
			if len(forms) == 0 {
				return m, nil
			}
			m.busy = true
			return m, m.execForms(forms)
		}

	case execResultMsg:
		m.busy = false
		if msg.output != "" {
			m.transcript = append(m.transcript, outputStyle.Render(strings.TrimRight(msg.output, "\n")))
		}
		if msg.err != nil {
			m.transcript = append(m.transcript, errorStyle.Render(msg.err.Error()))
		} else if msg.result != "" {
			m.transcript = append(m.transcript, resultStyle.Render(msg.result))
		}
		if msg.quit {
			return m, tea.Quit
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *replModel) setPrompt() {
	if m.ev.incomplete() {
		m.input.Prompt = promptStyle.Render(continuePrompt)
	} else {
		m.input.Prompt = promptStyle.Render(prompt)
	}
}

// execForms runs the forms in order and reports them as one result.
func (m *replModel) execForms(forms []string) tea.Cmd {
	return func() tea.Msg {
		var res execResultMsg
		var results []string
		for _, form := range forms {
			if isQuit(form) {
				res.quit = true
				break
			}
			output, result, err := m.ev.exec(form)
			res.output += output
			if err != nil {
				res.err = err
				break
			}
			if result != "" {
				results = append(results, result)
			}
		}
		res.result = strings.Join(results, "\n")
		return res
	}
}

func (m *replModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("CLIPS"))
	b.WriteString(" ")
	b.WriteString(m.ev.s.cfg.Backend)
	b.WriteString("\n\n")

	// Title, blank line, input and help take four rows.
	lines := strings.Split(strings.Join(m.transcript, "\n"), "\n")
	if n := m.height - 5; n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	if len(m.transcript) > 0 {
		b.WriteString(strings.Join(lines, "\n"))
		b.WriteString("\n")
	}

	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("enter evaluate • ↑/↓ history • ctrl+d quit"))
	return b.String()
}
