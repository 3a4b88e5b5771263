// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Voltforge

package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/voltforge/espflash/pkg/espboot"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("33"))
	infoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	okStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("40"))
)

// Messages from the flashing goroutine
type progressMsg float64
type infoMsg string
type phaseStartMsg struct{}
type phaseEndMsg struct{}
type doneMsg struct{ err error }

const maxInfoLines = 8

// flashModel renders one flashing session: a title, a progress bar for
// the current phase, and a rolling window of engine info lines.
type flashModel struct {
	title string
	bar   progress.Model
	pct   float64
	info  []string
	done  bool
	err   error
	width int
}

func newFlashModel(title string) flashModel {
	return flashModel{
		title: title,
		bar:   progress.New(progress.WithDefaultGradient()),
		width: 80,
	}
}

func (m flashModel) Init() tea.Cmd {
	return nil
}

func (m flashModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = msg.Width - 8
		if m.bar.Width > 60 {
			m.bar.Width = 60
		}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.done = true
			m.err = fmt.Errorf("interrupted")
			return m, tea.Quit
		}
		return m, nil

	case phaseStartMsg:
		m.pct = 0
		return m, nil

	case phaseEndMsg:
		m.pct = 100
		return m, nil

	case progressMsg:
		m.pct = float64(msg)
		return m, nil

	case infoMsg:
		m.info = append(m.info, string(msg))
		if len(m.info) > maxInfoLines {
			m.info = m.info[len(m.info)-maxInfoLines:]
		}
		return m, nil

	case doneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m flashModel) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(m.title))
	sb.WriteString("\n\n")
	sb.WriteString("  " + m.bar.ViewAs(m.pct/100.0))
	sb.WriteString(fmt.Sprintf(" %5.1f%%\n\n", m.pct))
	for _, line := range m.info {
		sb.WriteString("  " + infoStyle.Render(line) + "\n")
	}
	if m.done {
		if m.err != nil {
			sb.WriteString("\n" + errStyle.Render("✗ "+m.err.Error()) + "\n")
		} else {
			sb.WriteString("\n" + okStyle.Render("✓ done") + "\n")
		}
	}
	return sb.String()
}

// teaProgress forwards engine events into the running TUI program.
type teaProgress struct {
	prog *tea.Program
}

func (t *teaProgress) OnStart()               { t.prog.Send(phaseStartMsg{}) }
func (t *teaProgress) OnProgress(pct float64) { t.prog.Send(progressMsg(pct)) }
func (t *teaProgress) OnEnd()                 { t.prog.Send(phaseEndMsg{}) }
func (t *teaProgress) OnInfo(msg string)      { t.prog.Send(infoMsg(msg)) }

// plainProgress is the line-based fallback for pipes and --plain.
type plainProgress struct {
	inProgress bool
}

func (p *plainProgress) OnStart() {
	p.inProgress = true
}

func (p *plainProgress) OnProgress(pct float64) {
	fmt.Printf("\rProgress: %6.2f%%", pct)
}

func (p *plainProgress) OnEnd() {
	p.inProgress = false
	fmt.Println()
}

func (p *plainProgress) OnInfo(msg string) {
	if p.inProgress {
		fmt.Println()
		p.inProgress = false
	}
	fmt.Println(msg)
}

// runWithUI runs an engine operation behind either the TUI or the plain
// printer, depending on the terminal and --plain.
func runWithUI(title string, op func(cb espboot.ProgressCallback) error) error {
	if plainOut || !term.IsTerminal(int(os.Stdout.Fd())) {
		return op(&plainProgress{})
	}

	prog := tea.NewProgram(newFlashModel(title))
	errCh := make(chan error, 1)
	go func() {
		err := op(&teaProgress{prog: prog})
		errCh <- err
		prog.Send(doneMsg{err: err})
	}()

	if _, err := prog.Run(); err != nil {
		return err
	}
	return <-errCh
}
