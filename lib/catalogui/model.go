// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package catalogui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ysk-pos/scanner/catalog"
)

// Options configures a Model.
type Options struct {
	Locale string
	// Fuzzy starts the browser in fuzzy mode.
	Fuzzy bool
	// Query is the initial search text.
	Query string
}

// chromeHeight is the lines used by the search line and the footer.
const chromeHeight = 2

// Model is the bubbletea model for one kind.
type Model struct {
	kind    catalog.Kind
	records []catalog.Record
	locale  string
	keys    KeyMap

	query     string
	fuzzy     bool
	filtering bool
	shown     int

	pane viewport.Model
}

// NewModel returns a browser over records, sized 80x24 until the
// first window size message.
func NewModel(kind catalog.Kind, records []catalog.Record, options Options) Model {
	model := Model{
		kind:    kind,
		records: records,
		locale:  options.Locale,
		keys:    DefaultKeyMap,
		query:   options.Query,
		fuzzy:   options.Fuzzy,
		pane:    viewport.New(80, 24-chromeHeight),
	}
	model.refresh()
	return model
}

// Shown is the number of records matching the current query.
func (model Model) Shown() int { return model.shown }

// Query is the current search text.
func (model Model) Query() string { return model.query }

// Init implements tea.Model.
func (model Model) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (model Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.WindowSizeMsg:
		model.pane.Width = message.Width
		model.pane.Height = max(message.Height-chromeHeight, 1)
		return model, nil
	case tea.KeyMsg:
		if model.filtering {
			return model.handleFilterKeys(message)
		}
		return model.handleKeys(message)
	}
	return model, nil
}

func (model Model) handleFilterKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch message.Type {
	case tea.KeyCtrlC:
		return model, tea.Quit
	case tea.KeyEsc:
		if model.query != "" {
			model.query = ""
			model.refresh()
		} else {
			model.filtering = false
		}
	case tea.KeyEnter:
		model.filtering = false
	case tea.KeyBackspace:
		if runes := []rune(model.query); len(runes) > 0 {
			model.query = string(runes[:len(runes)-1])
			model.refresh()
		}
	case tea.KeyRunes, tea.KeySpace:
		if message.Type == tea.KeySpace {
			model.query += " "
		} else {
			model.query += string(message.Runes)
		}
		model.refresh()
	}
	return model, nil
}

func (model Model) handleKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, model.keys.Quit):
		return model, tea.Quit
	case key.Matches(message, model.keys.FilterActivate):
		model.filtering = true
	case key.Matches(message, model.keys.FilterClear):
		if model.query != "" {
			model.query = ""
			model.refresh()
		}
	case key.Matches(message, model.keys.ToggleFuzzy):
		model.fuzzy = !model.fuzzy
		model.refresh()
	case key.Matches(message, model.keys.Up):
		model.scroll(-1)
	case key.Matches(message, model.keys.Down):
		model.scroll(1)
	case key.Matches(message, model.keys.PageUp):
		model.scroll(-model.pane.Height)
	case key.Matches(message, model.keys.PageDown):
		model.scroll(model.pane.Height)
	case key.Matches(message, model.keys.Home):
		model.pane.GotoTop()
	}
	return model, nil
}

func (model *Model) scroll(lines int) {
	offset := model.pane.YOffset + lines
	limit := max(model.pane.TotalLineCount()-model.pane.Height, 0)
	model.pane.SetYOffset(min(max(offset, 0), limit))
}

// refresh re-filters the records and redraws the pane from the top.
func (model *Model) refresh() {
	var matched []catalog.Record
	if model.fuzzy {
		matched = catalog.Rank(model.kind, model.records, model.query)
	} else {
		matched = catalog.Filter(model.kind, model.records, model.query)
	}
	model.shown = len(matched)

	var body strings.Builder
	if err := catalog.Render(&body, model.kind, matched, catalog.RenderOptions{Locale: model.locale}); err != nil {
		body.WriteString(err.Error())
	}
	model.pane.SetContent(body.String())
	model.pane.GotoTop()
}

var (
	promptStyle = lipgloss.NewStyle().Bold(true)
	footerStyle = lipgloss.NewStyle().Faint(true)
)

// View implements tea.Model.
func (model Model) View() string {
	mode := "search"
	if model.fuzzy {
		mode = "fuzzy"
	}
	prompt := fmt.Sprintf("%s %s: %s", model.kind.Noun(model.locale), mode, model.query)
	if model.filtering {
		prompt += "▏"
	}
	footer := fmt.Sprintf("%d/%d  / search  f fuzzy  esc clear  q quit", model.shown, len(model.records))
	return promptStyle.Render(prompt) + "\n" + model.pane.View() + "\n" + footerStyle.Render(footer)
}
