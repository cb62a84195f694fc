// Package tui is the terminal version of the allocation form: pick items,
// enter quantities, read the per-department split.
package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"ingrealloc/internal/allocation"
	"ingrealloc/internal/domain"
	"ingrealloc/internal/report"
)

// Allocator is satisfied by *session.Session.
type Allocator interface {
	Items(ctx context.Context, filter string) ([]string, error)
	Allocate(ctx context.Context, lines []domain.RequestLine) (domain.AllocationResult, error)
}

type stage int

const (
	stageLoading stage = iota
	stageSelect
	stageQuantities
	stageAllocating
	stageResult
)

const defaultListHeight = 15

type itemsLoadedMsg struct {
	items []string
	err   error
}

type allocatedMsg struct {
	result domain.AllocationResult
	err    error
}

type Model struct {
	ctx      context.Context
	alloc    Allocator
	maxItems int
	styles   styles

	stage   stage
	spinner spinner.Model
	err     string

	items    []string
	filter   textinput.Model
	visible  []string
	cursor   int
	selected []string // in selection order

	quantities []textinput.Model
	focus      int

	result     domain.AllocationResult
	listHeight int
	width      int
}

func New(ctx context.Context, alloc Allocator, maxItems int) Model {
	if maxItems <= 0 {
		maxItems = allocation.DefaultMaxItems
	}
	filter := textinput.New()
	filter.Placeholder = "type to filter"
	filter.Prompt = "Filter: "
	filter.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		ctx:        ctx,
		alloc:      alloc,
		maxItems:   maxItems,
		styles:     defaultStyles(),
		spinner:    sp,
		filter:     filter,
		listHeight: defaultListHeight,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.loadItems())
}

func (m Model) loadItems() tea.Cmd {
	return func() tea.Msg {
		items, err := m.alloc.Items(m.ctx, "")
		return itemsLoadedMsg{items: items, err: err}
	}
}

func (m Model) allocate(lines []domain.RequestLine) tea.Cmd {
	return func() tea.Msg {
		result, err := m.alloc.Allocate(m.ctx, lines)
		return allocatedMsg{result: result, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		if h := msg.Height - 8; h > 3 {
			m.listHeight = h
		}
		return m, nil

	case spinner.TickMsg:
		if m.stage != stageLoading && m.stage != stageAllocating {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case itemsLoadedMsg:
		if msg.err != nil {
			m.err = fmt.Sprintf("Could not load usage data: %v", msg.err)
			m.stage = stageResult
			return m, nil
		}
		m.items = msg.items
		m.stage = stageSelect
		m.applyFilter()
		return m, textinput.Blink

	case allocatedMsg:
		m.stage = stageResult
		if msg.err != nil {
			m.err = fmt.Sprintf("Allocation failed: %v", msg.err)
			return m, nil
		}
		m.result = msg.result
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		switch m.stage {
		case stageSelect:
			return m.updateSelect(msg)
		case stageQuantities:
			return m.updateQuantities(msg)
		case stageResult:
			return m.updateResult(msg)
		}
	}
	return m, nil
}

func (m Model) updateSelect(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		return m, tea.Quit
	case tea.KeyUp:
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case tea.KeyDown:
		if m.cursor < len(m.visible)-1 {
			m.cursor++
		}
		return m, nil
	case tea.KeySpace:
		m.toggle()
		return m, nil
	case tea.KeyEnter:
		if len(m.selected) == 0 {
			m.err = allocation.UserMessage(allocation.ErrEmptyRequest)
			return m, nil
		}
		m.err = ""
		m.startQuantities()
		return m, textinput.Blink
	}

	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	m.applyFilter()
	return m, cmd
}

func (m *Model) toggle() {
	if len(m.visible) == 0 {
		return
	}
	item := m.visible[m.cursor]
	for i, s := range m.selected {
		if s == item {
			rest := make([]string, 0, len(m.selected)-1)
			rest = append(rest, m.selected[:i]...)
			m.selected = append(rest, m.selected[i+1:]...)
			m.err = ""
			return
		}
	}
	if len(m.selected) >= m.maxItems {
		m.err = allocation.UserMessage(fmt.Errorf("%w: %d selected, limit is %d",
			allocation.ErrTooManyItems, len(m.selected)+1, m.maxItems))
		return
	}
	m.err = ""
	m.selected = append(m.selected[:len(m.selected):len(m.selected)], item)
}

func (m *Model) isSelected(item string) bool {
	for _, s := range m.selected {
		if s == item {
			return true
		}
	}
	return false
}

func (m *Model) applyFilter() {
	q := strings.ToLower(strings.TrimSpace(m.filter.Value()))
	visible := make([]string, 0, len(m.items))
	for _, item := range m.items {
		if q == "" || strings.Contains(strings.ToLower(item), q) {
			visible = append(visible, item)
		}
	}
	m.visible = visible
	if m.cursor >= len(m.visible) {
		m.cursor = max(len(m.visible)-1, 0)
	}
}

func (m *Model) startQuantities() {
	m.quantities = make([]textinput.Model, len(m.selected))
	for i := range m.selected {
		in := textinput.New()
		in.Placeholder = "0"
		in.Prompt = ""
		in.CharLimit = 16
		m.quantities[i] = in
	}
	m.focus = 0
	m.quantities[0].Focus()
	m.stage = stageQuantities
}

func (m *Model) setFocus(i int) {
	m.quantities[m.focus].Blur()
	m.focus = (i + len(m.quantities)) % len(m.quantities)
	m.quantities[m.focus].Focus()
}

func (m Model) updateQuantities(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.err = ""
		m.stage = stageSelect
		return m, nil
	case tea.KeyTab, tea.KeyDown:
		m.setFocus(m.focus + 1)
		return m, nil
	case tea.KeyShiftTab, tea.KeyUp:
		m.setFocus(m.focus - 1)
		return m, nil
	case tea.KeyEnter:
		if m.focus < len(m.quantities)-1 {
			m.setFocus(m.focus + 1)
			return m, nil
		}
		lines, err := m.requestLines()
		if err == nil {
			err = allocation.Validate(lines, m.maxItems)
		}
		if err != nil {
			m.err = allocation.UserMessage(err)
			return m, nil
		}
		m.err = ""
		m.stage = stageAllocating
		return m, tea.Batch(m.spinner.Tick, m.allocate(lines))
	}

	var cmd tea.Cmd
	m.quantities[m.focus], cmd = m.quantities[m.focus].Update(msg)
	return m, cmd
}

// requestLines reads the quantity inputs; blank means zero.
func (m Model) requestLines() ([]domain.RequestLine, error) {
	lines := make([]domain.RequestLine, 0, len(m.selected))
	for i, item := range m.selected {
		line := domain.RequestLine{Identifier: item}
		if raw := strings.TrimSpace(m.quantities[i].Value()); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid quantity for %s: %q", item, raw)
			}
			line.Quantity = v
		}
		lines = append(lines, line)
	}
	return allocation.NewRequest(lines), nil
}

func (m Model) updateResult(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "n":
		if m.items == nil {
			return m, nil
		}
		m.err = ""
		m.result = domain.AllocationResult{}
		m.selected = nil
		m.quantities = nil
		m.filter.SetValue("")
		m.applyFilter()
		m.stage = stageSelect
		return m, nil
	case "q", "esc":
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.styles.Title.Render("Ingredient allocation"))
	b.WriteString("\n")

	switch m.stage {
	case stageLoading:
		b.WriteString(m.spinner.View() + " Loading usage data...\n")
	case stageSelect:
		m.viewSelect(&b)
	case stageQuantities:
		m.viewQuantities(&b)
	case stageAllocating:
		b.WriteString(m.spinner.View() + " Allocating...\n")
	case stageResult:
		m.viewResult(&b)
	}

	if m.err != "" {
		b.WriteString("\n" + m.styles.Error.Render(m.err) + "\n")
	}
	return b.String()
}

func (m Model) viewSelect(b *strings.Builder) {
	b.WriteString(m.filter.View() + "\n\n")
	if len(m.visible) == 0 {
		b.WriteString(m.styles.Help.Render("No items match.") + "\n")
	}

	start := 0
	if m.cursor >= m.listHeight {
		start = m.cursor - m.listHeight + 1
	}
	end := min(start+m.listHeight, len(m.visible))
	for i := start; i < end; i++ {
		item := m.visible[i]
		cursor := "  "
		if i == m.cursor {
			cursor = m.styles.Cursor.Render("> ")
		}
		box := "[ ] "
		line := item
		if m.isSelected(item) {
			box = "[x] "
			line = m.styles.Selected.Render(item)
		}
		b.WriteString(cursor + box + line + "\n")
	}

	fmt.Fprintf(b, "\n%d/%d selected\n", len(m.selected), m.maxItems)
	b.WriteString(m.styles.Help.Render("up/down move • space select • enter continue • esc quit") + "\n")
}

func (m Model) viewQuantities(b *strings.Builder) {
	width := 0
	for _, item := range m.selected {
		width = max(width, len(item))
	}
	for i, item := range m.selected {
		cursor := "  "
		if i == m.focus {
			cursor = m.styles.Cursor.Render("> ")
		}
		fmt.Fprintf(b, "%s%-*s  %s\n", cursor, width, item, m.quantities[i].View())
	}
	b.WriteString("\n" + m.styles.Help.Render("tab next • enter allocate • esc back") + "\n")
}

func (m Model) viewResult(b *strings.Builder) {
	if m.err == "" {
		if m.result.Empty() {
			b.WriteString(m.styles.Warning.Render(allocation.NoMatchMessage) + "\n")
		} else {
			b.WriteString(m.styles.Result.Render(strings.TrimRight(report.Text(m.result), "\n")) + "\n")
		}
	}
	b.WriteString("\n" + m.styles.Help.Render("n new allocation • q quit") + "\n")
}

// Run starts the form full-screen and blocks until the user quits.
func Run(ctx context.Context, alloc Allocator, maxItems int) error {
	p := tea.NewProgram(New(ctx, alloc, maxItems), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
