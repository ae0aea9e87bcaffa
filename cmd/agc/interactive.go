package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/agc-bridge/agc"
	"github.com/wippyai/agc-bridge/channel"
	"github.com/wippyai/agc-bridge/snapshot"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	lampOnStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#1A1A1A")).
			Background(lipgloss.Color("#F5C542")).
			Padding(0, 1)

	lampOffStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			Background(lipgloss.Color("#2A2A2A")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// refreshInterval is how often the panel polls the VM.
const refreshInterval = 100 * time.Millisecond

// Registers shown in the panel, by erasable address.
var panelRegisters = []int{0o0, 0o1, 0o2, 0o3, 0o4, 0o5, 0o6, 0o24, 0o25, 0o26, 0o27, 0o30, 0o31}

type interactiveModel struct {
	err        error
	vm         *agc.VM
	snap       *snapshot.Snapshot
	channels   map[uint32]uint32
	ctx        context.Context
	version    string
	image      []byte
	input      textinput.Model
	divisor    float64
	steps      uint64
	frequency  float64
	indicators uint32
	ready      bool
	running    bool
}

type bootedMsg struct {
	err     error
	version string
}

type refreshMsg struct{}

type releaseMsg struct {
	key agc.Key
}

type opMsg struct {
	err error
}

func newInteractiveModel(ctx context.Context, vm *agc.VM, image []byte, divisor float64) *interactiveModel {
	ti := textinput.New()
	ti.Prompt = "DSKY> "
	ti.Placeholder = "v n + - c k e r p 0-9"
	ti.Width = 40
	ti.Focus()
	return &interactiveModel{
		ctx:     ctx,
		vm:      vm,
		image:   image,
		divisor: divisor,
		input:   ti,
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return tea.Batch(m.boot, textinput.Blink)
}

func (m *interactiveModel) boot() tea.Msg {
	if err := boot(m.ctx, m.vm, m.image, m.divisor); err != nil {
		return bootedMsg{err: err}
	}
	version, err := m.vm.Version(m.ctx)
	return bootedMsg{version: version, err: err}
}

func refresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg { return refreshMsg{} })
}

// op runs fn off the update loop.
func (m *interactiveModel) op(fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return opMsg{err: fn(m.ctx)}
	}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case bootedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.ready = true
		m.version = msg.version
		m.poll()
		return m, refresh()

	case refreshMsg:
		m.poll()
		return m, refresh()

	case releaseMsg:
		return m, m.op(func(ctx context.Context) error { return m.vm.Release(ctx, msg.key) })

	case opMsg:
		if msg.err != nil {
			m.err = msg.err
		}
		return m, nil
	}
	return m, nil
}

func (m *interactiveModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.vm.Stop()
		return m, tea.Quit
	}
	if !m.ready {
		return m, nil
	}

	switch msg.String() {
	case "ctrl+r":
		if m.running {
			m.vm.Stop()
			return m, nil
		}
		return m, m.op(func(ctx context.Context) error { return m.vm.Start(ctx, m.divisor) })

	case "ctrl+s":
		return m, m.op(func(ctx context.Context) error { return m.vm.StepCPU(ctx, 1) })

	case "ctrl+x":
		m.input.SetValue("")
		return m, m.op(m.vm.Reset)

	case "ctrl+l":
		m.input.SetValue("")
		m.err = nil
		return m, nil

	case "enter":
		return m.press('e')
	}

	if msg.Type == tea.KeyRunes && len(msg.Runes) == 1 {
		return m.press(msg.Runes[0])
	}
	if msg.Type == tea.KeySpace {
		m.input.SetValue(m.input.Value() + " ")
	}
	return m, nil
}

// press sends r to the keypad and releases it a moment later.
func (m *interactiveModel) press(r rune) (tea.Model, tea.Cmd) {
	key, ok := agc.ParseKey(r)
	if !ok {
		return m, nil
	}
	m.input.SetValue(m.input.Value() + strings.ToUpper(string(r)))
	m.input.CursorEnd()

	return m, tea.Batch(
		m.op(func(ctx context.Context) error { return m.vm.Press(ctx, key) }),
		tea.Tick(200*time.Millisecond, func(time.Time) tea.Msg { return releaseMsg{key: key} }),
	)
}

func (m *interactiveModel) poll() {
	m.running = m.vm.Running()
	m.steps = m.vm.Steps()
	m.frequency = m.vm.Frequency()
	m.indicators = m.vm.Indicators()
	m.channels = m.vm.Channels()
	if err := m.vm.Err(); err != nil {
		m.err = err
	}
	if snap, err := m.vm.Snapshot(m.ctx); err == nil {
		m.snap = snap
	}
}

func (m *interactiveModel) View() string {
	if !m.ready {
		if m.err != nil {
			return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress esc to quit.", m.err))
		}
		return "Booting core..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("AGC"))
	b.WriteString(" ")
	b.WriteString(m.version)
	b.WriteString("\n\n")

	state := "paused"
	if m.running {
		state = "running"
	}
	fmt.Fprintf(&b, "%s %s   %s %s   %s %s\n\n",
		labelStyle.Render("state"), valueStyle.Render(state),
		labelStyle.Render("clock"), valueStyle.Render(formatFrequency(m.frequency)),
		labelStyle.Render("steps"), valueStyle.Render(formatSteps(m.steps)))

	b.WriteString(m.lampsView())
	b.WriteString("\n\n")
	b.WriteString(m.registersView())
	b.WriteString("\n")
	b.WriteString(m.channelsView())
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("keys type on DSKY • enter ENTR • ctrl+r run/pause • ctrl+s step • ctrl+x reset • ctrl+l clear • esc quit"))
	return b.String()
}

func (m *interactiveModel) lampsView() string {
	var cells []string
	for _, l := range channel.AllLamps() {
		style := lampOffStyle
		if m.indicators&l.Bit != 0 {
			style = lampOnStyle
		}
		cells = append(cells, style.Render(l.Name))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cells...)
}

func (m *interactiveModel) registersView() string {
	if m.snap == nil {
		return ""
	}
	var b strings.Builder
	for i, addr := range panelRegisters {
		fmt.Fprintf(&b, "%s %s  ",
			labelStyle.Render(fmt.Sprintf("%-5s", snapshot.RegisterName(addr))),
			valueStyle.Render(m.snap.Octal(addr)))
		if i%5 == 4 {
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")
	return b.String()
}

func (m *interactiveModel) channelsView() string {
	chans := make([]uint32, 0, len(m.channels))
	for ch := range m.channels {
		chans = append(chans, ch)
	}
	sort.Slice(chans, func(i, j int) bool { return chans[i] < chans[j] })

	var b strings.Builder
	for i, ch := range chans {
		fmt.Fprintf(&b, "%s %s  ",
			labelStyle.Render(fmt.Sprintf("%03o", ch)),
			valueStyle.Render(fmt.Sprintf("%05o", m.channels[ch])))
		if i%6 == 5 {
			b.WriteString("\n")
		}
	}
	if len(chans)%6 != 0 {
		b.WriteString("\n")
	}
	return b.String()
}

func runInteractive(ctx context.Context, cfg Config, vmCfg agc.Config, image []byte) error {
	divisor, err := parseDivisor(cfg.Divisor)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	vm := agc.New(ctx, vmCfg)
	defer func() {
		vm.Stop()
		_ = vm.Close(context.WithoutCancel(ctx))
	}()

	p := tea.NewProgram(newInteractiveModel(ctx, vm, image, divisor), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return err
	}
	if cfg.Snapshot != "" {
		cfg.Dump = false
		return writeSnapshot(ctx, vm, cfg)
	}
	return nil
}
