package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli"

	"polymetro/internal/adapter"
	"polymetro/internal/config"
	"polymetro/internal/engine"
	"polymetro/internal/model"
	"polymetro/mixer"
	"polymetro/ui"
)

const sampleRate = 48000

// Model is the main application model.
type Model struct {
	sess   *mixer.Session
	width  int
	height int
}

// tickMsg/barMsg/stateMsg wrap engine subscription callbacks into
// bubbletea messages.
type tickMsg model.TickEvent
type barMsg int
type stateMsg struct {
	state  model.State
	detail string
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		m.sess.LastTick = model.TickEvent(msg)
		return m, nil

	case barMsg:
		m.sess.LastBar = int(msg)
		return m, nil

	case stateMsg:
		if msg.state == model.Error {
			m.sess.LastErr = fmt.Errorf("%s", msg.detail)
		}
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.sess.Close()
		return m, tea.Quit

	case "left", "h":
		m.sess.SelectPrev()
	case "right", "l":
		m.sess.SelectNext()

	case "up", "k":
		m.sess.AdjustTempo(5)
	case "down", "j":
		m.sess.AdjustTempo(-5)
	case "shift+up", "K":
		m.sess.AdjustTempo(1)
	case "shift+down", "J":
		m.sess.AdjustTempo(-1)

	case "+", "=":
		m.sess.AdjustSubdivision(1)
	case "-", "_":
		m.sess.AdjustSubdivision(-1)

	case "m":
		m.sess.ToggleDownbeatMute()
	case "g":
		m.sess.ToggleBeatGuide()
	case "L":
		m.sess.ToggleLoop()

	case "t":
		m.sess.Engine.PlayTestTick()

	case "0":
		m.sess.ResetSelectedBar()

	case " ":
		m.sess.TogglePlayback()
	}

	return m, nil
}

func (m Model) View() string {
	var sections []string

	title := ui.TitleStyle.Render("◎ POLYMETRO")
	sections = append(sections, title)

	sections = append(sections, ui.RenderSession(m.sess))

	if wave := m.sess.Engine.Waveform(); len(wave) > 0 {
		sections = append(sections, ui.RenderWaveform(wave))
	}

	sections = append(sections, ui.RenderStatus(m.sess))
	sections = append(sections, ui.RenderHelp())

	content := lipgloss.JoinVertical(lipgloss.Center, sections...)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
}

func run(c *cli.Context) error {
	opts := config.Options{MaxSubdivision: c.Int("max-subdivision")}

	var factory engine.WorkerFactory
	switch c.String("engine") {
	case "push", "":
		factory = engine.NewPushWorkerFactory(sampleRate)
	case "pull":
		return fmt.Errorf("pull engine requires a callback-timeline host; not available in the standalone CLI")
	default:
		return fmt.Errorf("unknown engine %q (want push or pull)", c.String("engine"))
	}

	e := engine.New(factory, opts)
	a := adapter.New(e, opts)

	sess := mixer.NewSession(e, a, opts)
	sess.Tempo = c.Int("tempo")
	sess.Loop = c.Bool("loop")
	sess.BeatGuide = c.Bool("beat-guide")

	var program *tea.Program
	e.OnTick(func(evt model.TickEvent) {
		if program != nil {
			program.Send(tickMsg(evt))
		}
	})
	e.OnBarChange(func(bar int) {
		if program != nil {
			program.Send(barMsg(bar))
		}
	})
	e.OnState(func(st model.State, detail string) {
		if program != nil {
			program.Send(stateMsg{state: st, detail: detail})
		}
	})

	sess.Apply(model.Now)

	m := Model{sess: sess}
	program = tea.NewProgram(m, tea.WithAltScreen())
	_, err := program.Run()
	return err
}

func main() {
	app := cli.NewApp()
	app.Name = "polymetro"
	app.Usage = "sample-accurate polymetric metronome"
	app.Flags = []cli.Flag{
		cli.IntFlag{Name: "tempo", Value: 120, Usage: "starting tempo in BPM"},
		cli.BoolFlag{Name: "loop", Usage: "loop playback across bars"},
		cli.BoolFlag{Name: "beat-guide", Usage: "force the first slot of every beat audible, whatever its mute mask"},
		cli.StringFlag{Name: "engine", Value: "push", Usage: "scheduling discipline: push or pull"},
		cli.IntFlag{Name: "max-subdivision", Value: 16, Usage: "cap on per-beat subdivision count"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "polymetro: %v\n", err)
		os.Exit(1)
	}
}
