package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"polymetro/internal/config"
	"polymetro/internal/model"
	"polymetro/mixer"
)

const (
	WaveformWidth  = 80
	WaveformHeight = 8
)

func accentColor(a model.AccentLevel) lipgloss.Color {
	switch a {
	case model.BarStrong:
		return ColorBarStrong
	case model.GroupMedium:
		return ColorGroupMed
	default:
		return ColorSubdivWeak
	}
}

// effectiveSubdivisions returns bar's per-beat slot counts, defaulting
// every beat to a single slot when the bar hasn't been customized.
func effectiveSubdivisions(bar config.PartialBar) []int {
	n := bar.Meter.N
	if n <= 0 {
		n = 4
	}
	subs := make([]int, n)
	for i := range subs {
		subs[i] = 1
		if i < len(bar.Subdivisions) && bar.Subdivisions[i] > 0 {
			subs[i] = bar.Subdivisions[i]
		}
	}
	return subs
}

func effectiveMask(bar config.PartialBar, beat, slotCount int) []bool {
	mask := make([]bool, slotCount)
	for i := range mask {
		mask[i] = true
	}
	if beat < len(bar.Masks) {
		for i, v := range bar.Masks[beat] {
			if i < slotCount {
				mask[i] = v
			}
		}
	}
	return mask
}

// RenderBar renders one bar's beat/slot grid: one row of slot marks per
// beat. Colors follow slot position, not the bar's groups: slot 0 of beat
// 0 as BarStrong, slot 0 of later beats as GroupMedium, other slots as
// SubdivWeak; muted slots are drawn as ○ in the muted color.
func RenderBar(label string, bar config.PartialBar, selected bool, playing bool, tick model.TickEvent) string {
	var parts []string
	parts = append(parts, BarNameStyle.Render(label))
	parts = append(parts, ValueStyle.Render(fmt.Sprintf("%d/%d", bar.Meter.N, bar.Meter.D)))
	parts = append(parts, "")

	subs := effectiveSubdivisions(bar)
	for beat, slotCount := range subs {
		mask := effectiveMask(bar, beat, slotCount)
		var row strings.Builder
		anyMuted := false
		for slot := 0; slot < slotCount; slot++ {
			accent := model.SubdivWeak
			if slot == 0 {
				accent = model.BarStrong
				if beat != 0 {
					accent = model.GroupMedium
				}
			}
			char := "●"
			style := lipgloss.NewStyle().Foreground(accentColor(accent))
			if !mask[slot] {
				style = lipgloss.NewStyle().Foreground(ColorMuted)
				char = "○"
				anyMuted = true
			}
			if playing && tick.Beat == beat && tick.Slot == slot {
				style = style.Background(ColorPlayhead).Foreground(lipgloss.Color("#000000")).Bold(true)
			}
			row.WriteString(style.Render(char))
			row.WriteString(" ")
		}
		if anyMuted {
			row.WriteString(MuteActiveStyle.Render("M"))
		} else {
			row.WriteString(MuteInactiveStyle.Render("M"))
		}
		parts = append(parts, row.String())
	}

	content := strings.Join(parts, "\n")
	if selected {
		return SelectedBarStyle.Render(content)
	}
	return BarStyle.Render(content)
}

// RenderTempo renders the tempo readout.
func RenderTempo(bpm int) string {
	return TempoStyle.Render(BarNameStyle.Render("TEMPO") + "\n" + ValueStyle.Render(fmt.Sprintf("%d BPM", bpm)))
}

// RenderSession renders every bar in the session, tempo last.
func RenderSession(sess *mixer.Session) string {
	var views []string
	playing := sess.Engine.GetStatus() == model.Running
	for i, bar := range sess.Bars {
		label := fmt.Sprintf("BAR %d", i+1)
		views = append(views, RenderBar(label, bar, i == sess.SelectedBar, playing, sess.LastTick))
	}
	views = append(views, RenderTempo(sess.Tempo))
	return lipgloss.JoinHorizontal(lipgloss.Top, views...)
}

// RenderHelp renders the help bar.
func RenderHelp() string {
	help := "←/→: Select bar  ↑/↓: Tempo ±5  shift+↑/↓: ±1  +/-: Subdivisions  m: Mute downbeat  g: Beat guide  L: Loop  space: Start/Stop  0: Reset bar  q: Quit"
	return HelpStyle.Render(help)
}

// RenderStatus renders the engine/session status line.
func RenderStatus(sess *mixer.Session) string {
	status := fmt.Sprintf("Engine: %s │ Loop: %v │ Beat guide: %v │ Last bar change: %d",
		sess.Engine.GetStatus(), sess.Loop, sess.BeatGuide, sess.LastBar)
	if sess.LastErr != nil {
		status += fmt.Sprintf(" │ Error: %v", sess.LastErr)
	}
	return StatusStyle.Render(status)
}

// RenderWaveform renders a mono oscilloscope trace of recent PCM output.
func RenderWaveform(wave []float64) string {
	if len(wave) == 0 {
		return ""
	}

	width := WaveformWidth
	height := WaveformHeight

	step := len(wave) / width
	if step < 1 {
		step = 1
	}

	var lines []string
	headerStyle := lipgloss.NewStyle().Foreground(ColorBarStrong).Bold(true)
	lines = append(lines, headerStyle.Render("┌─ WAVEFORM ─────────────────────────────────────────────────────────────────┐"))

	display := make([][]string, height)
	for i := range display {
		display[i] = make([]string, width)
		for j := range display[i] {
			display[i][j] = " "
		}
	}

	traceStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#06B6D4"))

	for x := 0; x < width && x*step < len(wave); x++ {
		sample := wave[x*step]
		y := int((1 - sample) * float64(height-1) / 2)
		if y < 0 {
			y = 0
		}
		if y >= height {
			y = height - 1
		}
		display[y][x] = "●"
	}

	mid := height / 2
	for y := 0; y < height; y++ {
		var line strings.Builder
		line.WriteString("│")
		for x := 0; x < width; x++ {
			switch display[y][x] {
			case "●":
				line.WriteString(traceStyle.Render("█"))
			default:
				if y == mid {
					line.WriteString(lipgloss.NewStyle().Foreground(ColorSurface).Render("─"))
				} else {
					line.WriteString(" ")
				}
			}
		}
		line.WriteString("│")
		lines = append(lines, line.String())
	}

	footerStyle := lipgloss.NewStyle().Foreground(ColorTextDim)
	lines = append(lines, footerStyle.Render("└────────────────────────────────────────────────────────────────────────────┘"))

	return strings.Join(lines, "\n")
}
