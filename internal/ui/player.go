package ui

import (
	"fmt"
	"strings"

	"github.com/desertthunder/strume/internal/playback"
	"github.com/desertthunder/strume/internal/shared"
)

var blocks = []rune("▁▂▃▄▅▆▇█")

// nowPlayingBar is the compact player shown under every view.
type nowPlayingBar struct {
	snap playback.Snapshot
}

func (b *nowPlayingBar) onSnapshot(snap playback.Snapshot) {
	b.snap = snap
}

func (b *nowPlayingBar) view(width int) string {
	if b.snap.State == playback.Closed {
		return styles.bar.Width(max(width, 20)).Render(styles.help.Render("Nothing playing"))
	}

	icon := "▶"
	switch b.snap.State {
	case playback.Playing:
		icon = "⏸"
	case playback.Loading:
		icon = "…"
	case playback.Errored:
		icon = "!"
	}

	line := fmt.Sprintf("%s %s  %s", icon, styles.accent.Render(b.snap.Track.Label()), elapsed(b.snap))
	if b.snap.State == playback.Errored && b.snap.Err != nil {
		line += "  " + styles.err.Render(shared.Truncate(b.snap.Err.Error(), 60))
	}
	return styles.bar.Width(max(width, 20)).Render(line)
}

func elapsed(s playback.Snapshot) string {
	if s.Duration <= 0 {
		return s.State.String()
	}
	return fmt.Sprintf("%s / %s", shared.FormatDuration(int(s.Position.Seconds())), shared.FormatDuration(int(s.Duration.Seconds())))
}

// visualizer is the modal waveform view.
type visualizer struct {
	open   bool
	snap   playback.Snapshot
	levels []float64
}

func (v *visualizer) onSnapshot(snap playback.Snapshot) {
	if snap.ResourceID != v.snap.ResourceID {
		v.levels = nil
	}
	v.snap = snap
}

func (v *visualizer) view(width int) string {
	title := styles.title.Render("Visualizer")
	if v.snap.State == playback.Closed {
		return styles.modal.Render(title + "\n" + styles.help.Render("Play a track to see its waveform.\n\nesc close"))
	}

	header := fmt.Sprintf("%s\n%s", v.snap.Track.Label(), styles.help.Render(nowPlayingLabel(v.snap.State)+"  "+elapsed(v.snap)))
	bars := renderLevels(v.levels, max(width-12, playback.DefaultBars))
	return styles.modal.Render(fmt.Sprintf("%s\n%s\n\n%s\n\n%s", title, header, styles.accent.Render(bars), styles.help.Render("enter play/pause • x stop • esc close")))
}

// renderLevels draws levels as block characters, normalized to the loudest bar
// and right-aligned within width.
func renderLevels(levels []float64, width int) string {
	if len(levels) > width {
		levels = levels[len(levels)-width:]
	}

	peak := 0.05
	for _, l := range levels {
		peak = max(peak, l)
	}

	var sb strings.Builder
	sb.WriteString(strings.Repeat(string(blocks[0]), width-len(levels)))
	for _, l := range levels {
		i := int(l / peak * float64(len(blocks)-1))
		sb.WriteRune(blocks[min(max(i, 0), len(blocks)-1)])
	}
	return sb.String()
}
