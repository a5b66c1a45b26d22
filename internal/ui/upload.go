package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/strume/internal/models"
	"github.com/desertthunder/strume/internal/services"
	"github.com/desertthunder/strume/internal/tasks"
)

const (
	fieldPath = iota
	fieldTitle
	fieldArtist
	fieldGenre
	fieldEmail
	fieldCount
)

// uploadPanel collects a submission and shows the task's merged progress.
type uploadPanel struct {
	inputs []textinput.Model
	focus  int
	keep   bool
	bar    progress.Model

	update   tasks.ProgressUpdate
	notice   string
	detected string // path metadata was last detected for
}

func newUploadPanel(email string, keep bool) *uploadPanel {
	placeholders := []string{"/path/to/song.mp3", "Title", "Artist", "Genre", "you@example.com"}
	labels := []string{"File   ", "Title  ", "Artist ", "Genre  ", "Email  "}

	inputs := make([]textinput.Model, fieldCount)
	for i := range inputs {
		in := textinput.New()
		in.Placeholder = placeholders[i]
		in.Prompt = labels[i] + "› "
		in.CharLimit = 512
		inputs[i] = in
	}
	inputs[fieldEmail].SetValue(email)
	inputs[fieldPath].Focus()

	return &uploadPanel{
		inputs: inputs,
		keep:   keep,
		bar:    progress.New(progress.WithDefaultGradient()),
	}
}

// onUpdate is the panel's task subscription.
func (p *uploadPanel) onUpdate(u tasks.ProgressUpdate) {
	p.update = u
	p.notice = ""
}

func (p *uploadPanel) value(field int) string {
	return strings.TrimSpace(p.inputs[field].Value())
}

func (p *uploadPanel) submission() tasks.Submission {
	return tasks.Submission{
		Path: p.value(fieldPath),
		Metadata: models.Metadata{
			Title:  p.value(fieldTitle),
			Artist: p.value(fieldArtist),
			Genre:  p.value(fieldGenre),
		},
		Email:    p.value(fieldEmail),
		KeepFile: p.keep,
	}
}

func (p *uploadPanel) setFocus(i int) tea.Cmd {
	p.inputs[p.focus].Blur()
	p.focus = (i + fieldCount) % fieldCount
	return p.inputs[p.focus].Focus()
}

// fill sets empty metadata fields from meta.
func (p *uploadPanel) fill(meta models.Metadata) {
	merged := p.submission().Metadata.Merge(meta)
	p.inputs[fieldTitle].SetValue(merged.Title)
	p.inputs[fieldArtist].SetValue(merged.Artist)
	p.inputs[fieldGenre].SetValue(merged.Genre)
}

func (p *uploadPanel) busy() bool {
	return p.update.TaskID != "" && !p.update.Done()
}

func (p *uploadPanel) updateInputs(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	p.inputs[p.focus], cmd = p.inputs[p.focus].Update(msg)
	return cmd
}

func (p *uploadPanel) view(width int) string {
	var sb strings.Builder
	sb.WriteString(styles.title.Render("Upload a song"))
	sb.WriteString("\n")

	for _, in := range p.inputs {
		sb.WriteString(in.View())
		sb.WriteString("\n")
	}
	keep := "[ ]"
	if p.keep {
		keep = "[x]"
	}
	sb.WriteString(fmt.Sprintf("%s keep file on server\n\n", keep))

	if p.update.TaskID != "" {
		p.bar.Width = max(min(width-4, 60), 10)
		sb.WriteString(p.bar.ViewAs(float64(p.update.Percent) / 100))
		sb.WriteString("\n")

		switch p.update.Phase {
		case tasks.Succeeded:
			sb.WriteString(styles.ok.Render(p.update.Message))
		case tasks.Failed:
			sb.WriteString(styles.err.Render(p.update.Message))
		default:
			sb.WriteString(p.update.Message)
		}
		sb.WriteString("\n")
	}

	if p.notice != "" {
		sb.WriteString(styles.warn.Render(p.notice))
		sb.WriteString("\n")
	}

	return sb.String()
}

// detectMetadata asks the backend to identify the song at path.
func detectMetadata(ctx context.Context, lib services.Library, path string) tea.Cmd {
	return func() tea.Msg {
		meta, err := lib.DetectMetadata(ctx, path)
		return metadataDetectedMsg(path, meta, err)
	}
}
