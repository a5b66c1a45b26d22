package ui

import (
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/strume/internal/loop"
)

var _ loop.Dispatcher = (*Bridge)(nil)

// Bridge posts coordinator messages into a running [tea.Program].
//
// Coordinators are built before the program exists, so the program is attached afterwards.
// Messages dispatched while detached are dropped.
type Bridge struct {
	p atomic.Pointer[tea.Program]
}

// Attach sets the program messages are sent to.
func (b *Bridge) Attach(p *tea.Program) {
	b.p.Store(p)
}

// Dispatch sends msg to the program. It blocks until the program accepts it or exits.
func (b *Bridge) Dispatch(msg any) {
	if p := b.p.Load(); p != nil {
		p.Send(msg)
	}
}
