// Package render prints the eating activity of a dining table.
package render

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/najoast/dining/core"
	"github.com/najoast/dining/philosopher"
)

// Printer renders one row per eating transition. It implements
// core.Observer and is meant to be registered on the table it renders.
type Printer struct {
	mu     sync.Mutex
	w      io.Writer
	size   int
	eating *color.Color
	err    error
}

// NewPrinter creates a printer for a table of size philosophers.
func NewPrinter(w io.Writer, size int, colorize bool) *Printer {
	eating := color.New(color.FgHiGreen, color.Bold)
	if colorize {
		eating.EnableColor()
	} else {
		eating.DisableColor()
	}
	return &Printer{
		w:      w,
		size:   size,
		eating: eating,
	}
}

// PrintTitle prints the table header: tens digits on the first column row,
// units on the second.
func (p *Printer) PrintTitle() {
	var b strings.Builder
	b.WriteString("Eating Activity\n")
	for i := 0; i < p.size; i++ {
		if i >= 10 {
			fmt.Fprintf(&b, "%d", (i/10)%10)
		} else {
			b.WriteByte(' ')
		}
	}
	b.WriteByte('\n')
	for i := 0; i < p.size; i++ {
		fmt.Fprintf(&b, "%d", i%10)
	}
	b.WriteByte('\n')

	p.write(b.String())
}

// Observe implements core.Observer.
func (p *Printer) Observe(ev core.Event, snap core.Snapshot) {
	var b strings.Builder
	for _, st := range snap {
		if st == core.StateEating {
			b.WriteString(p.eating.Sprint("*"))
		} else {
			b.WriteByte(' ')
		}
	}
	fmt.Fprintf(&b, "   %d %s\n", ev.ID, ev.Kind)

	p.write(b.String())
}

// PrintSummary prints how much each philosopher ate and waited.
func (p *Printer) PrintSummary(stats []philosopher.Stats) {
	var b strings.Builder
	b.WriteString("Summary\n")
	for _, s := range stats {
		fmt.Fprintf(&b, "%3d ate %d times, hungry for %s\n", s.ID, s.Meals, s.Waited.Round(time.Millisecond))
	}

	p.write(b.String())
}

// Err returns the first write error, if any.
func (p *Printer) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *Printer) write(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return
	}
	_, p.err = io.WriteString(p.w, s)
}
