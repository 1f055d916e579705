package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/progress"
)

// progressBar draws engine progress on one terminal line. A nil bar is
// valid and draws nothing.
type progressBar struct {
	w     io.Writer
	model progress.Model
	stage string
	last  int
}

func newProgressBar(w io.Writer) *progressBar {
	return &progressBar{
		w:     w,
		model: progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		last:  -1,
	}
}

// Update matches lightbake.ProgressFunc. It redraws when the stage changes
// or the percentage moves.
func (p *progressBar) Update(stage string, done, total int) {
	if p == nil {
		return
	}
	pct := 1.0
	if total > 0 {
		pct = float64(done) / float64(total)
	}
	step := int(pct * 100)
	if stage == p.stage && step == p.last {
		return
	}
	if stage != p.stage && p.stage != "" {
		fmt.Fprintln(p.w)
	}
	p.stage, p.last = stage, step
	fmt.Fprintf(p.w, "\r%-10s %s", stage, p.model.ViewAs(pct))
}

func (p *progressBar) Done() {
	if p == nil || p.stage == "" {
		return
	}
	fmt.Fprintln(p.w)
	p.stage, p.last = "", -1
}
