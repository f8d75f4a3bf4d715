package nftsnap

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"github.com/nftsnap/nftsnap/pkg/scheduler"
)

// ProgressBar renders scheduler progress, one bar per stage.
type ProgressBar struct {
	w io.Writer

	mu    sync.Mutex
	stage string
	bar   *progressbar.ProgressBar
}

// NewProgressBar returns nil when f is not a terminal.
func NewProgressBar(f *os.File) *ProgressBar {
	fd := f.Fd()
	if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		return nil
	}
	return newProgressBar(f)
}

func newProgressBar(w io.Writer) *ProgressBar {
	return &ProgressBar{w: w}
}

// Update is a scheduler progress callback.
func (p *ProgressBar) Update(prog scheduler.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bar == nil || prog.Stage != p.stage {
		if p.bar != nil {
			_ = p.bar.Finish()
		}
		if prog.Total == 0 {
			p.bar, p.stage = nil, ""
			return
		}
		p.stage = prog.Stage
		p.bar = progressbar.NewOptions64(prog.Total,
			progressbar.OptionSetWriter(p.w),
			progressbar.OptionSetDescription(prog.Stage),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
	}
	if prog.Total != p.bar.GetMax64() {
		p.bar.ChangeMax64(prog.Total)
	}
	_ = p.bar.Set64(prog.Completed)
}

// Finish closes the bar of the last stage.
func (p *ProgressBar) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		_ = p.bar.Finish()
		p.bar = nil
	}
}
