package sampler

import (
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/CraigKelly/jsdm/buffer"
)

// Transient is the save slot reported for iterations that are not kept
const Transient = -1

// A Reporter is told about chain progress every VerboseEvery iterations.
// iter is the zero-based iteration just finished.
type Reporter interface {
	Progress(iter, total, slot int)
}

// TextReporter rewrites a single status line on a terminal
type TextReporter struct {
	out   io.Writer
	clock func() time.Time
	start time.Time
	times *buffer.CircularFloat
	every int
}

// NewTextReporter writes to out. The rate shown is averaged over the last
// window reports, every iterations apart.
func NewTextReporter(out io.Writer, every, window int) *TextReporter {
	if every < 1 {
		every = 1
	}
	return &TextReporter{
		out:   out,
		clock: time.Now,
		times: buffer.NewCircularFloat(window),
		every: every,
	}
}

// Progress implements Reporter
func (t *TextReporter) Progress(iter, total, slot int) {
	now := t.clock()
	if t.start.IsZero() {
		t.start = now
	}
	t.times.Add(now.Sub(t.start).Seconds())

	status := "transient"
	if slot != Transient {
		status = fmt.Sprintf("saving %d", slot)
	}
	fmt.Fprintf(t.out, "\riteration %d of %d %s (%.1f it/s)", iter, total, status, t.times.Rate(float64(t.every)))
	if iter+1 >= total {
		fmt.Fprintln(t.out)
	}
}

// LogReporter sends progress to a zap logger at debug level
type LogReporter struct {
	Log   *zap.Logger
	Chain int
}

// Progress implements Reporter
func (l LogReporter) Progress(iter, total, slot int) {
	l.Log.Debug("Chain progress",
		zap.Int("chain", l.Chain),
		zap.Int("iteration", iter),
		zap.Int("total", total),
		zap.Bool("transient", slot == Transient),
		zap.Int("slot", slot),
	)
}

// MultiReporter fans progress out to every member
type MultiReporter []Reporter

// Progress implements Reporter
func (m MultiReporter) Progress(iter, total, slot int) {
	for _, r := range m {
		if r != nil {
			r.Progress(iter, total, slot)
		}
	}
}
