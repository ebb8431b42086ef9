package progress

import (
	"fmt"
	"io"
	"os"

	"github.com/mitchellh/colorstring"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// ConsoleReporter renders transfer progress to a terminal using
// schollz/progressbar, falling back to silent operation when the output
// isn't a terminal (piped logs, a service running headless) — checked via
// golang.org/x/term, matching goshare's indirect pull of that package for
// exactly this kind of terminal-capability check.
type ConsoleReporter struct {
	label  string
	out    io.Writer
	meter  *Meter
	bar    *progressbar.ProgressBar
	isTerm bool
}

// NewConsoleReporter returns a reporter that labels its bar with label and
// writes to out (os.Stdout in normal operation).
func NewConsoleReporter(label string, out *os.File) *ConsoleReporter {
	isTerm := term.IsTerminal(int(out.Fd()))
	return &ConsoleReporter{label: label, out: out, meter: NewMeter(), isTerm: isTerm}
}

func (c *ConsoleReporter) Start(total int64) {
	c.meter.Start(total)
	if !c.isTerm {
		return
	}
	c.bar = progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(colorstring.Color("[cyan]"+c.label+"[reset]")),
		progressbar.OptionSetWriter(c.out),
		progressbar.OptionShowBytes(true),
		progressbar.OptionClearOnFinish(),
	)
}

func (c *ConsoleReporter) Advance(n int) {
	c.meter.Add(n)
	if c.bar != nil {
		_ = c.bar.Add(n)
	}
}

func (c *ConsoleReporter) Done() {
	if c.bar != nil {
		_ = c.bar.Finish()
		return
	}
	if !c.isTerm {
		return
	}
	fmt.Fprintln(c.out, colorstring.Color("[green]transfer complete[reset]"))
}
