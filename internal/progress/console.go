package progress

import (
	"fmt"
	"os"

	"github.com/telsin/riptide/internal/output"
	"github.com/telsin/riptide/internal/utils"
)

// ConsoleRenderer draws a single redrawn progress line on stdout. It is the
// interactive observer variant; quiet runs simply don't attach it.
type ConsoleRenderer struct {
	out      *os.File
	barWidth int
	drew     bool
}

func NewConsoleRenderer() *ConsoleRenderer {
	width := output.TerminalWidth()
	barWidth := 30
	if width < 60 {
		barWidth = 10
	}
	return &ConsoleRenderer{out: os.Stdout, barWidth: barWidth}
}

func (r *ConsoleRenderer) Notify(ev Event) {
	switch ev.Phase {
	case PhaseInitializing:
		fmt.Fprintln(r.out, output.FDetail(fmt.Sprintf("%s preparing transfer", output.StyleSymbols["arrow"])))
	case PhaseDownloading:
		output.ClearLine(r.out)
		fmt.Fprint(r.out, r.renderLine(ev))
		r.drew = true
	case PhaseCompleted:
		r.endLine()
		fmt.Fprintln(r.out, output.FSuccess(fmt.Sprintf("%s downloaded %s at %s",
			output.StyleSymbols["pass"], utils.FormatBytes(uint64(ev.Downloaded)), utils.FormatSpeed(ev.Rate))))
	case PhaseError:
		r.endLine()
		fmt.Fprintln(r.out, output.FError(fmt.Sprintf("%s %s", output.StyleSymbols["fail"], ev.Message)))
	}
}

func (r *ConsoleRenderer) renderLine(ev Event) string {
	if ev.Total > 0 {
		return fmt.Sprintf("%s %s %s %s ETA %s",
			output.ProgressBar(ev.Downloaded, ev.Total, r.barWidth),
			output.StyleSymbols["dot"],
			utils.FormatSpeed(ev.Rate),
			output.StyleSymbols["dot"],
			formatETA(ev.ETASeconds))
	}
	return output.FDebug(fmt.Sprintf("%s %s %s %s",
		output.StyleSymbols["bullet"],
		utils.FormatBytes(uint64(ev.Downloaded)),
		output.StyleSymbols["dot"],
		utils.FormatSpeed(ev.Rate)))
}

func (r *ConsoleRenderer) endLine() {
	if r.drew {
		fmt.Fprintln(r.out)
		r.drew = false
	}
}

func formatETA(seconds float64) string {
	s := int64(seconds)
	switch {
	case s <= 0:
		return "0s"
	case s < 60:
		return fmt.Sprintf("%ds", s)
	case s < 3600:
		return fmt.Sprintf("%dm %ds", s/60, s%60)
	default:
		return fmt.Sprintf("%dh %dm", s/3600, (s%3600)/60)
	}
}
