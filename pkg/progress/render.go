package progress

import (
	"fmt"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"io"
	"os"
	"strings"
	"unicode/utf8"
)

const (
	barWidth  = 30
	nameWidth = 40
)

type renderer struct {
	out       io.Writer
	ansi      bool
	aggregate bool
	lines     int
	last      string
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func newRenderer(out io.Writer, aggregate bool) *renderer {
	return &renderer{out: out, ansi: isTerminal(out), aggregate: aggregate}
}

func truncate(name string, width int) string {
	if utf8.RuneCountInString(name) <= width {
		return name + strings.Repeat(" ", width-utf8.RuneCountInString(name))
	}
	runes := []rune(name)
	return string(runes[:width-3]) + "..."
}

func bar(progress float64) string {
	filled := int(progress * barWidth)
	filled = max(0, min(filled, barWidth))
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", barWidth-filled) + "]"
}

func fileLine(f *File) string {
	state := ""
	switch {
	case f.Failed:
		state = "failed"
	case f.Completed:
		state = "done"
	case f.Speed > 0:
		state = humanize.Bytes(uint64(f.Speed)) + "/s"
	}
	size := "?"
	if f.TotalBytes > 0 {
		size = fmt.Sprintf("%s / %s", humanize.Bytes(uint64(f.CompletedBytes)), humanize.Bytes(uint64(f.TotalBytes)))
	}
	return fmt.Sprintf("%s %s %5.1f%%  %s  %s", truncate(f.Name, nameWidth), bar(f.Progress), f.Progress*100, size, state)
}

// AggregateLine summarizes all tasks on one line.
func AggregateLine(files []*File) string {
	var total, done, speed int64
	completed, failed := 0, 0
	for _, f := range files {
		total += f.TotalBytes
		done += f.CompletedBytes
		speed += f.Speed
		if f.Completed {
			completed++
		}
		if f.Failed {
			failed++
		}
	}
	pct := 0.0
	if total > 0 {
		pct = float64(done) / float64(total) * 100
	}
	line := fmt.Sprintf("%d/%d files complete, %s / %s (%.1f%%)",
		completed, len(files), humanize.Bytes(uint64(done)), humanize.Bytes(uint64(total)), pct)
	if speed > 0 {
		line += fmt.Sprintf(", %s/s", humanize.Bytes(uint64(speed)))
	}
	if failed > 0 {
		line += fmt.Sprintf(", %d failed", failed)
	}
	return line
}

func (r *renderer) render(files []*File) {
	if r.aggregate || !r.ansi {
		line := AggregateLine(files)
		if r.ansi {
			_, _ = fmt.Fprintf(r.out, "\r\033[K%s", line)
			return
		}
		if line != r.last {
			_, _ = fmt.Fprintln(r.out, line)
			r.last = line
		}
		return
	}

	var b strings.Builder
	if r.lines > 0 {
		fmt.Fprintf(&b, "\033[%dA", r.lines)
	}
	for _, f := range files {
		b.WriteString("\r\033[K")
		b.WriteString(fileLine(f))
		b.WriteByte('\n')
	}
	r.lines = len(files)
	_, _ = io.WriteString(r.out, b.String())
}

func (r *renderer) finish(files []*File) {
	if r.ansi && r.aggregate {
		_, _ = fmt.Fprintln(r.out)
	}
}
