package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

type buildProgressReporter struct {
	mu      sync.Mutex
	out     io.Writer
	enabled bool
	label   string
	total   int
	start   time.Time
	spinner int
	lastLen int
}

func newBuildProgressReporter(label string, total int, quiet bool) *buildProgressReporter {
	stat, err := os.Stderr.Stat()
	enabled := err == nil && (stat.Mode()&os.ModeCharDevice) != 0 && !quiet
	return &buildProgressReporter{
		out:     os.Stderr,
		enabled: enabled,
		label:   label,
		total:   total,
		start:   time.Now(),
	}
}

func (r *buildProgressReporter) Update(file string, count int) {
	if !r.enabled {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	frames := [4]string{"-", "\\", "|", "/"}
	frame := frames[r.spinner%len(frames)]
	r.spinner++
	file = strings.TrimSpace(file)
	if len(file) > 88 {
		file = "..." + file[len(file)-85:]
	}

	status := fmt.Sprintf("%s %s %d building %s", frame, r.label, count, file)
	if r.total > 0 {
		status = fmt.Sprintf("%s %s %d/%d building %s", frame, r.label, count, r.total, file)
	}
	r.printStatus(status)
}

func (r *buildProgressReporter) Done(count int) {
	if !r.enabled {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	elapsed := time.Since(r.start).Round(time.Millisecond)
	status := fmt.Sprintf("%s complete (%d files in %s)", r.label, count, elapsed)
	r.printStatus(status)
	fmt.Fprintln(r.out)
}

func (r *buildProgressReporter) printStatus(status string) {
	if r.lastLen > len(status) {
		status = status + strings.Repeat(" ", r.lastLen-len(status))
	}
	r.lastLen = len(status)
	fmt.Fprintf(r.out, "\r%s", status)
}
