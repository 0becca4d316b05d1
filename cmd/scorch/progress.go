package main

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// consoleListener renders job events for a terminal. Interactive sessions
// get a progress bar; pipes get plain status lines.
type consoleListener struct {
	mu          sync.Mutex
	interactive bool
	bar         *progressbar.ProgressBar
	status      string
	doneOK      bool
	doneMsg     string
}

func newConsoleListener() *consoleListener {
	fd := os.Stderr.Fd()
	return &consoleListener{
		interactive: isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd),
	}
}

func (l *consoleListener) OnLog(_, text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clearBar()
	fmt.Fprintln(os.Stderr, text)
}

func (l *consoleListener) OnStatus(_, text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status = text
	if l.interactive {
		if l.bar != nil {
			l.bar.Describe(text)
		}
		return
	}
	fmt.Fprintln(os.Stderr, text)
}

func (l *consoleListener) OnProgress(_ string, percent float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.interactive {
		return
	}
	if l.bar == nil {
		l.bar = progressbar.NewOptions(100,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription(l.status),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}
	_ = l.bar.Set(int(percent))
}

func (l *consoleListener) OnProgressInfo(_ string, bytesPerSecond float64, eta time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.bar == nil {
		return
	}
	if bytesPerSecond <= 0 {
		l.bar.Describe(l.status)
		return
	}
	l.bar.Describe(fmt.Sprintf("%s (%s, %s left)", l.status, formatRate(bytesPerSecond), formatETA(eta)))
}

func (l *consoleListener) OnDone(_ string, ok bool, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clearBar()
	l.doneOK = ok
	l.doneMsg = message
}

func (l *consoleListener) clearBar() {
	if l.bar != nil {
		_ = l.bar.Finish()
		l.bar = nil
	}
}

func (l *consoleListener) result() (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.doneOK, l.doneMsg
}
