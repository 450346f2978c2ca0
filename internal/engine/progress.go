package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/fatih/color"
)

const progressInterval = 100 * time.Millisecond

// startProgress draws a one-line status on the progress writer until the
// returned function is called. Without a writer it does nothing.
func (e *Engine) startProgress() (stop func()) {
	if e.progress == nil {
		return func() {}
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(progressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				// clear the line
				fmt.Fprint(e.progress, "\r\033[K")
				return
			case <-ticker.C:
				fmt.Fprint(e.progress, "\r\033[K"+e.progressLine())
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
}

func (e *Engine) progressLine() string {
	cyan := color.New(color.FgCyan).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()

	q := e.sched.Queue()
	return fmt.Sprintf("%s queue %s  units %s  cases %s  flags %s",
		gray("→"),
		cyan(fmt.Sprintf("%d/%d", q.Len(), q.Capacity())),
		cyan(e.selected.Load()),
		cyan(e.evaluated.Load()),
		green(len(e.results.Flags())),
	)
}
