package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/Aman-CERP/codectx/internal/orchestrator"
)

// progressPrinter renders orchestrator.Checkpoint snapshots to out: a
// carriage-return-updated single line on a terminal, or, when stdout isn't a
// TTY (CI logs, piped output), one log line each time the rendered line
// changes (a new stage or new counts).
type progressPrinter struct {
	out      io.Writer
	isTTY    bool
	lastLine string
}

func newProgressPrinter(out *os.File) *progressPrinter {
	return &progressPrinter{out: out, isTTY: isatty.IsTerminal(out.Fd())}
}

func (p *progressPrinter) Render(cp orchestrator.Checkpoint) {
	line := formatCheckpoint(cp)
	if p.isTTY {
		fmt.Fprintf(p.out, "\r\033[K%s", line)
		return
	}
	if line != p.lastLine {
		fmt.Fprintln(p.out, line)
		p.lastLine = line
	}
}

func (p *progressPrinter) Done() {
	if p.isTTY {
		fmt.Fprintln(p.out)
	}
}

func formatCheckpoint(cp orchestrator.Checkpoint) string {
	switch cp.Stage {
	case orchestrator.StageComplete:
		return fmt.Sprintf("[%s] files=%d/%d chunks=%d/%d", cp.Stage,
			cp.FilesProcessed, cp.FilesTotal, cp.ChunksEmbedded, cp.ChunksTotal)
	case orchestrator.StageEmbedding:
		return fmt.Sprintf("[%s] files=%d/%d chunks=%d/%d", cp.Stage,
			cp.FilesProcessed, cp.FilesTotal, cp.ChunksEmbedded, cp.ChunksTotal)
	default:
		return fmt.Sprintf("[%s] files=%d/%d", cp.Stage, cp.FilesProcessed, cp.FilesTotal)
	}
}

// pollCheckpoint renders bg's checkpoint on a fixed interval until done
// fires, giving the terminal a live progress line without the indexer
// itself knowing anything about display.
func pollCheckpoint(p *progressPrinter, checkpoint func() orchestrator.Checkpoint, done <-chan struct{}) {
	ticker := time.NewTicker(150 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			p.Render(checkpoint())
			p.Done()
			return
		case <-ticker.C:
			p.Render(checkpoint())
		}
	}
}
