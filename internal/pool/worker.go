package pool

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"syscall"
	"time"

	"github.com/Aman-CERP/codectx/internal/workerproto"
)

// WorkerState is a position in the per-worker lifecycle (spec.md §4.1):
// Spawning -> Initializing -> Ready <-> Busy -> {Crashed, ShuttingDown} -> Terminated.
type WorkerState int

const (
	StateSpawning WorkerState = iota
	StateInitializing
	StateReady
	StateBusy
	StateCrashed
	StateShuttingDown
	StateTerminated
)

func (s WorkerState) String() string {
	switch s {
	case StateSpawning:
		return "spawning"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateBusy:
		return "busy"
	case StateCrashed:
		return "crashed"
	case StateShuttingDown:
		return "shutting_down"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

const (
	initTimeout         = 60 * time.Second
	batchHardTimeout    = 120 * time.Second
	timeoutWarningAt    = 0.7 // fraction of batchHardTimeout
	abortGraceTimeout   = 1 * time.Second
	abortAckTimeout     = 5 * time.Second
	forceKillGraceAfter = 3 * time.Second
)

// pendingBatch tracks an in-flight embed_batch call awaiting completion.
type pendingBatch struct {
	done     chan *workerproto.EmbedComplete
	progress func(processed, total int)
	warned   func()
}

// worker owns one child process and the IPC framing to it.
type worker struct {
	id   int
	proc Process

	mu    sync.Mutex
	state WorkerState

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]*pendingBatch

	log *slog.Logger

	readerDone chan struct{}
	abortAcked map[string]chan struct{}

	initWaiters initWaiter
}

// initWaiter holds the single in-flight channel awaiting init_complete.
type initWaiter struct {
	mu sync.Mutex
	ch chan error
}

func (i *initWaiter) set(ch chan error) {
	i.mu.Lock()
	i.ch = ch
	i.mu.Unlock()
}

func (i *initWaiter) clear() {
	i.mu.Lock()
	i.ch = nil
	i.mu.Unlock()
}

func (i *initWaiter) get() chan error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.ch
}

func newWorker(id int, proc Process, log *slog.Logger) *worker {
	if log == nil {
		log = slog.Default()
	}
	w := &worker{
		id:         id,
		proc:       proc,
		state:      StateSpawning,
		pending:    make(map[string]*pendingBatch),
		abortAcked: make(map[string]chan struct{}),
		log:        log.With(slog.Int("worker_id", id)),
		readerDone: make(chan struct{}),
	}
	go w.readLoop()
	return w
}

func (w *worker) setState(s WorkerState) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

func (w *worker) getState() WorkerState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Init sends the init handshake and blocks until init_complete or timeout.
func (w *worker) Init(ctx context.Context) error {
	w.setState(StateInitializing)

	ctx, cancel := context.WithTimeout(ctx, initTimeout)
	defer cancel()

	result := make(chan error, 1)
	// init_complete carries no batch_id, so it is dispatched via this
	// dedicated single-slot waiter rather than the batch pending map.
	w.initWaiters.set(result)
	defer w.initWaiters.clear()

	if err := w.send(workerproto.Init{Type: workerproto.TypeInit}); err != nil {
		return fmt.Errorf("pool: worker %d init send: %w", w.id, err)
	}

	select {
	case err := <-result:
		if err != nil {
			w.setState(StateCrashed)
			return err
		}
		w.setState(StateReady)
		return nil
	case <-ctx.Done():
		w.setState(StateCrashed)
		return fmt.Errorf("pool: worker %d init timed out: %w", w.id, ctx.Err())
	case <-w.readerDone:
		w.setState(StateCrashed)
		return fmt.Errorf("pool: worker %d exited during init", w.id)
	}
}

// EmbedBatch dispatches one batch and blocks for its completion, invoking
// onProgress for progress frames and onWarning at the 70% timeout mark.
func (w *worker) EmbedBatch(ctx context.Context, batchID string, texts []string, onProgress func(processed, total int), onWarning func()) (*workerproto.EmbedComplete, error) {
	w.setState(StateBusy)

	pb := &pendingBatch{
		done:     make(chan *workerproto.EmbedComplete, 1),
		progress: onProgress,
		warned:   onWarning,
	}
	w.pendingMu.Lock()
	w.pending[batchID] = pb
	w.pendingMu.Unlock()
	defer func() {
		w.pendingMu.Lock()
		delete(w.pending, batchID)
		w.pendingMu.Unlock()
	}()

	msg := workerproto.EmbedBatch{
		Type:             workerproto.TypeEmbedBatch,
		BatchID:          batchID,
		Texts:            texts,
		TimeoutWarningMs: int64(float64(batchHardTimeout.Milliseconds()) * timeoutWarningAt),
	}
	if err := w.send(msg); err != nil {
		w.setState(StateCrashed)
		return nil, fmt.Errorf("pool: worker %d send batch %s: %w", w.id, batchID, err)
	}

	timer := time.NewTimer(batchHardTimeout)
	defer timer.Stop()

	select {
	case result := <-pb.done:
		w.setState(StateReady)
		return result, nil
	case <-ctx.Done():
		_ = w.Abort(batchID)
		w.setState(StateReady)
		return nil, ctx.Err()
	case <-timer.C:
		_ = w.Abort(batchID)
		w.setState(StateCrashed)
		return nil, fmt.Errorf("pool: worker %d batch %s hard timeout after %s", w.id, batchID, batchHardTimeout)
	case <-w.readerDone:
		w.setState(StateCrashed)
		return nil, fmt.Errorf("pool: worker %d exited mid-batch %s", w.id, batchID)
	}
}

// Abort sends an abort IPC frame for the given batch; it does not wait for
// the acknowledgement (abort_ack frames are awaited only by Shutdown).
func (w *worker) Abort(batchID string) error {
	return w.send(workerproto.Abort{Type: workerproto.TypeAbort, BatchID: batchID})
}

// Shutdown runs the graceful shutdown sequence for one worker (spec.md
// §4.1): abort IPC, SIGTERM after a short grace window, await the ack or
// exit, then SIGKILL stragglers.
func (w *worker) Shutdown(ctx context.Context) error {
	w.setState(StateShuttingDown)

	ackCh := make(chan struct{})
	w.pendingMu.Lock()
	w.abortAcked["*"] = ackCh
	w.pendingMu.Unlock()

	_ = w.send(workerproto.Abort{Type: workerproto.TypeAbort})

	select {
	case <-time.After(abortGraceTimeout):
	case <-ackCh:
	case <-w.readerDone:
		w.setState(StateTerminated)
		return nil
	}

	_ = w.proc.Signal(syscall.SIGTERM)

	select {
	case <-ackCh:
	case <-w.readerDone:
		w.setState(StateTerminated)
		return nil
	case <-time.After(abortAckTimeout):
	}

	select {
	case <-w.readerDone:
		w.setState(StateTerminated)
		return nil
	case <-time.After(forceKillGraceAfter):
	}

	_ = w.proc.Kill()
	<-w.readerDone
	w.setState(StateTerminated)
	return nil
}

func (w *worker) send(v any) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	data, err := workerproto.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.proc.Stdin().Write(data)
	return err
}

// readLoop discriminates and dispatches every line from the worker's
// stdout until the pipe closes (worker exit).
func (w *worker) readLoop() {
	defer close(w.readerDone)

	scanner := bufio.NewScanner(w.proc.Stdout())
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		typ, err := workerproto.DiscriminateType(line)
		if err != nil {
			w.log.Warn("pool: malformed worker frame", slog.String("error", err.Error()))
			continue
		}
		w.dispatch(typ, line)
	}
}

func (w *worker) dispatch(typ workerproto.Type, line []byte) {
	switch typ {
	case workerproto.TypeInitComplete:
		var m workerproto.InitComplete
		if err := json.Unmarshal(line, &m); err != nil {
			return
		}
		if ch := w.initWaiters.get(); ch != nil {
			if m.Success {
				ch <- nil
			} else {
				ch <- fmt.Errorf("pool: worker %d init failed: %s", w.id, m.Error)
			}
		}
	case workerproto.TypeProgress:
		var m workerproto.Progress
		if err := json.Unmarshal(line, &m); err != nil {
			return
		}
		w.pendingMu.Lock()
		pb := w.pending[m.BatchID]
		w.pendingMu.Unlock()
		if pb != nil && pb.progress != nil {
			pb.progress(m.Processed, m.Total)
		}
	case workerproto.TypeTimeoutWarning:
		var m workerproto.TimeoutWarning
		if err := json.Unmarshal(line, &m); err != nil {
			return
		}
		w.pendingMu.Lock()
		pb := w.pending[m.BatchID]
		w.pendingMu.Unlock()
		if pb != nil && pb.warned != nil {
			pb.warned()
		}
	case workerproto.TypeEmbedComplete:
		var m workerproto.EmbedComplete
		if err := json.Unmarshal(line, &m); err != nil {
			return
		}
		w.pendingMu.Lock()
		pb := w.pending[m.BatchID]
		w.pendingMu.Unlock()
		if pb != nil {
			pb.done <- &m
		}
	case workerproto.TypeAbortAck:
		var m workerproto.AbortAck
		if err := json.Unmarshal(line, &m); err != nil {
			return
		}
		w.pendingMu.Lock()
		ch, ok := w.abortAcked["*"]
		w.pendingMu.Unlock()
		if ok {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	case workerproto.TypeError:
		var m workerproto.ErrorMsg
		if err := json.Unmarshal(line, &m); err != nil {
			return
		}
		w.log.Warn("pool: worker reported error", slog.String("message", m.Message))
	default:
		w.log.Warn("pool: unknown worker message type ignored", slog.String("type", string(typ)))
	}
}
