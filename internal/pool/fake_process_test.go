package pool

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"
	"syscall"

	"github.com/Aman-CERP/codectx/internal/workerproto"
)

func jsonUnmarshalTest(raw []byte, v any) error {
	return json.Unmarshal(raw, v)
}

// fakeProcess is an in-memory double for Process that speaks the worker
// wire protocol over io.Pipes, letting pool/worker tests run without
// exec'ing a real embedding runtime binary (the runtime is an external
// collaborator per spec.md §1).
type fakeProcess struct {
	toWorker   *io.PipeWriter // pool writes here (Stdin)
	fromWorker *io.PipeReader // pool reads here (Stdout)

	workerIn  *io.PipeReader // fake worker reads incoming frames here
	workerOut *io.PipeWriter // fake worker writes replies here

	mu      sync.Mutex
	killed  bool
	doneCh  chan struct{}
	onClose func()
}

// behavior decides how the fake worker responds to one incoming frame.
type behavior func(w *fakeWorkerSide, typ workerproto.Type, raw []byte)

// fakeWorkerSide is handed to a behavior function to let it write replies.
type fakeWorkerSide struct {
	out *io.PipeWriter
}

func (f *fakeWorkerSide) send(v any) {
	data, err := workerproto.Marshal(v)
	if err != nil {
		return
	}
	_, _ = f.out.Write(data)
}

// crashOut closes the reply pipe without responding, simulating the
// worker process exiting mid-batch.
func (f *fakeWorkerSide) crashOut() {
	_ = f.out.Close()
}

func newFakeProcess(b behavior) *fakeProcess {
	toWorkerR, toWorkerW := io.Pipe()
	fromWorkerR, fromWorkerW := io.Pipe()

	p := &fakeProcess{
		toWorker:   toWorkerW,
		fromWorker: fromWorkerR,
		workerIn:   toWorkerR,
		workerOut:  fromWorkerW,
		doneCh:     make(chan struct{}),
	}

	go p.runWorkerLoop(b)
	return p
}

func (p *fakeProcess) runWorkerLoop(b behavior) {
	defer close(p.doneCh)
	defer p.workerOut.Close()

	side := &fakeWorkerSide{out: p.workerOut}
	scanner := bufio.NewScanner(p.workerIn)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		typ, err := workerproto.DiscriminateType(line)
		if err != nil {
			continue
		}
		b(side, typ, line)
	}
}

func (p *fakeProcess) Stdin() io.WriteCloser { return p.toWorker }
func (p *fakeProcess) Stdout() io.Reader     { return p.fromWorker }

func (p *fakeProcess) Signal(sig syscall.Signal) error {
	if sig == syscall.SIGKILL {
		return p.Kill()
	}
	return nil
}

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.killed {
		return nil
	}
	p.killed = true
	_ = p.workerIn.Close()
	_ = p.toWorker.Close()
	return nil
}

func (p *fakeProcess) Wait() error {
	<-p.doneCh
	return nil
}

// fakeSpawner hands out fake processes built from a behavior factory, one
// call per spawned worker (so each worker can have independent state, e.g.
// "crash on first batch").
type fakeSpawner struct {
	next func(id int) behavior
	n    int
	mu   sync.Mutex
}

func (s *fakeSpawner) Spawn(ctx context.Context) (Process, error) {
	s.mu.Lock()
	id := s.n
	s.n++
	s.mu.Unlock()
	return newFakeProcess(s.next(id)), nil
}

// alwaysInitOK acknowledges init and echoes back a deterministic
// zero-offset vector per text for embed_batch requests.
func alwaysInitOK(_ int) behavior {
	return func(w *fakeWorkerSide, typ workerproto.Type, raw []byte) {
		standardReply(w, typ, raw)
	}
}

// crashOnFirstBatch acknowledges init normally, then simulates the worker
// process exiting (S2) the moment it receives an embed_batch frame.
func crashOnFirstBatch() behavior {
	return func(w *fakeWorkerSide, typ workerproto.Type, raw []byte) {
		switch typ {
		case workerproto.TypeInit:
			w.send(workerproto.InitComplete{Type: workerproto.TypeInitComplete, Success: true})
		case workerproto.TypeEmbedBatch:
			w.crashOut()
		}
	}
}

func standardReply(w *fakeWorkerSide, typ workerproto.Type, raw []byte) {
	switch typ {
	case workerproto.TypeInit:
		w.send(workerproto.InitComplete{Type: workerproto.TypeInitComplete, Success: true})
	case workerproto.TypeEmbedBatch:
		var m workerproto.EmbedBatch
		if err := jsonUnmarshalTest(raw, &m); err != nil {
			return
		}
		embeddings := make([][]float32, len(m.Texts))
		for i := range m.Texts {
			embeddings[i] = validVector()
		}
		w.send(workerproto.EmbedComplete{
			Type: workerproto.TypeEmbedComplete, BatchID: m.BatchID, Success: true,
			Embeddings: embeddings, Stats: &workerproto.BatchStats{DurationMs: 10},
		})
	case workerproto.TypeAbort:
		var m workerproto.Abort
		_ = jsonUnmarshalTest(raw, &m)
		w.send(workerproto.AbortAck{Type: workerproto.TypeAbortAck, BatchID: m.BatchID})
	}
}
