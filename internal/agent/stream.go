package agent

import (
	"context"
	"errors"
	"io"
	"sync"
)

// ── SliceStream ─────────────────────────────────────────────

// SliceStream replays a fixed list of chunks.
type SliceStream struct {
	mu     sync.Mutex
	chunks []Chunk
	next   int
	closed bool
}

// NewSliceStream creates a stream that yields chunks in order, then io.EOF.
func NewSliceStream(chunks ...Chunk) *SliceStream {
	return &SliceStream{chunks: chunks}
}

func (s *SliceStream) Recv() (Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.next >= len(s.chunks) {
		return Chunk{}, io.EOF
	}
	c := s.chunks[s.next]
	s.next++
	return c, nil
}

func (s *SliceStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (s *SliceStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Consumed returns how many chunks Recv has handed out.
func (s *SliceStream) Consumed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// ── Pipe ────────────────────────────────────────────────────

// EmitFunc delivers one chunk to the reader of a pipe. It fails once the
// reader has gone away.
type EmitFunc func(Chunk) error

// Pipe runs a producer in its own goroutine and exposes what it emits as a
// Stream. Closing the stream cancels the producer's context.
type Pipe struct {
	ctx    context.Context
	cancel context.CancelFunc
	chunks chan Chunk

	errMu  sync.Mutex
	runErr error
}

// NewPipe starts run with a context derived from ctx.
func NewPipe(ctx context.Context, run func(ctx context.Context, emit EmitFunc) error) *Pipe {
	cctx, cancel := context.WithCancel(ctx)
	p := &Pipe{
		ctx:    cctx,
		cancel: cancel,
		chunks: make(chan Chunk, 32),
	}
	go func() {
		defer close(p.chunks)
		err := run(cctx, p.emit)
		p.errMu.Lock()
		p.runErr = err
		p.errMu.Unlock()
	}()
	return p
}

func (p *Pipe) emit(c Chunk) error {
	select {
	case <-p.ctx.Done():
		return p.ctx.Err()
	case p.chunks <- c:
		return nil
	}
}

func (p *Pipe) Recv() (Chunk, error) {
	select {
	case c, ok := <-p.chunks:
		if ok {
			return c, nil
		}
		p.errMu.Lock()
		err := p.runErr
		p.errMu.Unlock()
		if err != nil {
			return Chunk{}, err
		}
		return Chunk{}, io.EOF
	case <-p.ctx.Done():
		// Prefer anything the producer already queued.
		select {
		case c, ok := <-p.chunks:
			if ok {
				return c, nil
			}
		default:
		}
		err := p.ctx.Err()
		if err == nil {
			err = context.Canceled
		}
		return Chunk{}, err
	}
}

func (p *Pipe) Close() error {
	p.cancel()
	return nil
}

// IsCanceled reports whether err came from a cancelled or expired context.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
