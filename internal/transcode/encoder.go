// Package transcode drives an external transcoding process through a pair of
// byte pipes.
//
// An Encoder owns the child process, the write end of its stdin, and the
// read end of its stdout. Reads and writes each run on their own dedicated
// sequential queue: successive reads never interleave with each other,
// successive writes never interleave their byte streams, and the two
// directions are independent so feeding input never stalls behind draining
// output.
package transcode

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
)

// ChunkSize is the most bytes a single Read delivers: one Opus-frame-sized
// unit of encoded output.
const ChunkSize = 320

// ReadFunc receives the result of one Read. done is true once the process
// has exited and its output is fully drained; data is nil in that case.
// The callback runs on the encoder's read queue, so it must not block on
// another Read.
type ReadFunc func(done bool, data []byte, err error)

// Encoder wraps a running transcoding process. It is created with New and
// must be released with Close; Close is idempotent. Using Read or Write
// after Close is a programmer error and panics.
type Encoder struct {
	cmd    *exec.Cmd
	stdin  *os.File
	stdout *os.File

	readTasks  chan func()
	writeTasks chan func()
	stop       chan struct{}

	closed    atomic.Bool
	stdinOnce sync.Once

	waitOnce sync.Once
	waitErr  error
}

// New starts cmd with fresh stdin/stdout pipes and returns an encoder that
// owns all three. cmd must not have been started and must not have Stdin or
// Stdout already set.
func New(cmd *exec.Cmd) (*Encoder, error) {
	if cmd.Process != nil {
		return nil, errors.New("transcode: command already started")
	}
	if cmd.Stdin != nil || cmd.Stdout != nil {
		return nil, errors.New("transcode: command stdin/stdout already wired")
	}

	inRead, inWrite, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create input pipe: %w", err)
	}
	outRead, outWrite, err := os.Pipe()
	if err != nil {
		inRead.Close()
		inWrite.Close()
		return nil, fmt.Errorf("failed to create output pipe: %w", err)
	}

	cmd.Stdin = inRead
	cmd.Stdout = outWrite
	if err := cmd.Start(); err != nil {
		inRead.Close()
		inWrite.Close()
		outRead.Close()
		outWrite.Close()
		return nil, fmt.Errorf("failed to start %s: %w", cmd.Path, err)
	}

	// The child holds its own copies of these ends.
	inRead.Close()
	outWrite.Close()

	e := &Encoder{
		cmd:        cmd,
		stdin:      inWrite,
		stdout:     outRead,
		readTasks:  make(chan func(), 16),
		writeTasks: make(chan func(), 16),
		stop:       make(chan struct{}),
	}
	go e.drain(e.readTasks)
	go e.drain(e.writeTasks)
	return e, nil
}

// drain runs queued tasks in order until Close releases the queue. The task
// channels themselves are never closed, so a caller racing Close can only
// trip the explicit fail-fast guards, never a send on a closed channel.
func (e *Encoder) drain(tasks chan func()) {
	for {
		select {
		case task := <-tasks:
			task()
		case <-e.stop:
			return
		}
	}
}

// Read issues one asynchronous read of up to ChunkSize bytes of encoded
// output. fn is invoked at most once: with data on success, with an error on
// a failed read, or with done=true once output is exhausted. A read still in
// flight when Close is called is discarded and its callback never runs.
// Read is one-shot, not a subscription: continuous draining means re-arming
// with another Read after each callback, which is safe to do from inside the
// callback itself.
func (e *Encoder) Read(fn ReadFunc) {
	if e.closed.Load() {
		panic("transcode: Read on closed Encoder")
	}
	e.readTasks <- func() {
		if e.closed.Load() {
			return
		}
		buf := make([]byte, ChunkSize)
		n, err := e.stdout.Read(buf)
		switch {
		case errors.Is(err, io.EOF):
			fn(true, nil, nil)
		case err != nil:
			if e.closed.Load() {
				return
			}
			fn(false, nil, err)
		default:
			fn(false, buf[:n], nil)
		}
	}
}

// Write queues data to be fed to the process. The write loop blocks until
// the OS accepts each chunk, retrying interrupted calls; any other failure
// abandons the remaining bytes. done, if non-nil, runs after the loop either
// way. Because the write queue is sequential, concurrent Writes land in call
// order and never interleave their bytes.
func (e *Encoder) Write(data []byte, done func()) {
	if e.closed.Load() {
		panic("transcode: Write on closed Encoder")
	}
	buf := make([]byte, len(data))
	copy(buf, data)

	e.writeTasks <- func() {
		rem := buf
		for len(rem) > 0 {
			n, err := e.stdin.Write(rem)
			if n > 0 {
				rem = rem[n:]
			}
			if err != nil {
				if errors.Is(err, syscall.EINTR) {
					continue
				}
				slog.Debug("transcode write abandoned", "remaining", len(rem), slog.Any("error", err))
				break
			}
			if n <= 0 {
				break
			}
		}
		if done != nil {
			done()
		}
	}
}

// FinishEncoding closes only the input side, signaling end-of-input so the
// process can flush and exit once its buffers drain. The close lands on the
// write queue, so every Write issued before this call is flushed first. The
// caller keeps reading output until Read reports done. Writes queued after
// this point fail silently, like any terminal write error. A no-op after
// Close, which tears the input down itself.
func (e *Encoder) FinishEncoding() {
	if e.closed.Load() {
		return
	}
	e.writeTasks <- e.closeStdin
}

func (e *Encoder) closeStdin() {
	e.stdinOnce.Do(func() {
		if err := e.stdin.Close(); err != nil {
			slog.Debug("failed to close encoder input", slog.Any("error", err))
		}
	})
}

// Close tears the encoder down: it kills the process, closes the output
// pipe (discarding any in-flight read), blocks until the read queue has
// drained, and reaps the process. The second and later calls are no-ops.
func (e *Encoder) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	if err := e.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		slog.Debug("failed to kill transcoder", slog.Any("error", err))
	}
	// Unblocks a read stuck on an idle pipe; the pending task sees the
	// closed flag and discards its result.
	e.stdout.Close()
	e.await(e.readTasks)

	err := e.reap()
	if err != nil {
		// A killed process reports an unclean exit. That is the
		// expected shape of a forced teardown, not a failure.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			err = nil
		}
	}

	e.await(e.writeTasks)
	e.closeStdin()
	close(e.stop)
	return err
}

func (e *Encoder) reap() error {
	e.waitOnce.Do(func() {
		e.waitErr = e.cmd.Wait()
	})
	return e.waitErr
}

// Closed reports whether Close has been called. Callers that race a
// producer against Close can use it to stop feeding before Write's
// fail-fast guard trips.
func (e *Encoder) Closed() bool {
	return e.closed.Load()
}

// await blocks until every task queued before it has run.
func (e *Encoder) await(tasks chan func()) {
	done := make(chan struct{})
	tasks <- func() { close(done) }
	<-done
}

// Wait blocks until the process exits of its own accord, without tearing
// anything down. Useful after FinishEncoding when draining to completion.
func (e *Encoder) Wait() error {
	return e.reap()
}
