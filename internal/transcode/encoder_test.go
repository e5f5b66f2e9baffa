package transcode_test

import (
	"bytes"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/voxgate/voxgate/internal/transcode"
)

func newCatEncoder(t *testing.T) *transcode.Encoder {
	t.Helper()
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}
	enc, err := transcode.New(exec.Command("cat"))
	if err != nil {
		t.Fatalf("failed to start cat: %v", err)
	}
	return enc
}

// drainAll re-arms Read until done, collecting every chunk.
func drainAll(t *testing.T, enc *transcode.Encoder) []byte {
	t.Helper()

	type result struct {
		done bool
		data []byte
		err  error
	}
	results := make(chan result, 1)

	var out bytes.Buffer
	deadline := time.After(10 * time.Second)
	for {
		enc.Read(func(done bool, data []byte, err error) {
			results <- result{done: done, data: data, err: err}
		})
		select {
		case r := <-results:
			if r.err != nil {
				t.Fatalf("read failed: %v", r.err)
			}
			if r.done {
				return out.Bytes()
			}
			if len(r.data) == 0 || len(r.data) > transcode.ChunkSize {
				t.Fatalf("read delivered %d bytes, want 1..%d", len(r.data), transcode.ChunkSize)
			}
			out.Write(r.data)
		case <-deadline:
			t.Fatal("timed out draining encoder output")
		}
	}
}

func TestRoundTripThroughIdentityProcess(t *testing.T) {
	enc := newCatEncoder(t)
	defer enc.Close()

	input := make([]byte, 1000)
	for i := range input {
		input[i] = byte(i % 251)
	}

	// Two writes must drain in call order with no interleaving.
	written := make(chan struct{})
	enc.Write(input[:400], nil)
	enc.Write(input[400:], func() { close(written) })

	select {
	case <-written:
	case <-time.After(5 * time.Second):
		t.Fatal("write completion handler never ran")
	}

	enc.FinishEncoding()
	got := drainAll(t, enc)

	if diff := cmp.Diff(input, got); diff != "" {
		t.Fatalf("output differs from input (-want +got):\n%s", diff)
	}

	if err := enc.Wait(); err != nil {
		t.Fatalf("process exited uncleanly after input EOF: %v", err)
	}
}

func TestReadChunksAreBounded(t *testing.T) {
	enc := newCatEncoder(t)
	defer enc.Close()

	big := bytes.Repeat([]byte{0xAB}, 3*transcode.ChunkSize)
	enc.Write(big, nil)
	enc.FinishEncoding()

	got := drainAll(t, enc)
	if !bytes.Equal(big, got) {
		t.Fatalf("round trip lost or reordered bytes: got %d bytes", len(got))
	}
}

// The end-of-input close must land behind pending writes, not race them on
// the caller's goroutine.
func TestFinishEncodingSequencesAfterPendingWrites(t *testing.T) {
	enc := newCatEncoder(t)
	defer enc.Close()

	input := make([]byte, 1000)
	for i := range input {
		input[i] = byte(i % 251)
	}

	// No waiting for write completion before signaling end-of-input.
	enc.Write(input, nil)
	enc.FinishEncoding()

	got := drainAll(t, enc)
	if diff := cmp.Diff(input, got); diff != "" {
		t.Fatalf("bytes lost to an early input close (-want +got):\n%s", diff)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	enc := newCatEncoder(t)

	if err := enc.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

func TestCloseDiscardsInFlightRead(t *testing.T) {
	enc := newCatEncoder(t)

	fired := make(chan struct{}, 1)
	// No input ever arrives, so this read blocks until Close cancels it.
	enc.Read(func(done bool, data []byte, err error) {
		fired <- struct{}{}
	})

	time.Sleep(50 * time.Millisecond)
	if err := enc.Close(); err != nil {
		t.Fatalf("Close failed with a read in flight: %v", err)
	}

	select {
	case <-fired:
		t.Fatal("discarded read still invoked its callback")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestUseAfterClosePanics(t *testing.T) {
	enc := newCatEncoder(t)
	if err := enc.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	assertPanics := func(name string, fn func()) {
		defer func() {
			v := recover()
			if v == nil {
				t.Errorf("%s after Close did not panic", name)
				return
			}
			// The fail-fast guard is the only panic surface; internal
			// teardown must never leak through as a different panic.
			msg, ok := v.(string)
			if !ok || !strings.Contains(msg, "closed Encoder") {
				t.Errorf("%s after Close panicked with %v, want the closed-Encoder guard", name, v)
			}
		}()
		fn()
	}

	assertPanics("Read", func() { enc.Read(func(bool, []byte, error) {}) })
	assertPanics("Write", func() { enc.Write([]byte{1}, nil) })
}

func TestWriteAfterFinishIsSilentlyAbandoned(t *testing.T) {
	enc := newCatEncoder(t)
	defer enc.Close()

	flushed := make(chan struct{})
	enc.Write([]byte("before"), func() { close(flushed) })
	<-flushed
	enc.FinishEncoding()

	done := make(chan struct{})
	enc.Write([]byte("after"), func() { close(done) })
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("done handler not invoked for abandoned write")
	}

	got := drainAll(t, enc)
	if string(got) != "before" {
		t.Fatalf("output %q, want only the bytes written before FinishEncoding", got)
	}
}
