package opus_test

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/voxgate/voxgate/internal/opus"
)

func TestFrameRoundTrip(t *testing.T) {
	frames := [][]byte{
		{0xFC, 0x01, 0x02},
		bytes.Repeat([]byte{0x7F}, 960),
		{},
		{0x00},
	}

	var buf bytes.Buffer
	writer := opus.NewFrameWriter(&buf)
	for _, frame := range frames {
		if err := writer.WriteFrame(frame); err != nil {
			t.Fatalf("WriteFrame failed: %v", err)
		}
	}

	reader := opus.NewFrameReader(&buf)
	for i, want := range frames {
		got, err := reader.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame %d failed: %v", i, err)
		}
		if diff := cmp.Diff(want, got, cmp.Comparer(bytes.Equal)); diff != "" {
			t.Errorf("frame %d differs (-want +got):\n%s", i, diff)
		}
	}

	if _, err := reader.ReadFrame(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF after last frame, got %v", err)
	}
}

func TestWriteFrameRejectsOversizedFrame(t *testing.T) {
	writer := opus.NewFrameWriter(io.Discard)
	if err := writer.WriteFrame(make([]byte, 1<<16)); err == nil {
		t.Fatal("expected an error for a frame longer than the length prefix allows")
	}
}

func TestReadFrameTruncatedPayload(t *testing.T) {
	// Length prefix promises 10 bytes, only 3 follow.
	data := []byte{0x0A, 0x00, 0x01, 0x02, 0x03}
	reader := opus.NewFrameReader(bytes.NewReader(data))
	if _, err := reader.ReadFrame(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected io.ErrUnexpectedEOF for truncated frame, got %v", err)
	}
}
