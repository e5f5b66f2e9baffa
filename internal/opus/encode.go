package opus

import (
	"errors"
	"io"
	"os/exec"
	"sync"

	"github.com/jonas747/ogg"
	"github.com/voxgate/voxgate/internal/transcode"
)

// ffmpegArgs transcodes any audio on stdin to OGG/Opus on stdout: 48 kHz
// stereo, 20 ms frames, the shape Discord voice expects.
var ffmpegArgs = []string{
	"-i", "pipe:0",
	"-vn",
	"-map", "0:a",
	"-acodec", "libopus",
	"-f", "ogg",
	"-vbr", "on",
	"-compression_level", "10",
	"-ar", "48000",
	"-ac", "2",
	"-b:a", "64000",
	"-application", "audio",
	"-frame_duration", "20",
	"-packet_loss", "1",
	"-threads", "0",
	"pipe:1",
}

// Encode takes any audio as an io.Reader, runs FFmpeg to transcode it to
// Opus, and returns an io.Reader producing length-prefixed Opus frames. The
// caller should read until EOF and must Close the result to release the
// FFmpeg process.
func Encode(r io.Reader) (io.ReadCloser, error) {
	enc, err := transcode.New(exec.Command("ffmpeg", ffmpegArgs...))
	if err != nil {
		return nil, err
	}

	// Feed the source through the encoder's write queue. FinishEncoding
	// sequences behind the queued chunks, so the input side closes only
	// after the last one has drained.
	go func() {
		buf := make([]byte, 4096)
		for {
			n, rerr := r.Read(buf)
			if enc.Closed() {
				return
			}
			if n > 0 {
				enc.Write(buf[:n], nil)
			}
			if rerr != nil {
				enc.FinishEncoding()
				return
			}
		}
	}()

	// Bridge the chunked async reads into a plain io.Reader for the OGG
	// decoder.
	rawRead, rawWrite := io.Pipe()
	var pump func()
	pump = func() {
		if enc.Closed() {
			return
		}
		enc.Read(func(done bool, data []byte, err error) {
			if err != nil {
				rawWrite.CloseWithError(err)
				return
			}
			if done {
				rawWrite.Close()
				return
			}
			if _, werr := rawWrite.Write(data); werr != nil {
				return
			}
			pump()
		})
	}
	pump()

	frameRead, frameWrite := io.Pipe()
	go func() {
		defer frameWrite.Close()

		decoder := ogg.NewPacketDecoder(ogg.NewDecoder(rawRead))
		writer := NewFrameWriter(frameWrite)

		// The first 2 OGG packets are metadata, not audio.
		skip := 2
		for {
			packet, _, err := decoder.Decode()
			if err != nil {
				if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
					frameWrite.CloseWithError(err)
				}
				return
			}
			if skip > 0 {
				skip--
				continue
			}
			if err := writer.WriteFrame(packet); err != nil {
				return
			}
		}
	}()

	return &encodeCloser{frames: frameRead, raw: rawWrite, enc: enc}, nil
}

// encodeCloser ties the frame stream to the FFmpeg process so that closing
// the reader also reaps the encoder, even when the caller stops early.
type encodeCloser struct {
	frames *io.PipeReader
	raw    *io.PipeWriter
	enc    *transcode.Encoder
	once   sync.Once
	err    error
}

func (e *encodeCloser) Read(p []byte) (int, error) {
	return e.frames.Read(p)
}

func (e *encodeCloser) Close() error {
	e.once.Do(func() {
		e.frames.Close()
		e.raw.CloseWithError(io.ErrClosedPipe)
		e.err = e.enc.Close()
	})
	return e.err
}
