// Package opus produces and consumes length-prefixed Opus frames for voice
// playback.
//
// Frames travel in a minimal binary format: concatenated [uint16 LE
// length][opus bytes] records, no headers, no metadata. Encode transcodes
// arbitrary audio to that format by driving FFmpeg through a
// transcode.Encoder and unwrapping the resulting OGG packets. FrameReader
// and FrameWriter handle the framing itself.
package opus
