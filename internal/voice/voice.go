// Package voice joins Discord voice channels and streams Opus frames into
// them.
package voice

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/voxgate/voxgate/internal/opus"
)

// ErrSendTimeout is returned when the voice connection stops accepting
// frames for a full minute, which in practice means it is gone.
var ErrSendTimeout = errors.New("voice connection send timeout")

// ChannelFunc runs with an open, speaking voice connection.
type ChannelFunc func(*discordgo.Session, *discordgo.VoiceConnection) error

// WithChannel joins a voice channel, marks the bot as speaking, runs the
// callback, and tears the connection down afterwards regardless of the
// callback's outcome.
func WithChannel(s *discordgo.Session, guildID, channelID string, fn ChannelFunc) error {
	conn, err := s.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return fmt.Errorf("unable to join voice channel %s: %w", channelID, err)
	}

	if err := conn.Speaking(true); err != nil {
		return fmt.Errorf("error setting speaking state: %w", err)
	}
	defer func() {
		if err := conn.Speaking(false); err != nil {
			slog.Error("failed to stop speaking", "error", err)
		}
		if err := conn.Disconnect(); err != nil {
			slog.Error("failed to disconnect from voice", "error", err)
		}
	}()

	if err := fn(s, conn); err != nil {
		return fmt.Errorf("error executing voice callback: %w", err)
	}
	return nil
}

// Stream reads Opus frames from source and sends them to the voice
// connection. It blocks until all frames are sent or an error occurs,
// returning nil on clean EOF.
func Stream(source *opus.FrameReader, vc *discordgo.VoiceConnection) error {
	for {
		frame, err := source.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return err
		}

		timer := time.NewTimer(time.Minute)
		select {
		case vc.OpusSend <- frame:
			timer.Stop()
		case <-timer.C:
			return ErrSendTimeout
		}
	}
}

// Play transcodes src and streams it into a voice channel, end to end.
func Play(s *discordgo.Session, guildID, channelID string, src io.Reader) error {
	frames, err := opus.Encode(src)
	if err != nil {
		return fmt.Errorf("unable to start transcoding: %w", err)
	}
	defer func() {
		if err := frames.Close(); err != nil {
			slog.Error("failed to close transcoder", "error", err)
		}
	}()

	return WithChannel(s, guildID, channelID, func(_ *discordgo.Session, vc *discordgo.VoiceConnection) error {
		return Stream(opus.NewFrameReader(frames), vc)
	})
}
