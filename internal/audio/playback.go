package audio

import (
	"context"
	"fmt"

	"github.com/jfreymuth/pulse"
)

// PlayPCM plays mono s16 samples and returns once playback drained or ctx
// was cancelled. Cancellation stops feeding samples, so at most one latency
// window of audio is heard afterwards.
func PlayPCM(ctx context.Context, samples []int16, sampleRate int, mediaName string) error {
	if len(samples) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	client, err := newClient("audio-speakers")
	if err != nil {
		return err
	}
	defer client.Close()

	stream, err := client.NewPlayback(
		pulse.Int16Reader(sampleFeeder(ctx, samples)),
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(sampleRate),
		pulse.PlaybackLatency(0.05),
		pulse.PlaybackMediaName(mediaName),
	)
	if err != nil {
		return fmt.Errorf("create pulse playback stream: %w", err)
	}
	defer stream.Close()

	stream.Start()
	stream.Drain()
	if err := stream.Error(); err != nil {
		return fmt.Errorf("play %s: %w", mediaName, err)
	}
	return ctx.Err()
}

func sampleFeeder(ctx context.Context, samples []int16) func([]int16) (int, error) {
	cursor := 0
	return func(buf []int16) (int, error) {
		if ctx.Err() != nil || cursor >= len(samples) {
			return 0, pulse.EndOfData
		}
		n := copy(buf, samples[cursor:])
		cursor += n
		if cursor >= len(samples) {
			return n, pulse.EndOfData
		}
		return n, nil
	}
}

// DecodePCM16LE converts little-endian s16 bytes to samples, ignoring a
// trailing odd byte.
func DecodePCM16LE(raw []byte) []int16 {
	out := make([]int16, len(raw)/2)
	for i := range out {
		out[i] = int16(uint16(raw[2*i]) | uint16(raw[2*i+1])<<8)
	}
	return out
}
