package pipeline

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"

	"github.com/souhaylelhammadi/entretien/internal/config"
)

const flacBlockSize = 4096

// createDebugFile creates timestamped debug artifacts under state/entretien/debug.
func createDebugFile(prefix string, extension string, now time.Time) (*os.File, error) {
	stateDir, err := config.StateDir()
	if err != nil {
		return nil, err
	}
	debugDir := filepath.Join(stateDir, "debug")
	if err := os.MkdirAll(debugDir, 0o700); err != nil {
		return nil, fmt.Errorf("create debug dir: %w", err)
	}

	path := filepath.Join(debugDir, fmt.Sprintf("%s-%s.%s", prefix, now.Format("20060102-150405.000"), extension))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open debug file %q: %w", path, err)
	}
	return file, nil
}

// writeFLAC encodes little-endian mono s16 PCM as verbatim FLAC frames.
func writeFLAC(w io.Writer, pcm []byte, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	nsamples := len(pcm) / 2
	info := &meta.StreamInfo{
		BlockSizeMin:  flacBlockSize,
		BlockSizeMax:  flacBlockSize,
		SampleRate:    uint32(sampleRate),
		NChannels:     1,
		BitsPerSample: 16,
		NSamples:      uint64(nsamples),
	}
	enc, err := flac.NewEncoder(w, info)
	if err != nil {
		return fmt.Errorf("create flac encoder: %w", err)
	}

	for start := 0; start < nsamples; start += flacBlockSize {
		end := min(start+flacBlockSize, nsamples)
		samples := make([]int32, 0, end-start)
		for i := start; i < end; i++ {
			samples = append(samples, int32(int16(uint16(pcm[2*i])|uint16(pcm[2*i+1])<<8)))
		}
		f := &frame.Frame{
			Header: frame.Header{
				BlockSize:     uint16(len(samples)),
				SampleRate:    uint32(sampleRate),
				Channels:      frame.ChannelsMono,
				BitsPerSample: 16,
			},
			Subframes: []*frame.Subframe{{
				SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
				Samples:   samples,
				NSamples:  len(samples),
			}},
		}
		if err := enc.WriteFrame(f); err != nil {
			_ = enc.Close()
			return fmt.Errorf("write flac frame: %w", err)
		}
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close flac encoder: %w", err)
	}
	return nil
}
