package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/RyanBlaney/sonido-mix/algorithms/common"
	"github.com/RyanBlaney/sonido-mix/logging"
)

// WAVConfig controls file replay
type WAVConfig struct {
	BlockSize int  `json:"block_size"` // mono samples per block
	Realtime  bool `json:"realtime"`   // pace delivery to the file's sample rate
	Loop      bool `json:"loop"`       // restart at end of file
}

// WAVSource replays a PCM WAV file as a capture stream
type WAVSource struct {
	path       string
	config     WAVConfig
	sampleRate int
	channels   int
	bitDepth   int
	logger     logging.Logger
}

// NewWAVSource opens path to validate it and read its format
func NewWAVSource(path string, config WAVConfig) (*WAVSource, error) {
	if config.BlockSize <= 0 {
		config.BlockSize = DefaultBlockSize
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("%w: %s is not a valid wav file", ErrUnsupportedFormat, path)
	}
	if decoder.WavAudioFormat != 1 {
		return nil, fmt.Errorf("%w: only PCM wav is supported (format %d)", ErrUnsupportedFormat, decoder.WavAudioFormat)
	}
	switch decoder.BitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: bit depth %d", ErrUnsupportedFormat, decoder.BitDepth)
	}

	return &WAVSource{
		path:       path,
		config:     config,
		sampleRate: int(decoder.SampleRate),
		channels:   int(decoder.NumChans),
		bitDepth:   int(decoder.BitDepth),
		logger: logging.WithFields(logging.Fields{
			"component": "wav_source",
			"path":      path,
		}),
	}, nil
}

// SampleRate returns the file's sample rate
func (s *WAVSource) SampleRate() int {
	return s.sampleRate
}

// Channels returns the file's channel count
func (s *WAVSource) Channels() int {
	return s.channels
}

// Stream decodes the file block by block and delivers mono samples
func (s *WAVSource) Stream(ctx context.Context, sink func(block []float64)) error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	pace := newPacer(s.config.Realtime)
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: s.channels,
			SampleRate:  s.sampleRate,
		},
		Data:           make([]int, s.config.BlockSize*s.channels),
		SourceBitDepth: s.bitDepth,
	}
	interleaved := make([]float64, len(buf.Data))
	scale := 1.0 / float64(int(1)<<(uint(s.bitDepth)-1))

	decoder := wav.NewDecoder(f)
	if err := decoder.FwdToPCM(); err != nil {
		return fmt.Errorf("seek to pcm data: %w", err)
	}

	for pass := 0; ; pass++ {
		delivered := 0
		for {
			if err := ctx.Err(); err != nil {
				return err
			}

			n, err := decoder.PCMBuffer(buf)
			if err != nil && !errors.Is(err, io.EOF) {
				return fmt.Errorf("decode pcm: %w", err)
			}
			if n == 0 {
				break
			}

			for i, v := range buf.Data[:n] {
				interleaved[i] = pcmToFloat(v, s.bitDepth, scale)
			}
			mono := common.Downmix(interleaved[:n], s.channels)
			sink(mono)
			delivered += len(mono)

			if err := pace.wait(ctx, len(mono), s.sampleRate); err != nil {
				return err
			}
		}

		if !s.config.Loop || delivered == 0 {
			s.logger.Debug("End of file", logging.Fields{
				"passes": pass + 1,
			})
			return nil
		}
		if err := decoder.Rewind(); err != nil {
			return fmt.Errorf("rewind wav: %w", err)
		}
	}
}

// pcmToFloat maps a decoded PCM integer onto [-1, 1]. 8-bit wav is unsigned.
func pcmToFloat(v, bitDepth int, scale float64) float64 {
	if bitDepth == 8 {
		return float64(v-128) / 128.0
	}
	return float64(v) * scale
}
