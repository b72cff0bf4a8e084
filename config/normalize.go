package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if c == nil {
		return nil
	}

	var err error
	c.Audio.WAVPath = strings.TrimSpace(c.Audio.WAVPath)
	if c.Audio.WAVPath != "" {
		c.Audio.WAVPath, err = ExpandPath(c.Audio.WAVPath)
		if err != nil {
			return fmt.Errorf("audio.wav_path: %w", err)
		}
	}

	c.Persistence.ModelDir = strings.TrimSpace(c.Persistence.ModelDir)
	if c.Persistence.ModelDir != "" {
		c.Persistence.ModelDir, err = ExpandPath(c.Persistence.ModelDir)
		if err != nil {
			return fmt.Errorf("persistence.model_dir: %w", err)
		}
	}

	c.Policy.Mode = strings.ToLower(strings.TrimSpace(c.Policy.Mode))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Colors = strings.ToLower(strings.TrimSpace(c.Logging.Colors))
	if c.Logging.Colors == "" {
		c.Logging.Colors = "auto"
	}

	// The extractor analyses at the capture rate unless told otherwise
	if c.Extractor.BlockSize == 0 {
		c.Extractor.BlockSize = c.Audio.BlockSize
	}
	return nil
}
