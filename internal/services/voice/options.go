package voice

import (
	"alfred/config"

	"github.com/jonas747/dca"
)

// NewEncodeOptions maps the audio section of the config onto dca options.
func NewEncodeOptions(cfg config.AudioConfig) *dca.EncodeOptions {
	opts := *dca.StdEncodeOptions
	opts.RawOutput = true
	opts.Bitrate = cfg.Bitrate
	opts.Volume = cfg.Volume
	opts.FrameRate = cfg.FrameRate
	opts.FrameDuration = cfg.FrameDuration
	opts.CompressionLevel = cfg.CompressionLevel
	opts.PacketLoss = cfg.PacketLoss
	opts.BufferedFrames = cfg.BufferedFrames
	opts.VBR = cfg.EnableVBR
	opts.Application = dca.AudioApplication(cfg.Application)
	return &opts
}
