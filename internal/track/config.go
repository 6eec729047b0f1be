package track

import "netaudio/internal/config"

// Config is a track's fully resolved, auto-assigned configuration, built
// from a config.Track by the Registry.
type Config struct {
	TrackID     uint8
	Name        string
	DeviceID    string
	SampleRate  int
	Channels    int
	Bitrate     int
	FrameSizeMs float64
	Type        config.TrackType
	FECEnabled  bool
	DTXEnabled  bool
}

// FrameSamplesPerChannel returns the codec frame size in samples per
// channel at this track's sample rate.
func (c Config) FrameSamplesPerChannel() int {
	return int(float64(c.SampleRate) * c.FrameSizeMs / 1000)
}
