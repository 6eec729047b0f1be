// Package config loads the YAML track layout both binaries consume.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"netaudio/internal/apperr"
)

const (
	defaultListenAddr    = "0.0.0.0:5000"
	defaultTargetAddr    = "127.0.0.1:5000"
	defaultStatusAddr    = "127.0.0.1:8080"
	defaultSampleRate    = 48000
	defaultChannels      = 2
	defaultBitrate       = 128_000
	defaultFrameSizeMs   = 10
	defaultJitterCap     = 32
	defaultJitterDelay   = 2
	defaultTrackName     = "Microphone"
	defaultTrackDeviceID = "default"
)

// TrackType selects the opus application profile and, indirectly, the
// encoder's latency/quality tradeoff.
type TrackType string

const (
	TrackVoice      TrackType = "voice"
	TrackMusic      TrackType = "music"
	TrackLowLatency TrackType = "low_latency"
)

// Track is one configured audio track.
type Track struct {
	TrackID     *uint8
	Name        string
	DeviceID    string
	SampleRate  int
	Channels    int
	Bitrate     int
	FrameSizeMs float64
	Type        TrackType
	FECEnabled  bool
	DTXEnabled  bool
}

// Jitter holds the jitter buffer sizing shared by every receiver track;
// tracks carry no per-track override.
type Jitter struct {
	Capacity int
	MinDelay int
}

// Network holds the UDP endpoints.
type Network struct {
	ListenAddr string
	TargetAddr string
}

// Config is the validated, defaulted configuration both binaries consume.
type Config struct {
	Network    Network
	StatusAddr string
	Tracks     []Track
	Jitter     Jitter
}

type yamlConfig struct {
	Network struct {
		ListenAddr string `yaml:"listen_addr"`
		TargetAddr string `yaml:"target_addr"`
	} `yaml:"network"`
	StatusAddr string `yaml:"status_addr"`
	Tracks     []struct {
		TrackID     *int    `yaml:"track_id"`
		Name        string  `yaml:"name"`
		DeviceID    string  `yaml:"device_id"`
		SampleRate  int     `yaml:"sample_rate"`
		Channels    int     `yaml:"channels"`
		Bitrate     int     `yaml:"bitrate"`
		FrameSizeMs float64 `yaml:"frame_size_ms"`
		TrackType   string  `yaml:"track_type"`
		FECEnabled  bool    `yaml:"fec_enabled"`
		DTXEnabled  bool    `yaml:"dtx_enabled"`
	} `yaml:"tracks"`
	Jitter struct {
		Capacity int `yaml:"capacity"`
		MinDelay int `yaml:"min_delay"`
	} `yaml:"jitter"`
}

// Default returns the single-default-track configuration both binaries fall
// back to when no config file path is given, matching the original
// sender/receiver binaries' built-in defaults.
func Default() Config {
	return Config{
		Network:    Network{ListenAddr: defaultListenAddr, TargetAddr: defaultTargetAddr},
		StatusAddr: defaultStatusAddr,
		Jitter:     Jitter{Capacity: defaultJitterCap, MinDelay: defaultJitterDelay},
		Tracks: []Track{{
			Name:        defaultTrackName,
			DeviceID:    defaultTrackDeviceID,
			SampleRate:  defaultSampleRate,
			Channels:    defaultChannels,
			Bitrate:     defaultBitrate,
			FrameSizeMs: defaultFrameSizeMs,
			Type:        TrackVoice,
			FECEnabled:  true,
		}},
	}
}

// Load reads and validates a YAML config file at path.
func Load(path string) (Config, error) {
	const op = "config.Load"

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, apperr.Wrap(apperr.InvalidConfig, op, err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, apperr.Wrap(apperr.InvalidConfig, op, err)
	}

	cfg := Default()

	if yc.Network.ListenAddr != "" {
		cfg.Network.ListenAddr = yc.Network.ListenAddr
	}
	if yc.Network.TargetAddr != "" {
		cfg.Network.TargetAddr = yc.Network.TargetAddr
	}
	if yc.StatusAddr != "" {
		cfg.StatusAddr = yc.StatusAddr
	}

	if yc.Jitter.Capacity > 0 {
		if yc.Jitter.Capacity&(yc.Jitter.Capacity-1) != 0 {
			return Config{}, apperr.New(apperr.InvalidConfig, op+": jitter.capacity must be a power of two")
		}
		cfg.Jitter.Capacity = yc.Jitter.Capacity
	}
	if yc.Jitter.MinDelay > 0 {
		cfg.Jitter.MinDelay = yc.Jitter.MinDelay
	}

	if len(yc.Tracks) == 0 {
		return cfg, nil
	}

	tracks := make([]Track, 0, len(yc.Tracks))
	seenIDs := make(map[uint8]bool)

	for i, yt := range yc.Tracks {
		t := Track{
			Name:        yt.Name,
			DeviceID:    yt.DeviceID,
			SampleRate:  defaultSampleRate,
			Channels:    defaultChannels,
			Bitrate:     defaultBitrate,
			FrameSizeMs: defaultFrameSizeMs,
			Type:        TrackVoice,
			FECEnabled:  yt.FECEnabled,
			DTXEnabled:  yt.DTXEnabled,
		}

		if t.Name == "" {
			return Config{}, apperr.New(apperr.InvalidConfig, fmt.Sprintf("%s: tracks[%d].name is required", op, i))
		}
		if t.DeviceID == "" {
			t.DeviceID = defaultTrackDeviceID
		}
		if yt.SampleRate > 0 {
			t.SampleRate = yt.SampleRate
		}
		if yt.Channels > 0 {
			t.Channels = yt.Channels
		}
		if t.Channels != 1 && t.Channels != 2 {
			return Config{}, apperr.New(apperr.InvalidConfig, fmt.Sprintf("%s: tracks[%d].channels must be 1 or 2, got %d", op, i, t.Channels))
		}
		if yt.Bitrate > 0 {
			t.Bitrate = yt.Bitrate
		}
		if yt.FrameSizeMs > 0 {
			t.FrameSizeMs = yt.FrameSizeMs
		}
		if !validFrameSize(t.FrameSizeMs) {
			return Config{}, apperr.New(apperr.InvalidConfig, fmt.Sprintf("%s: tracks[%d].frame_size_ms must be one of 2.5, 5, 10, 20, got %v", op, i, t.FrameSizeMs))
		}

		if yt.TrackType != "" {
			tt := TrackType(strings.ToLower(yt.TrackType))
			switch tt {
			case TrackVoice, TrackMusic, TrackLowLatency:
				t.Type = tt
			default:
				return Config{}, apperr.New(apperr.InvalidConfig, fmt.Sprintf("%s: tracks[%d].track_type must be voice|music|low_latency, got %q", op, i, yt.TrackType))
			}
		}

		if yt.TrackID != nil {
			if *yt.TrackID < 0 || *yt.TrackID > 255 {
				return Config{}, apperr.New(apperr.InvalidConfig, fmt.Sprintf("%s: tracks[%d].track_id out of range", op, i))
			}
			id := uint8(*yt.TrackID)
			if seenIDs[id] {
				return Config{}, apperr.New(apperr.InvalidConfig, fmt.Sprintf("%s: tracks[%d].track_id %d duplicated", op, i, id))
			}
			seenIDs[id] = true
			t.TrackID = &id
		}

		tracks = append(tracks, t)
	}

	cfg.Tracks = tracks
	return cfg, nil
}

func validFrameSize(ms float64) bool {
	switch ms {
	case 2.5, 5, 10, 20:
		return true
	default:
		return false
	}
}
