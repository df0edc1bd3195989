// Package config provides the configuration schema and loader for the
// stagetrack server.
package config

// LogLevel controls log verbosity for the stagetrack server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for stagetrack.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	STT      STTConfig      `yaml:"stt"`
	Audio    AudioConfig    `yaml:"audio"`
	Scroll   ScrollConfig   `yaml:"scroll"`
	Acoustic AcousticConfig `yaml:"acoustic"`
	Match    MatchConfig    `yaml:"match"`
}

// ServerConfig holds network and logging settings for the stagetrack server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// STTConfig selects and configures the speech recognition provider whose
// transcript fragments drive the tracker.
type STTConfig struct {
	// Provider selects the recognizer implementation (e.g., "deepgram",
	// "mock"). Empty means sessions run on client-supplied transcripts only.
	Provider string `yaml:"provider"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "nova-2").
	Model string `yaml:"model"`

	// Language is the BCP-47 language hint sent to the recognizer.
	Language string `yaml:"language"`
}

// AudioConfig describes the PCM stream uploaded by the stage client.
type AudioConfig struct {
	// SampleRate is the mono PCM sample rate in Hz. Default 48000.
	SampleRate int `yaml:"sample_rate"`
}

// ScrollConfig holds the scroll control-law tuning. Every field is
// optional; zero values take the built-in defaults. Durations are in
// seconds.
type ScrollConfig struct {
	// TargetWPM is the speaking rate used to derive the base pace from
	// the script. Default 140.
	TargetWPM float64 `yaml:"target_wpm"`

	// TickRate is the scroll clock frequency in Hz. Default 60.
	TickRate int `yaml:"tick_rate"`

	// PauseAfterSilence is the silence duration that auto-pauses
	// scrolling. Default 1.5.
	PauseAfterSilence float64 `yaml:"pause_after_silence"`

	// HardStopAfterSilence is the silence duration that stops the set
	// outright. Default 10.
	HardStopAfterSilence float64 `yaml:"hard_stop_after_silence"`

	// LowConfidencePause pauses scrolling below this match confidence.
	// Default 0.4.
	LowConfidencePause float64 `yaml:"low_confidence_pause"`

	// ResumeConfidence resumes a paused set at or above this match
	// confidence. Default 0.5.
	ResumeConfidence float64 `yaml:"resume_confidence"`

	// AdaptationRate is the fractional pace change per drift adaptation
	// step, in (0, 1). Default 0.22.
	AdaptationRate float64 `yaml:"adaptation_rate"`

	// PredictiveBlend weights the learned per-session pace against the
	// base pace, in [0, 1]. Default 0.70.
	PredictiveBlend float64 `yaml:"predictive_blend"`
}

// AcousticConfig tunes the per-buffer feature extraction.
type AcousticConfig struct {
	// SilenceFloor is the RMS amplitude below which a buffer is silence.
	// Default 0.01.
	SilenceFloor float64 `yaml:"silence_floor"`

	// EmphasisRatio flags a buffer as emphasised when its amplitude
	// exceeds the trailing average by this factor. Default 1.4.
	EmphasisRatio float64 `yaml:"emphasis_ratio"`

	// QuestionRise flags rising intonation when pitch exceeds the recent
	// average by this factor. Default 1.08.
	QuestionRise float64 `yaml:"question_rise"`

	// FFTSize is the transform length for spectral features. Default 1024.
	FFTSize int `yaml:"fft_size"`
}

// MatchConfig tunes the transcript-to-script matcher.
type MatchConfig struct {
	// AheadWindow and BehindWindow bound the candidate lines considered
	// around the current position. Defaults 5 and 2.
	AheadWindow  int `yaml:"ahead_window"`
	BehindWindow int `yaml:"behind_window"`

	// MinConfidence is the match score below which a fragment counts as
	// off-script. Default 0.30.
	MinConfidence float64 `yaml:"min_confidence"`

	// AnchorThreshold is the minimum similarity for a spoken anchor
	// phrase hit. Default 0.85.
	AnchorThreshold float64 `yaml:"anchor_threshold"`
}
