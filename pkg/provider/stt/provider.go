// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a real-time transcription service and exposes a
// uniform streaming interface to the tracking pipeline. The central
// abstraction is SessionHandle: once opened, a session accepts raw PCM
// audio and emits two streams of Transcript values: low-latency partials
// that drive live position matching, and authoritative finals used for
// pace estimation and the post-show report.
//
// Implementations must be safe for concurrent use. Audio input and
// transcript output channels are goroutine-safe by construction.
package stt

import "context"

// StreamConfig describes the audio format and recognition hints for a new
// STT session. All fields must be compatible with what the underlying
// provider supports; see each provider's documentation for valid ranges.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. Common values: 16000
	// (STT-optimised mono), 48000 (phone microphone native rate).
	SampleRate int

	// Channels is the number of audio channels. 1 = mono (required by
	// most STT providers). Implementors may downmix stereo internally.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	// An empty string lets the provider auto-detect, if supported.
	Language string

	// Keywords is a list of vocabulary hints that increase recognition
	// probability for words that matter to tracking, typically the
	// script's anchor phrases and unusual punchline vocabulary.
	Keywords []KeywordBoost
}

// SessionHandle represents an open STT streaming session. It is an
// interface so that test code can provide mock implementations without a
// live provider connection.
//
// Callers must call Close when the session is no longer needed. Failing
// to do so may leak goroutines and network connections inside the
// provider implementation. All methods must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw PCM audio bytes to the provider
	// for transcription. The chunk should match the SampleRate, Channels,
	// and bit-depth agreed in StreamConfig. Calling SendAudio after Close
	// returns an error.
	SendAudio(chunk []byte) error

	// Partials returns a read-only channel that emits low-latency interim
	// Transcript values as the provider makes preliminary guesses. These
	// drive live position matching but must not feed pace estimation.
	// The channel is closed when the session ends.
	Partials() <-chan Transcript

	// Finals returns a read-only channel that emits authoritative
	// Transcript values once the provider has committed to a recognition
	// result. The channel is closed when the session ends.
	Finals() <-chan Transcript

	// SetKeywords replaces the active keyword boost list without
	// restarting the session, e.g. after a mid-show setlist edit.
	// Providers that do not support mid-session updates may return an
	// error; changes take effect on a best-effort basis.
	SetKeywords(keywords []KeywordBoost) error

	// Close terminates the session, flushes any pending audio, and
	// releases all associated resources. After Close returns, the
	// Partials and Finals channels will be closed. Calling Close more
	// than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any STT backend.
//
// Implementations must be safe for concurrent use. Multiple sessions may
// be open simultaneously (one per performer on a showcase night).
type Provider interface {
	// StartStream opens a new streaming transcription session with the
	// given audio format and recognition configuration. The returned
	// SessionHandle is ready to accept audio immediately.
	//
	// Returns an error if the provider cannot establish the session
	// (e.g., authentication failure, unsupported configuration, or ctx
	// already cancelled). The caller owns the SessionHandle and must call
	// Close when done.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
