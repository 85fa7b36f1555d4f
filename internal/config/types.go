// Package config resolves, parses, validates, and defaults entretien configuration.
package config

// Config is the fully materialized runtime configuration used by entretien.
type Config struct {
	API        APIConfig
	Audio      AudioConfig
	Video      VideoConfig
	ASR        ASRConfig
	TTS        TTSConfig
	Interview  InterviewConfig
	Transcript TranscriptConfig
	Indicator  IndicatorConfig
	Output     OutputConfig
	Vocab      VocabConfig
	Debug      DebugConfig
}

// APIConfig points at the interview backend.
type APIConfig struct {
	BaseURL    string
	TimeoutMS  int
	HealthPath string
}

// AudioConfig controls preferred and fallback input-source selection.
type AudioConfig struct {
	Input    string
	Fallback string
}

// VideoConfig controls the camera capture command and the uploaded container.
type VideoConfig struct {
	Device   string
	Capture  CommandConfig
	MimeType string
	Filename string
}

// ASRConfig controls the streaming recognizer.
type ASRConfig struct {
	Provider              string
	Endpoint              string
	LanguageCode          string
	Model                 string
	AutomaticPunctuation  bool
	APIKeyEnv             string
	RestartWithinQuestion bool
}

// TTSConfig selects and configures the question narrator.
type TTSConfig struct {
	Backend  string
	Command  CommandConfig
	Voice    string
	Endpoint string
}

// InterviewConfig holds session timing limits.
type InterviewConfig struct {
	MaxDurationS    int
	ChunkIntervalMS int
	SettleDelayMS   int
}

// TranscriptConfig controls transcript assembly formatting.
type TranscriptConfig struct {
	CapitalizeSentences bool
}

// IndicatorConfig controls visual indicator and audio cue behavior.
type IndicatorConfig struct {
	Enable         bool
	Backend        string
	DesktopAppName string
	SoundEnable    bool
	ErrorTimeoutMS int
}

// OutputConfig controls what happens with the finished-session summary.
type OutputConfig struct {
	Clipboard bool
	TUI       bool
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// VocabConfig controls enabled speech phrase sets and dedupe limits.
type VocabConfig struct {
	GlobalSets []string
	Sets       map[string]VocabSet
	MaxPhrases int
}

// VocabSet is one named phrase group with a shared boost value.
type VocabSet struct {
	Name    string
	Boost   float64
	Phrases []string
}

// DebugConfig controls optional debug artifact output.
type DebugConfig struct {
	EnableAudioDump bool
	EnableASRDump   bool
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}

// SpeechPhrase is the normalized phrase payload sent to the recognizer.
type SpeechPhrase struct {
	Phrase string
	Boost  float32
}
