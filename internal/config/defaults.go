package config

// DefaultCaptureCommand records the camera plus the mic PCM fed on stdin into WebM on stdout.
const DefaultCaptureCommand = "ffmpeg -hide_banner -loglevel error -f v4l2 -i {device} -f s16le -ar {rate} -ac 1 -i pipe:0 -c:v libvpx -deadline realtime -b:v 1M -c:a libopus -f webm pipe:1"

// DefaultSpeakCommand narrates with espeak-ng.
const DefaultSpeakCommand = "espeak-ng -v {voice} {text}"

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		API: APIConfig{
			BaseURL:    "http://localhost:5000/api",
			TimeoutMS:  120000,
			HealthPath: "/health",
		},
		Audio: AudioConfig{
			Input:    "default",
			Fallback: "default",
		},
		Video: VideoConfig{
			Device:   "/dev/video0",
			Capture:  CommandConfig{Raw: DefaultCaptureCommand, Argv: mustParseArgv(DefaultCaptureCommand)},
			MimeType: "video/webm",
			Filename: "interview.webm",
		},
		ASR: ASRConfig{
			Provider:             "deepgram",
			Endpoint:             "wss://api.deepgram.com/v1/listen",
			LanguageCode:         "en-US",
			Model:                "nova-3",
			AutomaticPunctuation: true,
			APIKeyEnv:            "DEEPGRAM_API_KEY",
		},
		TTS: TTSConfig{
			Backend:  "command",
			Command:  CommandConfig{Raw: DefaultSpeakCommand, Argv: mustParseArgv(DefaultSpeakCommand)},
			Voice:    "en",
			Endpoint: "https://api.deepgram.com/v1/speak",
		},
		Interview: InterviewConfig{
			MaxDurationS:    1800,
			ChunkIntervalMS: 1000,
			SettleDelayMS:   500,
		},
		Transcript: TranscriptConfig{
			CapitalizeSentences: true,
		},
		Indicator: IndicatorConfig{
			Enable:         true,
			Backend:        "desktop",
			DesktopAppName: "entretien",
			SoundEnable:    true,
			ErrorTimeoutMS: 4000,
		},
		Output: OutputConfig{
			Clipboard: false,
			TUI:       true,
		},
		Vocab: VocabConfig{
			GlobalSets: nil,
			Sets:       map[string]VocabSet{},
			MaxPhrases: 256,
		},
		Debug: DebugConfig{},
	}
}
