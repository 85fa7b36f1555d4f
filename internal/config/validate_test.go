package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildSpeechPhrasesSortedAndHighestBoostWins(t *testing.T) {
	cfg := Default()
	cfg.Vocab.GlobalSets = []string{"core", "team"}
	cfg.Vocab.Sets["core"] = VocabSet{Name: "core", Boost: 10, Phrases: []string{"beta", "alpha"}}
	cfg.Vocab.Sets["team"] = VocabSet{Name: "team", Boost: 20, Phrases: []string{"alpha", "gamma"}}

	phrases, warnings, err := BuildSpeechPhrases(cfg)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	require.Equal(t, []SpeechPhrase{
		{Phrase: "alpha", Boost: 20},
		{Phrase: "beta", Boost: 10},
		{Phrase: "gamma", Boost: 20},
	}, phrases)
}

func TestValidateRejectsInvalidCoreFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "relative base url", mutate: func(c *Config) { c.API.BaseURL = "/api" }, wantErr: "api.base_url"},
		{name: "ftp base url", mutate: func(c *Config) { c.API.BaseURL = "ftp://host/api" }, wantErr: "api.base_url"},
		{name: "zero timeout", mutate: func(c *Config) { c.API.TimeoutMS = 0 }, wantErr: "api.timeout_ms"},
		{name: "bad health path", mutate: func(c *Config) { c.API.HealthPath = "health" }, wantErr: "must start"},
		{name: "empty video device", mutate: func(c *Config) { c.Video.Device = " " }, wantErr: "video.device"},
		{name: "empty capture argv", mutate: func(c *Config) { c.Video.Capture = CommandConfig{} }, wantErr: "video.capture_cmd"},
		{name: "empty mime type", mutate: func(c *Config) { c.Video.MimeType = "" }, wantErr: "video.mime_type"},
		{name: "empty filename", mutate: func(c *Config) { c.Video.Filename = "" }, wantErr: "video.filename"},
		{name: "unknown provider", mutate: func(c *Config) { c.ASR.Provider = "riva" }, wantErr: "asr.provider"},
		{name: "http asr endpoint", mutate: func(c *Config) { c.ASR.Endpoint = "https://api.deepgram.com/v1/listen" }, wantErr: "asr.endpoint"},
		{name: "empty language", mutate: func(c *Config) { c.ASR.LanguageCode = "" }, wantErr: "language_code"},
		{name: "empty key env", mutate: func(c *Config) { c.ASR.APIKeyEnv = "" }, wantErr: "asr.api_key_env"},
		{name: "unknown tts backend", mutate: func(c *Config) { c.TTS.Backend = "say" }, wantErr: "tts.backend"},
		{name: "empty tts command", mutate: func(c *Config) { c.TTS.Command = CommandConfig{} }, wantErr: "tts.command"},
		{name: "deepgram tts without endpoint", mutate: func(c *Config) {
			c.TTS.Backend = "deepgram"
			c.TTS.Endpoint = ""
		}, wantErr: "tts.endpoint"},
		{name: "zero max duration", mutate: func(c *Config) { c.Interview.MaxDurationS = 0 }, wantErr: "max_duration_s"},
		{name: "zero chunk interval", mutate: func(c *Config) { c.Interview.ChunkIntervalMS = 0 }, wantErr: "chunk_interval_ms"},
		{name: "negative settle delay", mutate: func(c *Config) { c.Interview.SettleDelayMS = -1 }, wantErr: "settle_delay_ms"},
		{name: "unknown indicator backend", mutate: func(c *Config) { c.Indicator.Backend = "tray" }, wantErr: "indicator.backend"},
		{name: "desktop without app name", mutate: func(c *Config) {
			c.Indicator.Backend = "desktop"
			c.Indicator.DesktopAppName = ""
		}, wantErr: "desktop_app_name"},
		{name: "negative error timeout", mutate: func(c *Config) { c.Indicator.ErrorTimeoutMS = -1 }, wantErr: "error_timeout"},
		{name: "invalid max phrases", mutate: func(c *Config) { c.Vocab.MaxPhrases = 0 }, wantErr: "vocab.max_phrases"},
		{name: "unknown vocab set", mutate: func(c *Config) { c.Vocab.GlobalSets = []string{"missing"} }, wantErr: "unknown set"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)

			_, err := Validate(cfg)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestValidateDefaultsHaveNoWarnings(t *testing.T) {
	warnings, err := Validate(Default())
	require.NoError(t, err)
	require.Empty(t, warnings)
}

func TestValidateWarnsOnPlainHTTPRemoteBackend(t *testing.T) {
	cfg := Default()
	cfg.API.BaseURL = "http://hr.example.com/api"

	warnings, err := Validate(cfg)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0].Message, "not https")
}

func TestValidateWarnsWhenCaptureIgnoresDevice(t *testing.T) {
	cfg := Default()
	cfg.Video.Capture = CommandConfig{Raw: "cam-capture --stdout", Argv: []string{"cam-capture", "--stdout"}}

	warnings, err := Validate(cfg)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0].Message, "{device}")
}

func TestBuildSpeechPhrasesEnforcesMaxPhrases(t *testing.T) {
	cfg := Default()
	cfg.Vocab.MaxPhrases = 1
	cfg.Vocab.GlobalSets = []string{"core"}
	cfg.Vocab.Sets["core"] = VocabSet{Name: "core", Boost: 2, Phrases: []string{"kubernetes", "golang"}}

	_, _, err := BuildSpeechPhrases(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "exceeds vocab.max_phrases=1")
}
