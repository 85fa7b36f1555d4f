package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// jsoncConfig mirrors Config with pointer fields so absent keys keep the
// base value.
type jsoncConfig struct {
	API        *jsoncAPI        `json:"api"`
	Audio      *jsoncAudio      `json:"audio"`
	Video      *jsoncVideo      `json:"video"`
	ASR        *jsoncASR        `json:"asr"`
	TTS        *jsoncTTS        `json:"tts"`
	Interview  *jsoncInterview  `json:"interview"`
	Transcript *jsoncTranscript `json:"transcript"`
	Indicator  *jsoncIndicator  `json:"indicator"`
	Output     *jsoncOutput     `json:"output"`
	Vocab      *jsoncVocab      `json:"vocab"`
	Debug      *jsoncDebug      `json:"debug"`
}

type jsoncAPI struct {
	BaseURL    *string `json:"base_url"`
	TimeoutMS  *int    `json:"timeout_ms"`
	HealthPath *string `json:"health_path"`
}

type jsoncAudio struct {
	Input    *string `json:"input"`
	Fallback *string `json:"fallback"`
}

type jsoncVideo struct {
	Device     *string `json:"device"`
	CaptureCmd *string `json:"capture_cmd"`
	MimeType   *string `json:"mime_type"`
	Filename   *string `json:"filename"`
}

type jsoncASR struct {
	Provider              *string `json:"provider"`
	Endpoint              *string `json:"endpoint"`
	LanguageCode          *string `json:"language_code"`
	Model                 *string `json:"model"`
	AutomaticPunctuation  *bool   `json:"automatic_punctuation"`
	APIKeyEnv             *string `json:"api_key_env"`
	RestartWithinQuestion *bool   `json:"restart_within_question"`
}

type jsoncTTS struct {
	Backend  *string `json:"backend"`
	Command  *string `json:"command"`
	Voice    *string `json:"voice"`
	Endpoint *string `json:"endpoint"`
}

type jsoncInterview struct {
	MaxDurationS    *int `json:"max_duration_s"`
	ChunkIntervalMS *int `json:"chunk_interval_ms"`
	SettleDelayMS   *int `json:"settle_delay_ms"`
}

type jsoncTranscript struct {
	CapitalizeSentences *bool `json:"capitalize_sentences"`
}

type jsoncIndicator struct {
	Enable         *bool   `json:"enable"`
	Backend        *string `json:"backend"`
	DesktopAppName *string `json:"desktop_app_name"`
	SoundEnable    *bool   `json:"sound_enable"`
	ErrorTimeoutMS *int    `json:"error_timeout_ms"`
}

type jsoncOutput struct {
	Clipboard *bool `json:"clipboard"`
	TUI       *bool `json:"tui"`
}

type jsoncVocab struct {
	Global     *jsoncStringList         `json:"global"`
	MaxPhrases *int                     `json:"max_phrases"`
	Sets       map[string]jsoncVocabSet `json:"sets"`
}

type jsoncVocabSet struct {
	Boost   *float64 `json:"boost"`
	Phrases []string `json:"phrases"`
}

type jsoncDebug struct {
	AudioDump *bool `json:"audio_dump"`
	ASRDump   *bool `json:"asr_dump"`
}

type jsoncStringList []string

func (l *jsoncStringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		parts := strings.Split(single, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			out = append(out, part)
		}
		*l = out
		return nil
	}

	return errors.New("expected string array or comma-delimited string")
}

func parseJSONC(content string, base Config) (Config, []Warning, error) {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	var payload jsoncConfig
	if err := decodeStrict(normalized, &payload); err != nil {
		return Config{}, nil, err
	}

	cfg := base
	warnings, err := payload.applyTo(&cfg)
	if err != nil {
		return Config{}, nil, err
	}

	validated, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, append(warnings, validated...), nil
}

func (payload jsoncConfig) applyTo(cfg *Config) ([]Warning, error) {
	if p := payload.API; p != nil {
		setString(&cfg.API.BaseURL, p.BaseURL)
		setInt(&cfg.API.TimeoutMS, p.TimeoutMS)
		setString(&cfg.API.HealthPath, p.HealthPath)
	}
	if p := payload.Audio; p != nil {
		// Device names may carry meaningful whitespace.
		setRaw(&cfg.Audio.Input, p.Input)
		setRaw(&cfg.Audio.Fallback, p.Fallback)
	}
	if p := payload.Video; p != nil {
		if err := p.apply(&cfg.Video); err != nil {
			return nil, err
		}
	}
	if p := payload.ASR; p != nil {
		setString(&cfg.ASR.Provider, p.Provider)
		setString(&cfg.ASR.Endpoint, p.Endpoint)
		setString(&cfg.ASR.LanguageCode, p.LanguageCode)
		setString(&cfg.ASR.Model, p.Model)
		setBool(&cfg.ASR.AutomaticPunctuation, p.AutomaticPunctuation)
		setString(&cfg.ASR.APIKeyEnv, p.APIKeyEnv)
		setBool(&cfg.ASR.RestartWithinQuestion, p.RestartWithinQuestion)
	}
	if p := payload.TTS; p != nil {
		if err := p.apply(&cfg.TTS); err != nil {
			return nil, err
		}
	}
	if p := payload.Interview; p != nil {
		setInt(&cfg.Interview.MaxDurationS, p.MaxDurationS)
		setInt(&cfg.Interview.ChunkIntervalMS, p.ChunkIntervalMS)
		setInt(&cfg.Interview.SettleDelayMS, p.SettleDelayMS)
	}
	if p := payload.Transcript; p != nil {
		setBool(&cfg.Transcript.CapitalizeSentences, p.CapitalizeSentences)
	}
	if p := payload.Indicator; p != nil {
		setBool(&cfg.Indicator.Enable, p.Enable)
		setString(&cfg.Indicator.Backend, p.Backend)
		setString(&cfg.Indicator.DesktopAppName, p.DesktopAppName)
		setBool(&cfg.Indicator.SoundEnable, p.SoundEnable)
		setInt(&cfg.Indicator.ErrorTimeoutMS, p.ErrorTimeoutMS)
	}
	if p := payload.Output; p != nil {
		setBool(&cfg.Output.Clipboard, p.Clipboard)
		setBool(&cfg.Output.TUI, p.TUI)
	}
	if p := payload.Debug; p != nil {
		setBool(&cfg.Debug.EnableAudioDump, p.AudioDump)
		setBool(&cfg.Debug.EnableASRDump, p.ASRDump)
	}
	if p := payload.Vocab; p != nil {
		return p.apply(&cfg.Vocab)
	}
	return nil, nil
}

func (p *jsoncVideo) apply(video *VideoConfig) error {
	setString(&video.Device, p.Device)
	setString(&video.MimeType, p.MimeType)
	setString(&video.Filename, p.Filename)
	return setCommand(&video.Capture, "video.capture_cmd", p.CaptureCmd)
}

func (p *jsoncTTS) apply(tts *TTSConfig) error {
	setString(&tts.Backend, p.Backend)
	setString(&tts.Voice, p.Voice)
	setString(&tts.Endpoint, p.Endpoint)
	return setCommand(&tts.Command, "tts.command", p.Command)
}

// apply merges vocab sets by name; a set without boost is accepted with a
// warning.
func (p *jsoncVocab) apply(vocab *VocabConfig) ([]Warning, error) {
	if p.Global != nil {
		vocab.GlobalSets = vocab.GlobalSets[:0]
		for _, name := range *p.Global {
			if name = strings.TrimSpace(name); name != "" {
				vocab.GlobalSets = append(vocab.GlobalSets, name)
			}
		}
	}
	setInt(&vocab.MaxPhrases, p.MaxPhrases)
	if len(p.Sets) == 0 {
		return nil, nil
	}

	if vocab.Sets == nil {
		vocab.Sets = make(map[string]VocabSet, len(p.Sets))
	}
	var warnings []Warning
	for rawName, set := range p.Sets {
		name := strings.TrimSpace(rawName)
		if name == "" {
			return nil, errors.New("vocab.sets contains an empty set name")
		}
		entry := VocabSet{Name: name, Phrases: append([]string(nil), set.Phrases...)}
		if set.Boost == nil {
			warnings = append(warnings, Warning{Message: fmt.Sprintf("vocab set %q has no boost; phrases are hints only", name)})
		} else {
			entry.Boost = *set.Boost
		}
		vocab.Sets[name] = entry
	}
	return warnings, nil
}

func parseCommand(key string, raw string) (CommandConfig, error) {
	argv, err := parseArgv(raw)
	if err != nil {
		return CommandConfig{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	return CommandConfig{Raw: raw, Argv: argv}, nil
}

func setCommand(dst *CommandConfig, key string, src *string) error {
	if src == nil {
		return nil
	}
	command, err := parseCommand(key, *src)
	if err != nil {
		return err
	}
	*dst = command
	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func setRaw(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}
