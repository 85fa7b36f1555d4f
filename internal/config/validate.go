package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	var warnings []Warning
	sections := []func() ([]Warning, error){
		func() ([]Warning, error) { return validateAPI(cfg.API) },
		func() ([]Warning, error) { return validateVideo(cfg.Video) },
		func() ([]Warning, error) { return validateASR(cfg.ASR) },
		func() ([]Warning, error) { return validateTTS(cfg.TTS) },
		func() ([]Warning, error) { return validateInterview(cfg.Interview) },
		func() ([]Warning, error) { return validateIndicator(cfg.Indicator) },
		func() ([]Warning, error) {
			if cfg.Vocab.MaxPhrases <= 0 {
				return nil, errors.New("vocab.max_phrases must be > 0")
			}
			_, vocabWarnings, err := BuildSpeechPhrases(cfg)
			return vocabWarnings, err
		},
	}
	for _, validate := range sections {
		sectionWarnings, err := validate()
		if err != nil {
			return nil, err
		}
		warnings = append(warnings, sectionWarnings...)
	}
	return warnings, nil
}

func validateAPI(c APIConfig) ([]Warning, error) {
	var warnings []Warning
	base, err := url.Parse(strings.TrimSpace(c.BaseURL))
	if err != nil || base.Host == "" || (base.Scheme != "http" && base.Scheme != "https") {
		return nil, fmt.Errorf("api.base_url must be an absolute http(s) URL")
	}
	if base.Scheme == "http" && !isLoopbackHost(base.Hostname()) {
		warnings = append(warnings, Warning{Message: fmt.Sprintf("api.base_url %q is not https; the bearer token travels in clear text", c.BaseURL)})
	}
	if c.TimeoutMS <= 0 {
		return nil, fmt.Errorf("api.timeout_ms must be > 0")
	}
	if !strings.HasPrefix(strings.TrimSpace(c.HealthPath), "/") {
		return nil, fmt.Errorf("api.health_path must start with '/'")
	}
	return warnings, nil
}

func validateVideo(c VideoConfig) ([]Warning, error) {
	var warnings []Warning
	if strings.TrimSpace(c.Device) == "" {
		return nil, fmt.Errorf("video.device must not be empty")
	}
	if len(c.Capture.Argv) == 0 {
		return nil, fmt.Errorf("video.capture_cmd must not be empty")
	}
	if !hasPlaceholder(c.Capture.Argv, "{device}") {
		warnings = append(warnings, Warning{Message: "video.capture_cmd has no {device} placeholder; video.device is ignored"})
	}
	warnings = append(warnings, checkCommandTemplate("video.capture_cmd", c.Capture.Argv, capturePlaceholders)...)
	if strings.TrimSpace(c.MimeType) == "" {
		return nil, fmt.Errorf("video.mime_type must not be empty")
	}
	if strings.TrimSpace(c.Filename) == "" {
		return nil, fmt.Errorf("video.filename must not be empty")
	}
	return warnings, nil
}

func validateASR(c ASRConfig) ([]Warning, error) {
	if provider := strings.ToLower(strings.TrimSpace(c.Provider)); provider != "deepgram" {
		return nil, fmt.Errorf("asr.provider must be one of: deepgram")
	}
	endpoint, err := url.Parse(strings.TrimSpace(c.Endpoint))
	if err != nil || (endpoint.Scheme != "ws" && endpoint.Scheme != "wss") || endpoint.Host == "" {
		return nil, fmt.Errorf("asr.endpoint must be a ws:// or wss:// URL")
	}
	if strings.TrimSpace(c.LanguageCode) == "" {
		return nil, fmt.Errorf("asr.language_code must not be empty")
	}
	if strings.TrimSpace(c.APIKeyEnv) == "" {
		return nil, fmt.Errorf("asr.api_key_env must not be empty")
	}
	return nil, nil
}

func validateTTS(c TTSConfig) ([]Warning, error) {
	switch strings.ToLower(strings.TrimSpace(c.Backend)) {
	case "command":
		if len(c.Command.Argv) == 0 {
			return nil, fmt.Errorf("tts.command must not be empty when tts.backend=command")
		}
		return checkCommandTemplate("tts.command", c.Command.Argv, speakPlaceholders), nil
	case "deepgram":
		speak, err := url.Parse(strings.TrimSpace(c.Endpoint))
		if err != nil || (speak.Scheme != "http" && speak.Scheme != "https") || speak.Host == "" {
			return nil, fmt.Errorf("tts.endpoint must be an http(s) URL when tts.backend=deepgram")
		}
	default:
		return nil, fmt.Errorf("tts.backend must be one of: command, deepgram")
	}
	return nil, nil
}

func validateInterview(c InterviewConfig) ([]Warning, error) {
	var warnings []Warning
	if c.MaxDurationS <= 0 {
		return nil, fmt.Errorf("interview.max_duration_s must be > 0")
	}
	if c.ChunkIntervalMS <= 0 {
		return nil, fmt.Errorf("interview.chunk_interval_ms must be > 0")
	}
	if c.SettleDelayMS < 0 {
		return nil, fmt.Errorf("interview.settle_delay_ms must be >= 0")
	}
	if c.SettleDelayMS > 5000 {
		warnings = append(warnings, Warning{Message: fmt.Sprintf("interview.settle_delay_ms=%d delays every question change noticeably", c.SettleDelayMS)})
	}
	return warnings, nil
}

func validateIndicator(c IndicatorConfig) ([]Warning, error) {
	backend := strings.ToLower(strings.TrimSpace(c.Backend))
	if backend == "" {
		return nil, fmt.Errorf("indicator.backend must not be empty")
	}
	if backend != "hypr" && backend != "desktop" {
		return nil, fmt.Errorf("indicator.backend must be one of: hypr, desktop")
	}
	if backend == "desktop" && strings.TrimSpace(c.DesktopAppName) == "" {
		return nil, fmt.Errorf("indicator.desktop_app_name must not be empty when indicator.backend=desktop")
	}
	if c.ErrorTimeoutMS < 0 {
		return nil, fmt.Errorf("indicator.error_timeout_ms must be >= 0")
	}
	return nil, nil
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// BuildSpeechPhrases merges enabled vocab sets into deterministic recognizer keyword payloads.
func BuildSpeechPhrases(cfg Config) ([]SpeechPhrase, []Warning, error) {
	enabledSets := cfg.Vocab.GlobalSets
	if len(enabledSets) == 0 {
		return nil, nil, nil
	}

	type candidate struct {
		boost float64
		from  string
	}

	warnings := make([]Warning, 0)
	selected := make(map[string]candidate)

	for _, name := range enabledSets {
		set, ok := cfg.Vocab.Sets[name]
		if !ok {
			return nil, nil, fmt.Errorf("vocab.global references unknown set %q", name)
		}
		for _, phrase := range set.Phrases {
			phrase = strings.TrimSpace(phrase)
			if phrase == "" {
				continue
			}
			if existing, exists := selected[phrase]; exists {
				if set.Boost > existing.boost {
					warnings = append(warnings, Warning{Message: fmt.Sprintf("phrase %q present in %q and %q; using higher boost %.2f", phrase, existing.from, name, set.Boost)})
					selected[phrase] = candidate{boost: set.Boost, from: name}
				}
				continue
			}
			selected[phrase] = candidate{boost: set.Boost, from: name}
		}
	}

	if len(selected) > cfg.Vocab.MaxPhrases {
		return nil, nil, fmt.Errorf("vocabulary phrase count %d exceeds vocab.max_phrases=%d", len(selected), cfg.Vocab.MaxPhrases)
	}

	phrases := make([]SpeechPhrase, 0, len(selected))
	for phrase, c := range selected {
		phrases = append(phrases, SpeechPhrase{Phrase: phrase, Boost: float32(c.boost)})
	}

	sort.Slice(phrases, func(i, j int) bool {
		if phrases[i].Phrase == phrases[j].Phrase {
			return phrases[i].Boost < phrases[j].Boost
		}
		return phrases[i].Phrase < phrases[j].Phrase
	})

	return phrases, warnings, nil
}
