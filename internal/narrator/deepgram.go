package narrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/souhaylelhammadi/entretien/internal/audio"
)

const (
	// DefaultDeepgramSpeakEndpoint is the REST synthesis endpoint.
	DefaultDeepgramSpeakEndpoint = "https://api.deepgram.com/v1/speak"
	deepgramSpeakRate            = 24000
	maxSpeechBytes               = 32 << 20
)

// PlayFunc plays mono s16 samples until done or ctx is cancelled.
type PlayFunc func(ctx context.Context, samples []int16, sampleRate int, mediaName string) error

// DeepgramSynthesizer fetches linear16 audio from Deepgram and plays it.
type DeepgramSynthesizer struct {
	Endpoint string
	APIKey   string
	Voice    string
	Client   *http.Client
	Play     PlayFunc
}

func (d DeepgramSynthesizer) Speak(ctx context.Context, text string) error {
	pcm, err := d.fetch(ctx, text)
	if err != nil {
		return err
	}
	play := d.Play
	if play == nil {
		play = audio.PlayPCM
	}
	return play(ctx, audio.DecodePCM16LE(pcm), deepgramSpeakRate, "entretien narration")
}

func (d DeepgramSynthesizer) fetch(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(d.APIKey) == "" {
		return nil, errors.New("deepgram api key is empty")
	}
	endpoint, err := d.url()
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build speak request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+d.APIKey)
	req.Header.Set("Content-Type", "application/json")

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deepgram speak: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSpeechBytes))
	if err != nil {
		return nil, fmt.Errorf("read speak response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("deepgram speak: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}

func (d DeepgramSynthesizer) url() (string, error) {
	raw := strings.TrimSpace(d.Endpoint)
	if raw == "" {
		raw = DefaultDeepgramSpeakEndpoint
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse speak endpoint %q: %w", raw, err)
	}
	voice := strings.TrimSpace(d.Voice)
	if voice == "" {
		voice = "aura-2-thalia-en"
	}
	q := u.Query()
	q.Set("model", voice)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(deepgramSpeakRate))
	q.Set("container", "none")
	u.RawQuery = q.Encode()
	return u.String(), nil
}
