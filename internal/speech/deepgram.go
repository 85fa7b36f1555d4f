package speech

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// DefaultDeepgramEndpoint is the streaming listen endpoint.
const DefaultDeepgramEndpoint = "wss://api.deepgram.com/v1/listen"

// Deepgram closes a stream that sees no data for 10s.
const defaultKeepAliveInterval = 8 * time.Second

// Keyword is one vocabulary boost term.
type Keyword struct {
	Phrase string
	Boost  float64
}

// DeepgramConfig configures the Deepgram streaming recognizer.
type DeepgramConfig struct {
	Endpoint             string
	APIKey               string
	Model                string
	LanguageCode         string
	SampleRate           int
	AutomaticPunctuation bool
	Keywords             []Keyword

	// KeepAliveInterval is how long the stream may sit without audio before
	// a KeepAlive message is sent. Zero uses 8s.
	KeepAliveInterval time.Duration

	// DebugSink receives every raw server message as one JSON line.
	DebugSink io.Writer
}

type deepgramResponse struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
	Description string `json:"description"`
	Message     string `json:"message"`
}

type deepgramRecognizer struct {
	conn  *websocket.Conn
	debug io.Writer

	writeMu   sync.Mutex
	closed    bool
	lastWrite time.Time

	stopKeepAlive chan struct{}
	stopOnce      sync.Once
}

// NewDeepgramDialer returns a Dialer for the Deepgram streaming API.
func NewDeepgramDialer(cfg DeepgramConfig) (Dialer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("deepgram api key is empty")
	}
	endpoint, err := DeepgramURL(cfg)
	if err != nil {
		return nil, err
	}

	interval := cfg.KeepAliveInterval
	if interval <= 0 {
		interval = defaultKeepAliveInterval
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+cfg.APIKey)

	return func(ctx context.Context) (Recognizer, error) {
		conn, resp, err := websocket.Dial(ctx, endpoint, &websocket.DialOptions{HTTPHeader: headers})
		if err != nil {
			if resp != nil {
				return nil, fmt.Errorf("dial deepgram (%s): %w", resp.Status, err)
			}
			return nil, fmt.Errorf("dial deepgram: %w", err)
		}
		conn.SetReadLimit(1 << 20)
		rec := &deepgramRecognizer{
			conn:          conn,
			debug:         cfg.DebugSink,
			lastWrite:     time.Now(),
			stopKeepAlive: make(chan struct{}),
		}
		go rec.keepAlive(interval)
		return rec, nil
	}, nil
}

// DeepgramURL builds the listen URL with recognition parameters.
func DeepgramURL(cfg DeepgramConfig) (string, error) {
	raw := strings.TrimSpace(cfg.Endpoint)
	if raw == "" {
		raw = DefaultDeepgramEndpoint
	}
	endpoint, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse deepgram endpoint %q: %w", raw, err)
	}
	if endpoint.Scheme != "ws" && endpoint.Scheme != "wss" {
		return "", fmt.Errorf("deepgram endpoint %q must use ws or wss", raw)
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "nova-3"
	}
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = 16000
	}

	q := endpoint.Query()
	q.Set("model", model)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(rate))
	q.Set("channels", "1")
	q.Set("interim_results", "true")
	q.Set("punctuate", strconv.FormatBool(cfg.AutomaticPunctuation))
	if lang := strings.TrimSpace(cfg.LanguageCode); lang != "" {
		q.Set("language", lang)
	}
	for _, kw := range cfg.Keywords {
		phrase := strings.TrimSpace(kw.Phrase)
		if phrase == "" {
			continue
		}
		// nova-3 takes key terms without weights; older models take keywords.
		if strings.HasPrefix(model, "nova-3") {
			q.Add("keyterm", phrase)
			continue
		}
		q.Add("keywords", phrase+":"+strconv.FormatFloat(kw.Boost, 'f', -1, 64))
	}
	endpoint.RawQuery = q.Encode()
	return endpoint.String(), nil
}

func (d *deepgramRecognizer) SendAudio(ctx context.Context, pcm []byte) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	if d.closed {
		return errors.New("recognizer closed for sending")
	}
	d.lastWrite = time.Now()
	return d.conn.Write(ctx, websocket.MessageBinary, pcm)
}

// keepAlive sends a KeepAlive text message whenever no audio was written
// for interval. It stops after CloseSend or Close.
func (d *deepgramRecognizer) keepAlive(interval time.Duration) {
	ticker := time.NewTicker(interval / 4)
	defer ticker.Stop()
	for {
		select {
		case <-d.stopKeepAlive:
			return
		case now := <-ticker.C:
			if !d.sendKeepAlive(now, interval) {
				return
			}
		}
	}
}

func (d *deepgramRecognizer) sendKeepAlive(now time.Time, interval time.Duration) bool {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	if d.closed {
		return false
	}
	if now.Sub(d.lastWrite) < interval {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), interval)
	defer cancel()
	if err := d.conn.Write(ctx, websocket.MessageText, []byte(`{"type":"KeepAlive"}`)); err != nil {
		return false
	}
	d.lastWrite = now
	return true
}

func (d *deepgramRecognizer) CloseSend(ctx context.Context) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`))
}

func (d *deepgramRecognizer) Recv(ctx context.Context) (Result, error) {
	for {
		_, data, err := d.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return Result{}, io.EOF
			}
			return Result{}, err
		}
		if d.debug != nil {
			_, _ = d.debug.Write(append(append([]byte(nil), data...), '\n'))
		}

		result, ok, err := decodeDeepgram(data)
		if err != nil {
			return Result{}, err
		}
		if ok {
			return result, nil
		}
	}
}

// decodeDeepgram maps one server message to a Result. Metadata and
// speech-started messages yield ok=false.
func decodeDeepgram(data []byte) (Result, bool, error) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return Result{}, false, fmt.Errorf("decode deepgram message: %w", err)
	}
	switch resp.Type {
	case "Results":
		text := ""
		if len(resp.Channel.Alternatives) > 0 {
			text = strings.TrimSpace(resp.Channel.Alternatives[0].Transcript)
		}
		return Result{Transcript: text, IsFinal: resp.IsFinal}, true, nil
	case "Error":
		msg := resp.Description
		if msg == "" {
			msg = resp.Message
		}
		return Result{}, false, fmt.Errorf("deepgram error: %s", msg)
	default:
		return Result{}, false, nil
	}
}

func (d *deepgramRecognizer) Close() error {
	d.stopOnce.Do(func() { close(d.stopKeepAlive) })
	return d.conn.Close(websocket.StatusNormalClosure, "")
}
