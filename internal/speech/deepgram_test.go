package speech

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

func TestDeepgramURLParameters(t *testing.T) {
	raw, err := DeepgramURL(DeepgramConfig{
		LanguageCode:         "fr-FR",
		Model:                "nova-2",
		AutomaticPunctuation: true,
		Keywords:             []Keyword{{Phrase: "Kubernetes", Boost: 2}, {Phrase: " "}},
	})
	require.NoError(t, err)

	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "wss", parsed.Scheme)
	q := parsed.Query()
	require.Equal(t, "nova-2", q.Get("model"))
	require.Equal(t, "fr-FR", q.Get("language"))
	require.Equal(t, "16000", q.Get("sample_rate"))
	require.Equal(t, "true", q.Get("interim_results"))
	require.Equal(t, "true", q.Get("punctuate"))
	require.Equal(t, []string{"Kubernetes:2"}, q["keywords"])
}

func TestDeepgramURLNova3UsesKeyterms(t *testing.T) {
	raw, err := DeepgramURL(DeepgramConfig{Keywords: []Keyword{{Phrase: "Golang", Boost: 1.5}}})
	require.NoError(t, err)
	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "nova-3", parsed.Query().Get("model"))
	require.Equal(t, "Golang", parsed.Query().Get("keyterm"))
	require.Empty(t, parsed.Query()["keywords"])
}

func TestDeepgramURLRejectsHTTP(t *testing.T) {
	_, err := DeepgramURL(DeepgramConfig{Endpoint: "https://api.deepgram.com/v1/listen"})
	require.Error(t, err)
}

func TestNewDeepgramDialerRequiresKey(t *testing.T) {
	_, err := NewDeepgramDialer(DeepgramConfig{})
	require.Error(t, err)
}

func TestDecodeDeepgram(t *testing.T) {
	result, ok, err := decodeDeepgram([]byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":" hello "}]}}`))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, Result{Transcript: "hello", IsFinal: true}, result)

	_, ok, err = decodeDeepgram([]byte(`{"type":"Metadata"}`))
	require.NoError(t, err)
	require.False(t, ok)

	_, _, err = decodeDeepgram([]byte(`{"type":"Error","description":"bad key"}`))
	require.ErrorContains(t, err, "bad key")

	_, _, err = decodeDeepgram([]byte(`not json`))
	require.Error(t, err)
}

func TestDeepgramRecognizerRoundTrip(t *testing.T) {
	received := make(chan []byte, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Token test-key", r.Header.Get("Authorization"))
		require.Equal(t, "en-US", r.URL.Query().Get("language"))

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		ctx := r.Context()
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if typ == websocket.MessageBinary {
				received <- data
				_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"hel"}]}}`))
				continue
			}
			if strings.Contains(string(data), "CloseStream") {
				_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"hello"}]}}`))
				_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"Metadata"}`))
				_ = conn.Close(websocket.StatusNormalClosure, "")
				return
			}
		}
	}))
	defer server.Close()

	var debug bytes.Buffer
	dial, err := NewDeepgramDialer(DeepgramConfig{
		Endpoint:     "ws" + strings.TrimPrefix(server.URL, "http"),
		APIKey:       "test-key",
		LanguageCode: "en-US",
		DebugSink:    &debug,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rec, err := dial(ctx)
	require.NoError(t, err)
	defer rec.Close()

	require.NoError(t, rec.SendAudio(ctx, []byte{0, 1, 2, 3}))
	require.Equal(t, []byte{0, 1, 2, 3}, <-received)

	interim, err := rec.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, Result{Transcript: "hel"}, interim)

	require.NoError(t, rec.CloseSend(ctx))
	require.Error(t, rec.SendAudio(ctx, []byte{9}))

	final, err := rec.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, Result{Transcript: "hello", IsFinal: true}, final)

	_, err = rec.Recv(ctx)
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, 3, strings.Count(debug.String(), "\n"))
}

func TestDeepgramRecognizerSendsKeepAliveWhenIdle(t *testing.T) {
	texts := make(chan string, 8)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		for {
			typ, data, err := conn.Read(r.Context())
			if err != nil {
				return
			}
			if typ == websocket.MessageText {
				texts <- string(data)
			}
		}
	}))
	defer server.Close()

	dial, err := NewDeepgramDialer(DeepgramConfig{
		Endpoint:          "ws" + strings.TrimPrefix(server.URL, "http"),
		APIKey:            "test-key",
		KeepAliveInterval: 40 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rec, err := dial(ctx)
	require.NoError(t, err)
	defer rec.Close()

	select {
	case msg := <-texts:
		require.JSONEq(t, `{"type":"KeepAlive"}`, msg)
	case <-time.After(2 * time.Second):
		t.Fatal("no keepalive sent on an idle stream")
	}

	require.NoError(t, rec.CloseSend(ctx))
	require.Eventually(t, func() bool {
		select {
		case msg := <-texts:
			return strings.Contains(msg, "CloseStream")
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)
}
