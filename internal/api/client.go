// Package api talks to the recruitment backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/souhaylelhammadi/entretien/internal/interview"
	"github.com/souhaylelhammadi/entretien/internal/version"
)

// ErrUnauthorized means the token is missing, expired, or rejected.
var ErrUnauthorized = errors.New("not authenticated; run `entretien login`")

// UploadError carries the server's message for a failed save verbatim.
type UploadError struct {
	StatusCode int
	Message    string
}

func (e *UploadError) Error() string {
	if e.StatusCode == 0 {
		return "upload failed: " + e.Message
	}
	return fmt.Sprintf("upload failed (HTTP %d): %s", e.StatusCode, e.Message)
}

// ResponseError reports a failed non-upload request.
type ResponseError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.StatusCode, e.Message)
}

// Interview is the session definition fetched before recording.
type Interview struct {
	ID        string
	Title     string
	Status    string
	Questions []interview.Question
}

// Recording is one stored attempt.
type Recording struct {
	ID        string    `json:"id"`
	VideoURL  string    `json:"videoUrl"`
	Status    string    `json:"status"`
	Duration  int       `json:"duration"`
	CreatedAt time.Time `json:"createdAt"`
}

// SaveRequest is one finalize upload.
type SaveRequest struct {
	InterviewID    string
	Video          []byte
	Filename       string
	MimeType       string
	Metadata       interview.Metadata
	IdempotencyKey string
}

// SaveResult is the backend's acknowledgement.
type SaveResult struct {
	VideoURL   string
	Status     string
	Recordings int
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HealthPath string
	Tokens     TokenSource
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client is the backend API client.
type Client struct {
	base       *url.URL
	healthPath string
	tokens     TokenSource
	http       *http.Client
	logger     *slog.Logger
}

// NewClient validates opts and builds a client.
func NewClient(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid api base url %q", opts.BaseURL)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 2 * time.Minute
		}
		httpClient = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        4,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	healthPath := opts.HealthPath
	if healthPath == "" {
		healthPath = "/health"
	}
	return &Client{base: base, healthPath: healthPath, tokens: opts.Tokens, http: httpClient, logger: logger}, nil
}

// GetInterview fetches the interview and its questions.
func (c *Client) GetInterview(ctx context.Context, id string) (Interview, error) {
	resp, err := c.do(ctx, "get interview", http.MethodGet, "/interviews/"+url.PathEscape(id), nil, "", nil)
	if err != nil {
		return Interview{}, err
	}
	if resp.StatusCode/100 != 2 {
		return Interview{}, &ResponseError{Op: "get interview", StatusCode: resp.StatusCode, Message: serverMessage(resp.Body)}
	}

	var payload struct {
		Entretien json.RawMessage `json:"entretien"`
		Interview json.RawMessage `json:"interview"`
		Questions []wireQuestion  `json:"questions"`
	}
	if err := decodeEnvelope(resp.Body, &payload); err != nil {
		return Interview{}, fmt.Errorf("decode interview: %w", err)
	}

	out := Interview{ID: id}
	head := payload.Entretien
	if len(head) == 0 {
		head = payload.Interview
	}
	if len(head) > 0 {
		var meta struct {
			ID     string `json:"_id"`
			AltID  string `json:"id"`
			Title  string `json:"title"`
			Job    string `json:"jobTitle"`
			Status string `json:"status"`
		}
		if err := json.Unmarshal(head, &meta); err == nil {
			out.ID = firstNonEmpty(meta.ID, meta.AltID, id)
			out.Title = firstNonEmpty(meta.Title, meta.Job)
			out.Status = meta.Status
		}
	}
	for i, q := range payload.Questions {
		out.Questions = append(out.Questions, q.question(i))
	}
	return out, nil
}

// ListRecordings returns stored attempts for an interview.
func (c *Client) ListRecordings(ctx context.Context, id string) ([]Recording, error) {
	resp, err := c.do(ctx, "list recordings", http.MethodGet, "/interviews/"+url.PathEscape(id)+"/recordings", nil, "", nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		return nil, &ResponseError{Op: "list recordings", StatusCode: resp.StatusCode, Message: serverMessage(resp.Body)}
	}

	var list []wireRecording
	if err := json.Unmarshal(unwrapData(resp.Body), &list); err != nil {
		var wrapped struct {
			Recordings []wireRecording `json:"recordings"`
		}
		if err2 := decodeEnvelope(resp.Body, &wrapped); err2 != nil {
			return nil, fmt.Errorf("decode recordings: %w", err)
		}
		list = wrapped.Recordings
	}

	out := make([]Recording, 0, len(list))
	for _, r := range list {
		out = append(out, r.recording())
	}
	return out, nil
}

// SaveInterview uploads the artifact and metadata as multipart form data.
// Every failure after a request was attempted is an *UploadError unless the
// backend rejected the token.
func (c *Client) SaveInterview(ctx context.Context, req SaveRequest) (SaveResult, error) {
	if len(req.Video) == 0 {
		return SaveResult{}, errors.New("save interview: video is empty")
	}
	body, contentType, err := encodeSave(req)
	if err != nil {
		return SaveResult{}, err
	}

	key := req.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}
	headers := http.Header{}
	headers.Set("Idempotency-Key", key)

	path := "/interviews/" + url.PathEscape(req.InterviewID) + "/save"
	resp, err := c.do(ctx, "save interview", http.MethodPost, path, body, contentType, headers)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return SaveResult{}, err
		}
		return SaveResult{}, &UploadError{Message: err.Error()}
	}
	if resp.StatusCode/100 != 2 {
		return SaveResult{}, &UploadError{StatusCode: resp.StatusCode, Message: serverMessage(resp.Body)}
	}

	var payload struct {
		Success *bool  `json:"success"`
		Message string `json:"message"`
		Error   string `json:"error"`
		Data    struct {
			VideoURL   string          `json:"videoUrl"`
			Status     string          `json:"status"`
			Recordings json.RawMessage `json:"recordings"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return SaveResult{}, &UploadError{StatusCode: resp.StatusCode, Message: "unreadable response: " + err.Error()}
	}
	if payload.Success != nil && !*payload.Success {
		return SaveResult{}, &UploadError{StatusCode: resp.StatusCode, Message: firstNonEmpty(payload.Error, payload.Message, "server reported failure")}
	}
	return SaveResult{
		VideoURL:   payload.Data.VideoURL,
		Status:     payload.Data.Status,
		Recordings: countRecordings(payload.Data.Recordings),
	}, nil
}

// Health probes the backend without authentication.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(c.healthPath), nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", version.UserAgent())
	resp, err := tracedDo(c.http, req)
	if err != nil {
		return fmt.Errorf("reach backend: %w", err)
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("backend unhealthy: HTTP %d", resp.StatusCode)
	}
	return nil
}

func encodeSave(req SaveRequest) (*bytes.Buffer, string, error) {
	meta, err := json.Marshal(req.Metadata)
	if err != nil {
		return nil, "", fmt.Errorf("encode metadata: %w", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	filename := req.Filename
	if filename == "" {
		filename = "interview.webm"
	}
	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = "video/webm"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="video"; filename=%q`, filename))
	header.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create video part: %w", err)
	}
	if _, err := part.Write(req.Video); err != nil {
		return nil, "", fmt.Errorf("write video part: %w", err)
	}
	if err := mw.WriteField("metadata", string(meta)); err != nil {
		return nil, "", fmt.Errorf("write metadata part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

func (c *Client) do(ctx context.Context, op string, method string, path string, body io.Reader, contentType string, headers http.Header) (*tracedResponse, error) {
	if c.tokens == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}
	token, err := c.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := tracedDo(c.http, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	c.logger.Info("api request",
		append([]any{"op", op, "method", method, "path", path, "status", resp.StatusCode}, resp.Metrics.LogAttrs()...)...,
	)

	if resp.StatusCode == http.StatusUnauthorized {
		if derr := c.tokens.Discard(); derr != nil {
			c.logger.Warn("discard token failed", "error", derr)
		}
		return nil, fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}
	return resp, nil
}

func (c *Client) endpoint(path string) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	return u.String()
}

type wireQuestion struct {
	ID           string `json:"_id"`
	AltID        string `json:"id"`
	Text         string `json:"text"`
	Question     string `json:"question"`
	QuestionText string `json:"questionText"`
	Order        *int   `json:"order"`
	Type         string `json:"type"`
}

func (w wireQuestion) question(position int) interview.Question {
	order := position
	if w.Order != nil {
		order = *w.Order
	}
	return interview.Question{
		ID:    firstNonEmpty(w.ID, w.AltID),
		Text:  strings.TrimSpace(firstNonEmpty(w.Text, w.Question, w.QuestionText)),
		Order: order,
		Type:  w.Type,
	}
}

type wireRecording struct {
	ID        string    `json:"_id"`
	AltID     string    `json:"id"`
	VideoURL  string    `json:"videoUrl"`
	Status    string    `json:"status"`
	Duration  int       `json:"duration"`
	CreatedAt time.Time `json:"createdAt"`
}

func (w wireRecording) recording() Recording {
	return Recording{
		ID:        firstNonEmpty(w.ID, w.AltID),
		VideoURL:  w.VideoURL,
		Status:    w.Status,
		Duration:  w.Duration,
		CreatedAt: w.CreatedAt,
	}
}

// decodeEnvelope accepts both bare payloads and {success, data:{...}}.
func decodeEnvelope(body []byte, out any) error {
	return json.Unmarshal(unwrapData(body), out)
}

func unwrapData(body []byte) []byte {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Data) > 0 && string(envelope.Data) != "null" {
		return envelope.Data
	}
	return body
}

func serverMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Msg     string `json:"msg"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if msg := firstNonEmpty(payload.Error, payload.Message, payload.Msg); msg != "" {
			return msg
		}
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return "empty response"
	}
	return msg
}

func countRecordings(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		return len(list)
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	return 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
