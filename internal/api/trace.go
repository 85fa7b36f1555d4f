package api

import (
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptrace"
	"time"
)

// Metrics captures per-request network timings.
type Metrics struct {
	DNS        time.Duration
	TCP        time.Duration
	TLS        time.Duration
	ConnReused bool
	Upload     time.Duration
	TTFB       time.Duration
	Total      time.Duration
}

// LogAttrs flattens metrics for slog.
func (m Metrics) LogAttrs() []any {
	return []any{
		"dns_ms", m.DNS.Milliseconds(),
		"tcp_ms", m.TCP.Milliseconds(),
		"tls_ms", m.TLS.Milliseconds(),
		"conn_reused", m.ConnReused,
		"upload_ms", m.Upload.Milliseconds(),
		"ttfb_ms", m.TTFB.Milliseconds(),
		"total_ms", m.Total.Milliseconds(),
	}
}

type tracedResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Metrics    Metrics
}

const maxResponseBytes = 4 << 20

func tracedDo(client *http.Client, req *http.Request) (*tracedResponse, error) {
	var m Metrics
	var dnsStart, tcpStart, tlsStart, gotConn, wroteRequest time.Time

	trace := &httptrace.ClientTrace{
		DNSStart:          func(httptrace.DNSStartInfo) { dnsStart = time.Now() },
		DNSDone:           func(httptrace.DNSDoneInfo) { m.DNS = time.Since(dnsStart) },
		ConnectStart:      func(_, _ string) { tcpStart = time.Now() },
		ConnectDone:       func(_, _ string, _ error) { m.TCP = time.Since(tcpStart) },
		TLSHandshakeStart: func() { tlsStart = time.Now() },
		TLSHandshakeDone:  func(tls.ConnectionState, error) { m.TLS = time.Since(tlsStart) },
		GotConn: func(info httptrace.GotConnInfo) {
			gotConn = time.Now()
			m.ConnReused = info.Reused
		},
		WroteRequest: func(httptrace.WroteRequestInfo) {
			wroteRequest = time.Now()
			m.Upload = wroteRequest.Sub(gotConn)
		},
		GotFirstResponseByte: func() { m.TTFB = time.Since(wroteRequest) },
	}

	start := time.Now()
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), trace))
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}
	m.Total = time.Since(start)

	return &tracedResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		Metrics:    m,
	}, nil
}
