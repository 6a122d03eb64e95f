package adapter

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/PentesterFlow/OpenExplorer/internal/errors"
	"github.com/PentesterFlow/OpenExplorer/pkg/model"
)

// DefaultMaxBodyBytes caps how much of a response body is read.
const DefaultMaxBodyBytes = 10 * 1024 * 1024

// TransportConfig holds configuration for the shared transport.
type TransportConfig struct {
	UserAgent           string
	MaxBodyBytes        int64
	DialTimeout         time.Duration
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
}

// DefaultTransportConfig returns sensible defaults.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		UserAgent:           "OpenExplorer/1.0",
		MaxBodyBytes:        DefaultMaxBodyBytes,
		DialTimeout:         5 * time.Second,
		MaxIdleConnsPerHost: 8,
		MaxConnsPerHost:     16,
	}
}

// Transport owns the HTTP clients and websocket dialers used by every
// adapter: one of each per tlsVerify setting. Deadlines come from the
// caller's context, never from the client.
type Transport struct {
	clients   map[bool]*http.Client
	dialers   map[bool]*websocket.Dialer
	userAgent string
	maxBody   int64
}

// NewTransport creates a transport.
func NewTransport(config TransportConfig) *Transport {
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = 5 * time.Second
	}

	t := &Transport{
		clients:   make(map[bool]*http.Client, 2),
		dialers:   make(map[bool]*websocket.Dialer, 2),
		userAgent: config.UserAgent,
		maxBody:   config.MaxBodyBytes,
	}

	for _, verify := range []bool{true, false} {
		tlsConfig := &tls.Config{InsecureSkipVerify: !verify}
		dialer := &net.Dialer{
			Timeout:   config.DialTimeout,
			KeepAlive: 30 * time.Second,
		}

		t.clients[verify] = &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           dialer.DialContext,
				MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
				MaxConnsPerHost:       config.MaxConnsPerHost,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   5 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
				ForceAttemptHTTP2:     true,
				TLSClientConfig:       tlsConfig,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		}

		t.dialers[verify] = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			NetDialContext:   dialer.DialContext,
			HandshakeTimeout: 10 * time.Second,
			TLSClientConfig:  tlsConfig,
		}
	}

	return t
}

// Do performs one HTTP exchange. Status codes are never errors here.
func (t *Transport) Do(ctx context.Context, ep model.Endpoint, req *Request) (*Raw, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, errors.NewValidationError(ep.ID, "failed to create request: "+err.Error())
	}
	httpReq.Header = req.Header.Clone()
	if httpReq.Header == nil {
		httpReq.Header = make(http.Header)
	}
	if t.userAgent != "" {
		httpReq.Header.Set("User-Agent", t.userAgent)
	}

	resp, err := t.clients[ep.TLSVerify].Do(httpReq)
	if err != nil {
		return nil, errors.Categorize(err, ep.ID)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBody+1))
	if err != nil {
		return nil, errors.Categorize(err, ep.ID)
	}

	raw := &Raw{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   data,
		Limit:  t.maxBody,
	}
	if int64(len(data)) > t.maxBody {
		raw.Body = data[:t.maxBody]
		raw.Truncated = true
	}
	return raw, nil
}

// Stream opens a websocket, sends the subscribe frame and collects frames
// until the window closes, the message cap is hit or the peer closes.
// A rejected handshake is returned as a Raw carrying the HTTP status.
func (t *Transport) Stream(ctx context.Context, ep model.Endpoint, req *Request) (*Raw, error) {
	conn, resp, err := t.dial(ctx, ep, req)
	if err != nil {
		if resp != nil {
			return rejectedHandshake(resp, t.maxBody), nil
		}
		return nil, errors.Categorize(err, ep.ID)
	}
	defer conn.Close()

	raw := &Raw{Status: resp.StatusCode, Header: resp.Header, Limit: t.maxBody}

	stream := req.Stream
	if stream == nil {
		return raw, nil
	}

	// Unblock ReadMessage when the caller cancels.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	if stream.Subscribe != nil {
		if err := conn.WriteMessage(websocket.TextMessage, stream.Subscribe); err != nil {
			if ctx.Err() != nil {
				return nil, errors.Categorize(ctx.Err(), ep.ID)
			}
			return nil, errors.NewTransportError(ep.ID, "subscribe", err)
		}
	}

	windowEnd := time.Now().Add(stream.Window)
	conn.SetReadDeadline(windowEnd)

	var size int64
	for stream.MaxMessages <= 0 || len(raw.Messages) < stream.MaxMessages {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.Categorize(ctx.Err(), ep.ID)
			}
			break // window elapsed or peer closed
		}
		size += int64(len(data))
		if size > t.maxBody {
			raw.Truncated = true
			break
		}
		raw.Messages = append(raw.Messages, data)
	}

	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return raw, nil
}

// Handshake opens and immediately closes a websocket.
func (t *Transport) Handshake(ctx context.Context, ep model.Endpoint, req *Request) (*Raw, error) {
	conn, resp, err := t.dial(ctx, ep, req)
	if err != nil {
		if resp != nil {
			return rejectedHandshake(resp, t.maxBody), nil
		}
		return nil, errors.Categorize(err, ep.ID)
	}
	conn.Close()
	return &Raw{Status: resp.StatusCode, Header: resp.Header}, nil
}

func (t *Transport) dial(ctx context.Context, ep model.Endpoint, req *Request) (*websocket.Conn, *http.Response, error) {
	header := req.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	if t.userAgent != "" {
		header.Set("User-Agent", t.userAgent)
	}
	return t.dialers[ep.TLSVerify].DialContext(ctx, req.URL, header)
}

func rejectedHandshake(resp *http.Response, limit int64) *Raw {
	raw := &Raw{Status: resp.StatusCode, Header: resp.Header, Limit: limit}
	if resp.Body != nil {
		raw.Body, _ = io.ReadAll(io.LimitReader(resp.Body, limit))
		resp.Body.Close()
	}
	return raw
}

// wsURL converts an http(s) endpoint URL to ws(s).
func wsURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	return u.String(), nil
}
