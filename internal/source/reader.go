// Package source fetches raw source content from local files or remote URLs and
// decodes it through an ordered list of candidate encodings.
package source

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/hyperjump/fsmcheck/internal/apperr"
	"github.com/hyperjump/fsmcheck/internal/models"
	"go.uber.org/zap"
)

const (
	defaultTimeout   = 5 * time.Second
	defaultMaxBytes  = 64 << 20
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// Content is the raw and decoded form of a source.
type Content struct {
	Raw      []byte
	Text     string
	Encoding string
	Attempts []Attempt
}

// Config configures a Reader.
type Config struct {
	Timeout time.Duration
	// MaxBytes caps the remote response body.
	MaxBytes  int64
	UserAgent string
	// InsecureSkipVerify disables TLS certificate validation for remote sources.
	InsecureSkipVerify bool
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = defaultMaxBytes
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
}

// Reader fetches source content. It keeps no cache.
type Reader struct {
	client   *http.Client
	config   Config
	decoders []Decoder
	logger   *zap.Logger
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithLogger sets a logger for decode and fetch diagnostics.
func WithLogger(l *zap.Logger) ReaderOption {
	return func(r *Reader) { r.logger = l }
}

// WithDecoders replaces the default decoder chain.
func WithDecoders(d []Decoder) ReaderOption {
	return func(r *Reader) { r.decoders = d }
}

// WithHTTPClient replaces the HTTP client (tests).
func WithHTTPClient(c *http.Client) ReaderOption {
	return func(r *Reader) { r.client = c }
}

// NewReader creates a Reader. Relaxed certificate validation is logged at WARN.
func NewReader(cfg Config, opts ...ReaderOption) *Reader {
	cfg.defaults()
	r := &Reader{
		config:   cfg,
		decoders: DefaultDecoders(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.client == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via config
			r.logger.Warn("TLS certificate verification disabled for remote sources")
		}
		r.client = &http.Client{Timeout: cfg.Timeout, Transport: transport}
	}
	return r
}

// Read fetches and decodes the source. It fails with apperr.KindSourceUnreadable
// when the origin cannot be opened or fetched; decoding itself cannot fail with the
// default chain.
func (r *Reader) Read(ctx context.Context, src models.SourceConfig) (*Content, error) {
	var (
		raw []byte
		err error
	)
	switch {
	case src.Kind.Local():
		raw, err = r.readFile(src.Location)
	case src.Kind == models.SourceRemoteDelimited:
		raw, err = r.fetch(ctx, src.Location)
	default:
		return nil, apperr.SourceUnreadable("select transport", fmt.Errorf("unknown source kind %q", src.Kind))
	}
	if err != nil {
		return nil, err
	}

	text, enc, attempts, err := Decode(raw, r.decoders)
	for _, a := range attempts {
		if a.Err != nil {
			r.logger.Debug("decode attempt failed", zap.String("encoding", a.Encoding), zap.Error(a.Err))
		}
	}
	if err != nil {
		return nil, apperr.SourceUnreadable("decode", err)
	}
	r.logger.Info("source read",
		zap.String("kind", string(src.Kind)),
		zap.String("location", src.Location),
		zap.String("encoding", enc),
		zap.Int("bytes", len(raw)),
	)
	return &Content{Raw: raw, Text: text, Encoding: enc, Attempts: attempts}, nil
}

func (r *Reader) readFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.SourceUnreadable("read file", err)
	}
	return raw, nil
}

// fetch issues a single GET. There is no retry: a failed refresh is retried by the caller.
func (r *Reader) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperr.SourceUnreadable("new request", err)
	}
	req.Header.Set("User-Agent", r.config.UserAgent)
	req.Header.Set("Accept", "text/csv,text/plain;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ru-RU,ru;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Connection", "keep-alive")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, apperr.SourceUnreadable("http get", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperr.SourceUnreadable("http get", fmt.Errorf("http %d", resp.StatusCode))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, r.config.MaxBytes))
	if err != nil {
		return nil, apperr.SourceUnreadable("read body", err)
	}
	return body, nil
}
