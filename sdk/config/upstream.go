// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Upstream paths of the storage service.
const (
	PathPing            = "/file"
	PathDownload        = "/file/download"
	PathUploadMultipart = "/file/upload/with_multipart_file"
	PathUploadStream    = "/file/upload/stream"
)

var (
	// ErrBodyConsumed is returned by Body.Read once the body hit EOF or was closed.
	ErrBodyConsumed = errors.New("upstream body already consumed")
	// ErrPoolExhausted is returned when no upstream slot frees up in time.
	ErrPoolExhausted = errors.New("upstream connection pool exhausted")
)

// SubmitMode selects how an Upstream submits request bodies.
type SubmitMode int

const (
	// SubmitBuffered sends fixed-length bodies, materializing streams first.
	SubmitBuffered SubmitMode = iota
	// SubmitStreaming sends stream bodies as they arrive (chunked).
	SubmitStreaming
)

func (m SubmitMode) String() string {
	if m == SubmitStreaming {
		return "streaming"
	}
	return "buffered"
}

// RequestBody carries either a fixed payload or a stream, never both.
type RequestBody struct {
	Payload []byte
	Stream  io.Reader
}

type UpstreamRequest struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   RequestBody
}

type UpstreamResponse struct {
	StatusCode int
	Header     http.Header
	Body       *Body
}

// OK reports a 2xx status.
func (r *UpstreamResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// ContentLength parses the Content-Length header, -1 when absent or invalid.
func (r *UpstreamResponse) ContentLength() int64 {
	raw := r.Header.Get("Content-Length")
	if raw == "" {
		return -1
	}
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || n < 0 {
		return -1
	}
	return n
}

// Close releases the connection behind the response.
func (r *UpstreamResponse) Close() error {
	if r == nil || r.Body == nil {
		return nil
	}
	return r.Body.Close()
}

// Upstream issues requests to the storage service. Implementations never
// buffer the response body.
type Upstream interface {
	Send(ctx context.Context, req UpstreamRequest) (*UpstreamResponse, error)
	Ping(ctx context.Context) (string, error)
}

// Body is a read-once view over an upstream response body.
type Body struct {
	rc        io.ReadCloser
	release   func()
	consumed  atomic.Bool
	exhausted atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewBody wraps rc; release, if set, runs once when the body is closed.
func NewBody(rc io.ReadCloser, release func()) *Body {
	return &Body{rc: rc, release: release}
}

func (b *Body) Read(p []byte) (int, error) {
	if b.exhausted.Load() || b.closed.Load() {
		return 0, ErrBodyConsumed
	}
	n, err := b.rc.Read(p)
	if n > 0 {
		b.consumed.Store(true)
	}
	if err == io.EOF {
		b.exhausted.Store(true)
	}
	return n, err
}

// Consumed reports whether any byte has been read.
func (b *Body) Consumed() bool {
	return b.consumed.Load()
}

func (b *Body) Close() error {
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		b.closeErr = b.rc.Close()
		if b.release != nil {
			b.release()
		}
	})
	return b.closeErr
}

type httpUpstream struct {
	httpClient *http.Client
	baseURL    string
	submit     SubmitMode
	maxPayload int64
	pool       *ConnPool
}

// ConnPool caps concurrent upstream requests for every instance sharing it.
// A nil pool is unbounded.
type ConnPool struct {
	slots chan struct{}
	wait  time.Duration
}

// NewConnPool sizes a pool from conf.MaxConns; it returns nil when MaxConns is 0.
func NewConnPool(conf UpstreamConfig) *ConnPool {
	conf = Config{Upstream: conf}.WithDefaults().Upstream
	if conf.MaxConns <= 0 {
		return nil
	}
	return &ConnPool{
		slots: make(chan struct{}, conf.MaxConns),
		wait:  conf.PoolWaitTimeout,
	}
}

// Acquire takes a slot, waiting at most the pool wait timeout. The returned
// release func is idempotent.
func (p *ConnPool) Acquire(ctx context.Context) (func(), error) {
	if p == nil {
		return func() {}, nil
	}
	timer := time.NewTimer(p.wait)
	defer timer.Stop()

	select {
	case p.slots <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-p.slots }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrPoolExhausted
	}
}

// NewHTTPUpstream builds an Upstream over HTTP. Instances that must share one
// connection budget get the same pool; a nil pool is sized from conf.
// maxPayload bounds how much a buffered-submission instance materializes
// from a stream body.
func NewHTTPUpstream(httpClient *http.Client, pool *ConnPool, conf UpstreamConfig, submit SubmitMode, maxPayload int64) Upstream {
	if httpClient == nil {
		httpClient = NewHTTPClient(conf)
	}
	if pool == nil {
		pool = NewConnPool(conf)
	}
	conf = Config{Upstream: conf}.WithDefaults().Upstream
	return &httpUpstream{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(conf.BaseURL, "/"),
		submit:     submit,
		maxPayload: maxPayload,
		pool:       pool,
	}
}

func (u *httpUpstream) BuildURL(path string, query url.Values) string {
	base := u.baseURL + path
	if len(query) > 0 {
		base += "?" + query.Encode()
	}
	return base
}

func (u *httpUpstream) Send(ctx context.Context, req UpstreamRequest) (*UpstreamResponse, error) {
	var (
		body          io.Reader
		contentLength int64
	)
	switch {
	case req.Body.Payload != nil:
		body = bytes.NewReader(req.Body.Payload)
		contentLength = int64(len(req.Body.Payload))
	case req.Body.Stream != nil && u.submit == SubmitBuffered:
		data, err := ReadAllWithLimit(req.Body.Stream, u.maxPayload)
		if err != nil {
			return nil, fmt.Errorf("failed to buffer request body: %w", err)
		}
		body = bytes.NewReader(data)
		contentLength = int64(len(data))
	case req.Body.Stream != nil:
		body = req.Body.Stream
		contentLength = -1
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.BuildURL(req.Path, req.Query), body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		httpReq.ContentLength = contentLength
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	release, err := u.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := u.httpClient.Do(httpReq)
	if err != nil {
		release()
		return nil, err
	}
	return &UpstreamResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       NewBody(resp.Body, release),
	}, nil
}

func (u *httpUpstream) Ping(ctx context.Context) (string, error) {
	resp, err := u.Send(ctx, UpstreamRequest{Method: http.MethodGet, Path: PathPing})
	if err != nil {
		return "", err
	}
	defer resp.Close()

	b, rerr := ReadAllWithLimit(resp.Body, 64*1024)
	if !resp.OK() {
		return string(b), fmt.Errorf("upstream responded with: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return string(b), rerr
}
