// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package config

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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	method        string
	path          string
	query         url.Values
	header        http.Header
	body          []byte
	contentLength int64
	chunked       bool
}

func newRecordingServer(t *testing.T, reply string) (*httptest.Server, <-chan recordedRequest) {
	t.Helper()
	seen := make(chan recordedRequest, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		seen <- recordedRequest{
			method:        r.Method,
			path:          r.URL.Path,
			query:         r.URL.Query(),
			header:        r.Header.Clone(),
			body:          b,
			contentLength: r.ContentLength,
			chunked:       len(r.TransferEncoding) > 0 && r.TransferEncoding[0] == "chunked",
		}
		w.Header().Set("Content-Length", "5")
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, seen
}

func TestBodyReadOnce(t *testing.T) {
	released := 0
	body := NewBody(io.NopCloser(strings.NewReader("abc")), func() { released++ })

	assert.False(t, body.Consumed())
	got, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
	assert.True(t, body.Consumed())

	n, err := body.Read(make([]byte, 8))
	assert.Zero(t, n)
	assert.ErrorIs(t, err, ErrBodyConsumed)

	require.NoError(t, body.Close())
	require.NoError(t, body.Close())
	assert.Equal(t, 1, released)
}

func TestBodyReadAfterClose(t *testing.T) {
	body := NewBody(io.NopCloser(strings.NewReader("abc")), nil)
	require.NoError(t, body.Close())

	_, err := body.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrBodyConsumed)
	assert.False(t, body.Consumed())
}

func TestSendStreamingSubmissionIsChunked(t *testing.T) {
	srv, seen := newRecordingServer(t, "hello")
	up := NewHTTPUpstream(nil, nil, UpstreamConfig{BaseURL: srv.URL}, SubmitStreaming, 0)

	resp, err := up.Send(context.Background(), UpstreamRequest{
		Method: http.MethodPost,
		Path:   PathUploadStream,
		Header: http.Header{"Filename": []string{"report final.pdf"}},
		Body:   RequestBody{Stream: io.MultiReader(strings.NewReader("abc"), strings.NewReader("def"))},
	})
	require.NoError(t, err)
	defer resp.Close()

	req := <-seen
	assert.Equal(t, PathUploadStream, req.path)
	assert.Equal(t, "report final.pdf", req.header.Get("filename"))
	assert.Equal(t, "abcdef", string(req.body))
	assert.True(t, req.chunked)
	assert.Equal(t, int64(5), resp.ContentLength())
}

func TestSendBufferedSubmissionMaterializesStream(t *testing.T) {
	srv, seen := newRecordingServer(t, "hello")
	up := NewHTTPUpstream(nil, nil, UpstreamConfig{BaseURL: srv.URL + "/"}, SubmitBuffered, 1024)

	resp, err := up.Send(context.Background(), UpstreamRequest{
		Method: http.MethodPost,
		Path:   PathUploadMultipart,
		Body:   RequestBody{Stream: strings.NewReader("abcdef")},
	})
	require.NoError(t, err)
	defer resp.Close()

	req := <-seen
	assert.Equal(t, int64(6), req.contentLength)
	assert.False(t, req.chunked)
	assert.Equal(t, "abcdef", string(req.body))
}

func TestSendBufferedSubmissionRespectsLimit(t *testing.T) {
	srv, _ := newRecordingServer(t, "hello")
	up := NewHTTPUpstream(nil, nil, UpstreamConfig{BaseURL: srv.URL}, SubmitBuffered, 4)

	_, err := up.Send(context.Background(), UpstreamRequest{
		Method: http.MethodPost,
		Path:   PathUploadMultipart,
		Body:   RequestBody{Stream: bytes.NewReader(make([]byte, 10))},
	})
	require.Error(t, err)
	assert.True(t, IsPayloadTooLarge(err))
}

func TestSendEncodesQuery(t *testing.T) {
	srv, seen := newRecordingServer(t, "hello")
	up := NewHTTPUpstream(nil, nil, UpstreamConfig{BaseURL: srv.URL}, SubmitStreaming, 0)

	resp, err := up.Send(context.Background(), UpstreamRequest{
		Method: http.MethodGet,
		Path:   PathDownload,
		Query:  url.Values{"filename": []string{"a b&c.txt"}},
	})
	require.NoError(t, err)
	defer resp.Close()

	req := <-seen
	assert.Equal(t, "a b&c.txt", req.query.Get("filename"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
}

func TestPoolExhaustionFailsFast(t *testing.T) {
	srv, _ := newRecordingServer(t, "hello")
	up := NewHTTPUpstream(nil, nil, UpstreamConfig{
		BaseURL:         srv.URL,
		MaxConns:        1,
		PoolWaitTimeout: 50 * time.Millisecond,
	}, SubmitStreaming, 0)

	first, err := up.Send(context.Background(), UpstreamRequest{Method: http.MethodGet, Path: PathDownload})
	require.NoError(t, err)

	_, err = up.Send(context.Background(), UpstreamRequest{Method: http.MethodGet, Path: PathDownload})
	assert.ErrorIs(t, err, ErrPoolExhausted)

	require.NoError(t, first.Close())
	second, err := up.Send(context.Background(), UpstreamRequest{Method: http.MethodGet, Path: PathDownload})
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestPoolSharedAcrossSubmitModes(t *testing.T) {
	srv, _ := newRecordingServer(t, "hello")
	conf := UpstreamConfig{
		BaseURL:         srv.URL,
		MaxConns:        1,
		PoolWaitTimeout: 50 * time.Millisecond,
	}
	httpc := NewHTTPClient(conf)
	pool := NewConnPool(conf)
	streaming := NewHTTPUpstream(httpc, pool, conf, SubmitStreaming, 0)
	buffered := NewHTTPUpstream(httpc, pool, conf, SubmitBuffered, 1024)

	held, err := streaming.Send(context.Background(), UpstreamRequest{Method: http.MethodGet, Path: PathDownload})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	start := time.Now()
	_, err = buffered.Send(ctx, UpstreamRequest{
		Method: http.MethodPost,
		Path:   PathUploadMultipart,
		Body:   RequestBody{Payload: []byte("x")},
	})
	assert.ErrorIs(t, err, ErrPoolExhausted)
	assert.Less(t, time.Since(start), time.Second)

	require.NoError(t, held.Close())
	resp, err := buffered.Send(ctx, UpstreamRequest{Method: http.MethodGet, Path: PathPing})
	require.NoError(t, err)
	require.NoError(t, resp.Close())
}

func TestConnPoolUnbounded(t *testing.T) {
	assert.Nil(t, NewConnPool(UpstreamConfig{}))

	var pool *ConnPool
	release, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	release()
}

func TestPingReportsUpstreamStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != PathPing {
			http.NotFound(w, r)
			return
		}
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	up := NewHTTPUpstream(nil, nil, UpstreamConfig{BaseURL: srv.URL}, SubmitBuffered, 0)
	_, err := up.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestConfigValidate(t *testing.T) {
	cfg := Defaults()
	assert.Error(t, cfg.Validate())

	cfg.Upstream.BaseURL = "http://storage:8081"
	assert.NoError(t, cfg.Validate())

	cfg.Relay.DefaultMode = "zero-copy"
	assert.Error(t, cfg.Validate())

	s3cfg := Defaults()
	s3cfg.Upstream.Kind = UpstreamKindS3
	assert.Error(t, s3cfg.Validate())
	s3cfg.S3.Bucket = "files"
	assert.NoError(t, s3cfg.Validate())
}
