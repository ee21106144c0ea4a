// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package relay_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/scc-digitalhub/filerelay/sdk/config"
	"github.com/scc-digitalhub/filerelay/sdk/services/relay"
	"github.com/scc-digitalhub/filerelay/sdk/testutil"
)

var modes = []relay.Mode{relay.ModeBuffered, relay.ModeStreaming}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testConfig(baseURL string) config.Config {
	conf := config.Defaults()
	conf.Upstream.BaseURL = baseURL
	conf.Relay.ChunkSize = 4 * 1024
	return conf
}

func newService(t *testing.T, conf config.Config, opts ...relay.Option) *relay.RelayService {
	t.Helper()
	opts = append([]relay.Option{relay.WithLogger(quietLogger())}, opts...)
	svc, err := relay.NewRelayService(context.Background(), conf, opts...)
	require.NoError(t, err)
	return svc
}

func newFake(t *testing.T) *testutil.FakeUpstream {
	t.Helper()
	up := testutil.NewFakeUpstream()
	t.Cleanup(up.Close)
	return up
}

// recordingUpstream keeps the responses handed to the relay.
type recordingUpstream struct {
	config.Upstream
	mu        sync.Mutex
	responses []*config.UpstreamResponse
}

func (r *recordingUpstream) Send(ctx context.Context, req config.UpstreamRequest) (*config.UpstreamResponse, error) {
	resp, err := r.Upstream.Send(ctx, req)
	if resp != nil {
		r.mu.Lock()
		r.responses = append(r.responses, resp)
		r.mu.Unlock()
	}
	return resp, err
}

// discardWriter is a ResponseWriter that keeps only statistics.
type discardWriter struct {
	header   http.Header
	status   int
	total    int64
	writes   int
	maxWrite int
	failAt   int64
}

func newDiscardWriter() *discardWriter {
	return &discardWriter{header: http.Header{}}
}

func (w *discardWriter) Header() http.Header { return w.header }

func (w *discardWriter) WriteHeader(status int) { w.status = status }

func (w *discardWriter) Write(p []byte) (int, error) {
	if w.failAt > 0 && w.total >= w.failAt {
		return 0, errors.New("write: connection reset by peer")
	}
	w.writes++
	if len(p) > w.maxWrite {
		w.maxWrite = len(p)
	}
	w.total += int64(len(p))
	return len(p), nil
}

func (w *discardWriter) Flush() {}
