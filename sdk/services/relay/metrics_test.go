// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package relay_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scc-digitalhub/filerelay/sdk/services/relay"
)

func TestMetricsRecordOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := relay.NewMetrics("", reg)
	require.NoError(t, err)

	again, err := relay.NewMetrics("", reg)
	require.NoError(t, err)
	require.NotNil(t, again)

	up := newFake(t)
	up.Put("a.txt", []byte("hello"))
	up.Reject("missing.txt", http.StatusServiceUnavailable)
	svc := newService(t, testConfig(up.URL), relay.WithMetrics(m))

	svc.Download(context.Background(), relay.DownloadRequest{Filename: "a.txt"}, httptest.NewRecorder())
	svc.Download(context.Background(), relay.DownloadRequest{Filename: "missing.txt"}, httptest.NewRecorder())

	families, err := reg.Gather()
	require.NoError(t, err)

	results := map[string]float64{}
	var bytesTotal float64
	for _, mf := range families {
		switch mf.GetName() {
		case "filerelay_transfers_total":
			for _, metric := range mf.GetMetric() {
				for _, lp := range metric.GetLabel() {
					if lp.GetName() == "result" {
						results[lp.GetValue()] += metric.GetCounter().GetValue()
					}
				}
			}
		case "filerelay_transferred_bytes_total":
			for _, metric := range mf.GetMetric() {
				bytesTotal += metric.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, 1.0, results["ok"])
	assert.Equal(t, 1.0, results[string(relay.KindUpstreamRejected)])
	assert.Equal(t, 5.0, bytesTotal)
}

func TestNilMetricsIsSafe(t *testing.T) {
	up := newFake(t)
	up.Put("a.txt", []byte("hello"))
	svc := newService(t, testConfig(up.URL), relay.WithMetrics(nil))
	out := svc.Download(context.Background(), relay.DownloadRequest{Filename: "a.txt"}, httptest.NewRecorder())
	assert.Nil(t, out.Err)
}
