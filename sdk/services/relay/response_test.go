// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientResponseStateMachine(t *testing.T) {
	rec := httptest.NewRecorder()
	r := NewClientResponse(rec)
	assert.Equal(t, HeadersPending, r.State())

	require.NoError(t, r.SetHeader("Content-Disposition", "attachment; filename=a"))
	require.NoError(t, r.WriteHeader(http.StatusOK))
	assert.Equal(t, HeadersSent, r.State())

	assert.ErrorIs(t, r.SetHeader("Content-Length", "3"), ErrHeadersSent)
	assert.ErrorIs(t, r.DelHeader("Content-Disposition"), ErrHeadersSent)
	assert.ErrorIs(t, r.MergeHeaders(http.Header{"X": {"y"}}), ErrHeadersSent)
	assert.ErrorIs(t, r.WriteHeader(http.StatusTeapot), ErrHeadersSent)

	_, err := r.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, BodyStreaming, r.State())
	require.NoError(t, r.Flush())

	r.Complete()
	assert.Equal(t, Complete, r.State())
	_, err = r.Write([]byte("late"))
	assert.ErrorIs(t, err, ErrResponseClosed)

	r.Abort()
	assert.Equal(t, Complete, r.State())
	assert.Equal(t, "abc", rec.Body.String())
	assert.Equal(t, int64(3), r.Written())
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestClientResponseImplicitHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	r := NewClientResponse(rec)
	_, err := r.Write([]byte("x"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, r.Status())
	assert.True(t, r.HeadersSent())
}

func TestWriteErrorBeforeHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	r := NewClientResponse(rec)
	require.NoError(t, r.SetHeader("Content-Disposition", "attachment; filename=x"))

	r.WriteError(rejectedError(http.StatusServiceUnavailable, opDownload, "missing.txt", "unavailable"))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Empty(t, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, Complete, r.State())

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Service Unavailable", body["error"])
	assert.Equal(t, string(KindUpstreamRejected), body["kind"])
	assert.EqualValues(t, 503, body["code"])
	assert.Contains(t, body["message"], "missing.txt")
}

func TestWriteErrorAfterHeadersAborts(t *testing.T) {
	rec := httptest.NewRecorder()
	r := NewClientResponse(rec)
	_, _ = r.Write([]byte("partial"))

	r.WriteError(newError(KindStreamReadFailure, opDownload, "a", errors.New("reset")))
	assert.Equal(t, Aborted, r.State())
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "partial", rec.Body.String())
}
