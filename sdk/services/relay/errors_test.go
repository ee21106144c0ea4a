// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scc-digitalhub/filerelay/sdk/config"
)

func TestClassifyAgreesOnCancelledOverflow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tooLarge := fmt.Errorf("failed to buffer request body: %w", config.PayloadTooLargeError{Limit: 8})

	assert.Equal(t, KindClientAborted, classifySend(ctx, opUpload, "a.bin", tooLarge).Kind)
	assert.Equal(t, KindClientAborted, classifyRead(ctx, opDownload, "a.bin", tooLarge).Kind)
}

func TestClassifyKinds(t *testing.T) {
	ctx := context.Background()
	tooLarge := config.PayloadTooLargeError{Limit: 8}
	broken := errors.New("connection reset")

	assert.Equal(t, KindBufferLimitExceeded, classifySend(ctx, opUpload, "a", tooLarge).Kind)
	assert.Equal(t, KindBufferLimitExceeded, classifyRead(ctx, opDownload, "a", tooLarge).Kind)
	assert.Equal(t, KindUpstreamUnreachable, classifySend(ctx, opUpload, "a", broken).Kind)
	assert.Equal(t, KindStreamReadFailure, classifyRead(ctx, opDownload, "a", broken).Kind)
	assert.Equal(t, KindClientAborted, classifyRead(ctx, opDownload, "a", context.Canceled).Kind)

	e := classifyRead(ctx, opDownload, "a", tooLarge)
	assert.Equal(t, http.StatusRequestEntityTooLarge, e.Status)
	kind, ok := KindOf(fmt.Errorf("wrapped: %w", e))
	assert.True(t, ok)
	assert.Equal(t, KindBufferLimitExceeded, kind)
}
