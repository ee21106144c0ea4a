// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/scc-digitalhub/filerelay/sdk/config"
)

type ErrorKind string

const (
	// KindUpstreamUnreachable: connect failure, timeout or no pool slot.
	KindUpstreamUnreachable ErrorKind = "UpstreamUnreachable"
	// KindUpstreamRejected: the upstream answered with a non-2xx status.
	KindUpstreamRejected ErrorKind = "UpstreamRejected"
	// KindStreamReadFailure: a body broke mid-read, or was read twice.
	KindStreamReadFailure ErrorKind = "StreamReadFailure"
	// KindProtocolViolation: the inbound request is malformed.
	KindProtocolViolation ErrorKind = "ProtocolViolation"
	// KindBufferLimitExceeded: a buffered payload outgrew the threshold.
	KindBufferLimitExceeded ErrorKind = "BufferLimitExceeded"
	// KindClientAborted: the client went away mid-transfer.
	KindClientAborted ErrorKind = "ClientAborted"
)

// StatusClientClosedRequest is the non-standard code logged for client aborts.
const StatusClientClosedRequest = 499

// Status maps the kind to the status reported to the client. upstream is used
// only for rejections.
func (k ErrorKind) Status(upstream int) int {
	switch k {
	case KindUpstreamRejected:
		if upstream > 0 {
			return upstream
		}
		return http.StatusBadGateway
	case KindProtocolViolation:
		return http.StatusBadRequest
	case KindBufferLimitExceeded:
		return http.StatusRequestEntityTooLarge
	case KindClientAborted:
		return StatusClientClosedRequest
	default:
		return http.StatusBadGateway
	}
}

type RelayError struct {
	Kind     ErrorKind
	Status   int
	Op       string
	Filename string
	Err      error
}

func (e *RelayError) Error() string {
	msg := fmt.Sprintf("%s %q: %s", e.Op, e.Filename, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RelayError) Unwrap() error { return e.Err }

// KindOf extracts the ErrorKind carried by err.
func KindOf(err error) (ErrorKind, bool) {
	var re *RelayError
	if errors.As(err, &re) {
		return re.Kind, true
	}
	return "", false
}

func newError(kind ErrorKind, op, filename string, err error) *RelayError {
	return &RelayError{
		Kind:     kind,
		Status:   kind.Status(0),
		Op:       op,
		Filename: filename,
		Err:      err,
	}
}

func rejectedError(status int, op, filename, msg string) *RelayError {
	return &RelayError{
		Kind:     KindUpstreamRejected,
		Status:   KindUpstreamRejected.Status(status),
		Op:       op,
		Filename: filename,
		Err:      fmt.Errorf("upstream responded with %d %s: %s", status, http.StatusText(status), msg),
	}
}

// classifySend maps an error returned by Upstream.Send.
func classifySend(ctx context.Context, op, filename string, err error) *RelayError {
	return classify(ctx, op, filename, err, KindUpstreamUnreachable)
}

// classifyRead maps an error hit while reading a body.
func classifyRead(ctx context.Context, op, filename string, err error) *RelayError {
	return classify(ctx, op, filename, err, KindStreamReadFailure)
}

// classify checks cancellation first: once the client is gone nothing else
// about the transfer matters.
func classify(ctx context.Context, op, filename string, err error, fallback ErrorKind) *RelayError {
	switch {
	case errors.Is(err, context.Canceled) || ctx.Err() == context.Canceled:
		return newError(KindClientAborted, op, filename, err)
	case config.IsPayloadTooLarge(err):
		return newError(KindBufferLimitExceeded, op, filename, err)
	default:
		return newError(fallback, op, filename, err)
	}
}
