// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
)

type ResponseState int

const (
	HeadersPending ResponseState = iota
	HeadersSent
	BodyStreaming
	Complete
	Aborted
)

func (s ResponseState) String() string {
	switch s {
	case HeadersPending:
		return "headers_pending"
	case HeadersSent:
		return "headers_sent"
	case BodyStreaming:
		return "body_streaming"
	case Complete:
		return "complete"
	case Aborted:
		return "aborted"
	}
	return "unknown"
}

var (
	// ErrHeadersSent is returned on header mutation once the status line is out.
	ErrHeadersSent = errors.New("response headers already sent")
	// ErrResponseClosed is returned on writes after Complete or Aborted.
	ErrResponseClosed = errors.New("response already closed")
)

// ClientResponse guards an http.ResponseWriter with the transfer state
// machine: HeadersPending -> HeadersSent -> BodyStreaming -> Complete|Aborted.
// Not safe for concurrent use.
type ClientResponse struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	state   ResponseState
	status  int
	written int64
}

func NewClientResponse(w http.ResponseWriter) *ClientResponse {
	return &ClientResponse{w: w, rc: http.NewResponseController(w)}
}

func (r *ClientResponse) State() ResponseState { return r.state }
func (r *ClientResponse) Status() int          { return r.status }
func (r *ClientResponse) Written() int64       { return r.written }

// HeadersSent reports whether the status line has been committed.
func (r *ClientResponse) HeadersSent() bool { return r.state != HeadersPending }

func (r *ClientResponse) SetHeader(key, value string) error {
	if r.state != HeadersPending {
		return ErrHeadersSent
	}
	r.w.Header().Set(key, value)
	return nil
}

func (r *ClientResponse) DelHeader(key string) error {
	if r.state != HeadersPending {
		return ErrHeadersSent
	}
	r.w.Header().Del(key)
	return nil
}

// MergeHeaders sets every key of h, replacing existing values.
func (r *ClientResponse) MergeHeaders(h http.Header) error {
	if r.state != HeadersPending {
		return ErrHeadersSent
	}
	dst := r.w.Header()
	for k, vs := range h {
		dst[k] = append([]string(nil), vs...)
	}
	return nil
}

func (r *ClientResponse) WriteHeader(status int) error {
	if r.state != HeadersPending {
		return ErrHeadersSent
	}
	r.w.WriteHeader(status)
	r.status = status
	r.state = HeadersSent
	return nil
}

func (r *ClientResponse) Write(p []byte) (int, error) {
	switch r.state {
	case Complete, Aborted:
		return 0, ErrResponseClosed
	case HeadersPending:
		_ = r.WriteHeader(http.StatusOK)
	}
	r.state = BodyStreaming
	n, err := r.w.Write(p)
	r.written += int64(n)
	return n, err
}

// Flush pushes buffered bytes to the client; writers without flush support
// are tolerated.
func (r *ClientResponse) Flush() error {
	if r.state == Complete || r.state == Aborted {
		return ErrResponseClosed
	}
	if err := r.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

func (r *ClientResponse) Complete() {
	if r.state == Aborted {
		return
	}
	if r.state == HeadersPending {
		_ = r.WriteHeader(http.StatusOK)
	}
	r.state = Complete
}

// Abort marks the response broken. The caller aborts the connection.
func (r *ClientResponse) Abort() {
	if r.state != Complete {
		r.state = Aborted
	}
}

type errorBody struct {
	Error   string    `json:"error"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Code    int       `json:"code"`
}

// WriteError sends a JSON error when headers are still pending. Once they are
// out the status cannot change and the response is aborted instead.
func (r *ClientResponse) WriteError(err *RelayError) {
	if r.HeadersSent() {
		r.Abort()
		return
	}
	status := err.Status
	if status == 0 {
		status = err.Kind.Status(0)
	}
	payload, _ := json.Marshal(errorBody{
		Error:   http.StatusText(status),
		Kind:    err.Kind,
		Message: err.Error(),
		Code:    status,
	})
	_ = r.DelHeader("Content-Disposition")
	h := r.w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("Content-Length", strconv.Itoa(len(payload)))
	if status == StatusClientClosedRequest {
		// nessuno ascolta: si chiude senza corpo
		h.Del("Content-Length")
		_ = r.WriteHeader(status)
		r.state = Aborted
		return
	}
	_ = r.WriteHeader(status)
	_, _ = r.w.Write(payload)
	r.written = 0
	r.state = Complete
}
