// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// Mode selects how a payload moves through the relay.
type Mode string

const (
	ModeBuffered  Mode = "buffered"
	ModeStreaming Mode = "streaming"
)

// ParseMode accepts "buffered" or "streaming" (case-insensitive); empty yields def.
func ParseMode(s string, def Mode) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return def, nil
	case ModeBuffered:
		return ModeBuffered, nil
	case ModeStreaming:
		return ModeStreaming, nil
	default:
		return "", fmt.Errorf("unsupported mode %q", s)
	}
}

type Direction string

const (
	DirectionDownload Direction = "download"
	DirectionUpload   Direction = "upload"
)

/* -------------------- DESCRIPTOR -------------------- */

type BodyKind int

const (
	BodyNone BodyKind = iota
	BodyBuffer
	BodyStream
)

// ErrBodyAlreadySet is returned when a descriptor body is populated twice.
var ErrBodyAlreadySet = errors.New("transfer body already set")

const DispositionAttachment = "attachment"

// TransferDescriptor describes one payload in transit. Exactly one body
// variant is active at a time.
type TransferDescriptor struct {
	Filename string
	// ContentLength is -1 when unknown.
	ContentLength int64
	Disposition   string

	kind   BodyKind
	buffer []byte
	stream io.ReadCloser
}

func NewTransferDescriptor(filename string, contentLength int64) *TransferDescriptor {
	if contentLength < 0 {
		contentLength = -1
	}
	return &TransferDescriptor{
		Filename:      filename,
		ContentLength: contentLength,
		Disposition:   DispositionAttachment,
	}
}

// SetBuffer makes b the body; the length becomes exact.
func (d *TransferDescriptor) SetBuffer(b []byte) error {
	if d.kind != BodyNone {
		return ErrBodyAlreadySet
	}
	if b == nil {
		b = []byte{}
	}
	d.kind = BodyBuffer
	d.buffer = b
	d.ContentLength = int64(len(b))
	return nil
}

func (d *TransferDescriptor) SetStream(rc io.ReadCloser) error {
	if d.kind != BodyNone {
		return ErrBodyAlreadySet
	}
	d.kind = BodyStream
	d.stream = rc
	return nil
}

func (d *TransferDescriptor) Kind() BodyKind        { return d.kind }
func (d *TransferDescriptor) Buffer() []byte        { return d.buffer }
func (d *TransferDescriptor) Stream() io.ReadCloser { return d.stream }

/* -------------------- REQUESTS -------------------- */

type DownloadRequest struct {
	Filename string
	// Mode vuoto -> default del servizio
	Mode Mode
}

type UploadRequest struct {
	Filename string
	Mode     Mode
	// Body is owned by the caller and read up to EOF at most.
	Body io.Reader
}

// Outcome summarizes a finished transfer. Never persisted.
type Outcome struct {
	ID               string    `json:"id"                yaml:"id"`
	Direction        Direction `json:"direction"         yaml:"direction"`
	Mode             Mode      `json:"mode"              yaml:"mode"`
	Filename         string    `json:"filename"          yaml:"filename"`
	Delivered        bool      `json:"delivered"         yaml:"delivered"`
	BytesTransferred int64     `json:"bytes_transferred" yaml:"bytes_transferred"`
	Status           int       `json:"status"            yaml:"status"`
	// Aborted is set when the client connection must be torn down.
	Aborted  bool          `json:"aborted"           yaml:"aborted"`
	Message  string        `json:"message,omitempty" yaml:"message,omitempty"`
	Duration time.Duration `json:"duration"          yaml:"duration"`
	Err      *RelayError   `json:"-"                 yaml:"-"`
}

// Kind returns the error kind, empty on success.
func (o Outcome) Kind() ErrorKind {
	if o.Err == nil {
		return ""
	}
	return o.Err.Kind
}
