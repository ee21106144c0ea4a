// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"errors"
	"io"
)

// readError and writeError tell which side of a copy broke.
type readError struct{ err error }

func (e *readError) Error() string { return "read: " + e.err.Error() }
func (e *readError) Unwrap() error { return e.err }

type writeError struct{ err error }

func (e *writeError) Error() string { return "write: " + e.err.Error() }
func (e *writeError) Unwrap() error { return e.err }

// flushWriter is what copyWindow writes to.
type flushWriter interface {
	io.Writer
	Flush() error
}

// copyWindow moves src into dst through buf, flushing after every chunk.
// The only allocation is buf, whatever the payload size.
func copyWindow(ctx context.Context, dst flushWriter, src io.Reader, buf []byte) (int64, error) {
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, &writeError{err}
		}
		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			written += int64(nw)
			if werr == nil && nw != nr {
				werr = io.ErrShortWrite
			}
			if werr != nil {
				return written, &writeError{werr}
			}
			if ferr := dst.Flush(); ferr != nil {
				return written, &writeError{ferr}
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, &readError{rerr}
		}
	}
}

// trackingReader counts the bytes read from an inbound body and keeps the
// first failure, so upload errors can be attributed to the client side.
type trackingReader struct {
	r   io.Reader
	n   int64
	err error
	eof bool
}

func (t *trackingReader) Read(p []byte) (int, error) {
	if t.eof {
		return 0, io.EOF
	}
	n, err := t.r.Read(p)
	t.n += int64(n)
	if err == io.EOF {
		t.eof = true
	} else if err != nil && t.err == nil {
		t.err = err
	}
	return n, err
}

func isWriteSide(err error) bool {
	var we *writeError
	return errors.As(err, &we)
}
