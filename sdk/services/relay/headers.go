// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// HeaderFilename carries the filename of a streaming upload.
	HeaderFilename   = "filename"
	HeaderTransferID = "X-Transfer-Id"

	contentTypeOctetStream = "application/octet-stream"
)

var ErrEmptyFilename = errors.New("filename is required")

// ValidateFilename rejects names that cannot travel in a header. Anything else
// is an opaque identifier and passes through untouched.
func ValidateFilename(name string) error {
	if name == "" {
		return ErrEmptyFilename
	}
	for i := 0; i < len(name); i++ {
		if c := name[i]; c < 0x20 || c == 0x7f {
			return fmt.Errorf("filename contains control character %#x at offset %d", c, i)
		}
	}
	return nil
}

// ContentDisposition renders the download disposition, filename verbatim.
func ContentDisposition(filename string) string {
	return DispositionAttachment + "; filename=" + filename
}

// ForDownloadResponse computes the client headers of a download. Content-Length
// is copied only when the upstream sent one.
func ForDownloadResponse(upstream http.Header, filename string) http.Header {
	h := http.Header{}
	h.Set("Content-Type", contentTypeOctetStream)
	h.Set("Content-Disposition", ContentDisposition(filename))
	if cl := upstream.Get("Content-Length"); cl != "" {
		h.Set("Content-Length", cl)
	}
	return h
}

// ForUploadRequest computes the upstream headers of a streaming upload.
func ForUploadRequest(filename string) http.Header {
	h := http.Header{}
	h.Set(HeaderFilename, filename)
	h.Set("Content-Type", contentTypeOctetStream)
	return h
}
