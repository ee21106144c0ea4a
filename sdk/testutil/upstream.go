// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides an in-process upstream storage service for tests.
package testutil

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"

	"github.com/scc-digitalhub/filerelay/sdk/config"
)

// Upload is one upload received by the fake upstream.
type Upload struct {
	Path          string
	Filename      string
	Content       []byte
	ContentLength int64
	Chunked       bool
}

type file struct {
	data      []byte
	size      int64
	generated bool
	hideLen   bool
}

// FakeUpstream implements the storage endpoints the relay talks to. Files
// live in memory, or are generated on the fly for large payloads.
type FakeUpstream struct {
	*httptest.Server

	mu       sync.Mutex
	files    map[string]file
	rejects  map[string]int
	uploads  []Upload
	requests int
}

func NewFakeUpstream() *FakeUpstream {
	f := &FakeUpstream{
		files:   map[string]file{},
		rejects: map[string]int{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc(config.PathPing, f.ping)
	mux.HandleFunc(config.PathDownload, f.download)
	mux.HandleFunc(config.PathUploadMultipart, f.uploadMultipart)
	mux.HandleFunc(config.PathUploadStream, f.uploadStream)
	f.Server = httptest.NewServer(mux)
	return f
}

func (f *FakeUpstream) Put(name string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[name] = file{data: data, size: int64(len(data))}
}

// PutGenerated serves size bytes of Pattern without holding them in memory.
func (f *FakeUpstream) PutGenerated(name string, size int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[name] = file{size: size, generated: true}
}

// HideLength makes downloads of name omit Content-Length (chunked).
func (f *FakeUpstream) HideLength(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fl := f.files[name]
	fl.hideLen = true
	f.files[name] = fl
}

// Reject answers every request about name with status.
func (f *FakeUpstream) Reject(name string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejects[name] = status
}

func (f *FakeUpstream) Uploads() []Upload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Upload(nil), f.uploads...)
}

func (f *FakeUpstream) Requests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

func (f *FakeUpstream) lookup(name string) (file, int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++
	if st, ok := f.rejects[name]; ok {
		return file{}, st, false
	}
	fl, ok := f.files[name]
	if !ok {
		return file{}, http.StatusNotFound, false
	}
	return fl, http.StatusOK, true
}

func (f *FakeUpstream) record(u Upload) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++
	if st, ok := f.rejects[u.Filename]; ok {
		return st
	}
	f.uploads = append(f.uploads, u)
	f.files[u.Filename] = file{data: u.Content, size: int64(len(u.Content))}
	return http.StatusOK
}

/* -------------------- handlers -------------------- */

func (f *FakeUpstream) ping(w http.ResponseWriter, r *http.Request) {
	_, _ = io.WriteString(w, "fake upstream is up")
}

func (f *FakeUpstream) download(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	name := r.URL.Query().Get("filename")
	fl, status, ok := f.lookup(name)
	if !ok {
		http.Error(w, "cannot serve "+name, status)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", "attachment; filename="+name)
	if !fl.hideLen {
		w.Header().Set("Content-Length", strconv.FormatInt(fl.size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if fl.hideLen {
		// senza flush net/http calcolerebbe da solo la lunghezza
		_ = http.NewResponseController(w).Flush()
	}
	if fl.generated {
		_, _ = io.CopyBuffer(w, NewPatternReader(fl.size), make([]byte, 32*1024))
		return
	}
	_, _ = w.Write(fl.data)
}

func (f *FakeUpstream) uploadMultipart(w http.ResponseWriter, r *http.Request) {
	mr, err := r.MultipartReader()
	if err != nil {
		http.Error(w, "not a multipart request", http.StatusBadRequest)
		return
	}
	for {
		part, err := mr.NextPart()
		if err != nil {
			http.Error(w, "missing file part", http.StatusBadRequest)
			return
		}
		if part.FormName() != "file" {
			continue
		}
		data, err := io.ReadAll(part)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.reply(w, Upload{
			Path:          r.URL.Path,
			Filename:      config.PartFilename(part),
			Content:       data,
			ContentLength: r.ContentLength,
			Chunked:       isChunked(r),
		})
		return
	}
}

func (f *FakeUpstream) uploadStream(w http.ResponseWriter, r *http.Request) {
	name := r.Header.Get("filename")
	if name == "" {
		http.Error(w, "missing filename header", http.StatusBadRequest)
		return
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.reply(w, Upload{
		Path:          r.URL.Path,
		Filename:      name,
		Content:       data,
		ContentLength: r.ContentLength,
		Chunked:       isChunked(r),
	})
}

func (f *FakeUpstream) reply(w http.ResponseWriter, u Upload) {
	if st := f.record(u); st != http.StatusOK {
		http.Error(w, "upload refused", st)
		return
	}
	_, _ = io.WriteString(w, "stored "+u.Filename)
}

func isChunked(r *http.Request) bool {
	return len(r.TransferEncoding) > 0 && r.TransferEncoding[0] == "chunked"
}

/* -------------------- payloads -------------------- */

// Pattern returns the first n bytes of the generated payload.
func Pattern(n int64) []byte {
	var buf bytes.Buffer
	buf.Grow(int(n))
	_, _ = io.Copy(&buf, NewPatternReader(n))
	return buf.Bytes()
}

// NewPatternReader yields n deterministic bytes without allocating them.
func NewPatternReader(n int64) io.Reader {
	return io.LimitReader(&patternReader{}, n)
}

type patternReader struct{ off int64 }

func (p *patternReader) Read(b []byte) (int, error) {
	for i := range b {
		// periodo primo: i chunk non si ripetono allineati
		b[i] = byte((p.off*31 + p.off/251) % 251)
		p.off++
	}
	return len(b), nil
}
