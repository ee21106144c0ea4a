// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/scc-digitalhub/filerelay/sdk/config"
	"github.com/scc-digitalhub/filerelay/sdk/services/relay"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "default_mode": s.relay.DefaultMode()})
}

func (s *Server) handlePing(c *gin.Context) {
	msg, err := s.relay.Ping(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusBadGateway, relay.KindUpstreamUnreachable, err.Error())
		return
	}
	c.String(http.StatusOK, msg)
}

// resolveMode returns fixed, or the ?mode= query; empty leaves the choice to
// the relay default.
func resolveMode(c *gin.Context, fixed relay.Mode) (relay.Mode, bool) {
	if fixed != "" {
		return fixed, true
	}
	mode, err := relay.ParseMode(c.Query("mode"), "")
	if err != nil {
		writeError(c, http.StatusBadRequest, relay.KindProtocolViolation, err.Error())
		return "", false
	}
	return mode, true
}

func (s *Server) handleDownload(fixed relay.Mode) gin.HandlerFunc {
	return func(c *gin.Context) {
		mode, ok := resolveMode(c, fixed)
		if !ok {
			return
		}
		out := s.relay.Download(c.Request.Context(), relay.DownloadRequest{
			Filename: c.Query("filename"),
			Mode:     mode,
		}, c.Writer)
		if out.Aborted {
			// lo status è già partito: resta solo chiudere la connessione
			panic(http.ErrAbortHandler)
		}
	}
}

func (s *Server) handleUpload(fixed relay.Mode) gin.HandlerFunc {
	return func(c *gin.Context) {
		mode, ok := resolveMode(c, fixed)
		if !ok {
			return
		}
		filename, body, err := uploadSource(c.Request)
		if err != nil {
			writeError(c, http.StatusBadRequest, relay.KindProtocolViolation, err.Error())
			return
		}

		out := s.relay.Upload(c.Request.Context(), relay.UploadRequest{
			Filename: filename,
			Mode:     mode,
			Body:     body,
		})
		c.Header(relay.HeaderTransferID, out.ID)
		if out.Err != nil {
			if out.Err.Kind == relay.KindClientAborted {
				c.AbortWithStatus(relay.StatusClientClosedRequest)
				return
			}
			writeError(c, out.Err.Status, out.Err.Kind, out.Err.Error())
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// uploadSource picks the payload of an upload: the "file" part of a multipart
// form, or the raw body named by the filename header (or query).
func uploadSource(r *http.Request) (string, io.Reader, error) {
	override := r.URL.Query().Get("filename")

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		name := r.Header.Get(relay.HeaderFilename)
		if override != "" {
			name = override
		}
		return name, r.Body, nil
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return "", nil, errors.New("malformed multipart request: " + err.Error())
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return "", nil, errors.New("multipart field \"file\" is missing")
		}
		if err != nil {
			return "", nil, errors.New("malformed multipart body: " + err.Error())
		}
		if part.FormName() != relay.MultipartField {
			continue
		}
		name := config.PartFilename(part)
		if override != "" {
			name = override
		}
		return name, part, nil
	}
}
