// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/scc-digitalhub/filerelay/sdk/services/relay"
)

// recovery turns panics into 500s, except http.ErrAbortHandler which must
// reach net/http so the connection is dropped. gin.Recovery would swallow it.
func recovery(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			if r == http.ErrAbortHandler {
				panic(r)
			}
			log.WithFields(logrus.Fields{
				"path":  c.Request.URL.Path,
				"panic": r,
			}).Error("handler panicked")
			if !c.Writer.Written() {
				writeError(c, http.StatusInternalServerError, "", "internal error")
			}
			c.Abort()
		}()
		c.Next()
	}
}

func accessLog(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		aborted := true
		defer func() {
			entry := log.WithFields(logrus.Fields{
				"method":      c.Request.Method,
				"path":        c.Request.URL.Path,
				"status":      c.Writer.Status(),
				"size":        c.Writer.Size(),
				"latency":     time.Since(start).String(),
				"client_ip":   c.ClientIP(),
				"transfer_id": c.Writer.Header().Get(relay.HeaderTransferID),
			})
			if aborted {
				entry.Warn("request aborted")
				return
			}
			entry.Debug("request served")
		}()
		c.Next()
		aborted = false
	}
}

func writeError(c *gin.Context, status int, kind relay.ErrorKind, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error":   http.StatusText(status),
		"kind":    kind,
		"message": msg,
		"code":    status,
	})
}
