// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"net"
	"net/http"
	"time"
)

// NewHTTPClient builds the client used toward the upstream service.
//
// No overall Client.Timeout is set: it would cut long transfers. Connect and
// response-header timeouts bound the setup phase instead. Compression stays
// off so Content-Length survives the hop untouched. Concurrency is capped by
// ConnPool, not by the transport, so a full pool fails fast.
func NewHTTPClient(conf UpstreamConfig) *http.Client {
	conf = Config{Upstream: conf}.WithDefaults().Upstream

	dialer := &net.Dialer{
		Timeout:   conf.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}
	idlePerHost := 16
	if conf.MaxConns > 0 {
		idlePerHost = conf.MaxConns
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		TLSHandshakeTimeout:   conf.ConnectTimeout,
		ResponseHeaderTimeout: conf.ResponseHeaderTimeout,
		IdleConnTimeout:       conf.IdleTimeout,
		ExpectContinueTimeout: time.Second,
		MaxIdleConns:          idlePerHost * 4,
		MaxIdleConnsPerHost:   idlePerHost,
		DisableCompression:    true,
	}
	return &http.Client{Transport: transport}
}
