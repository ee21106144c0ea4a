// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config complessiva passata all'SDK (niente viper/INI qui)
type Config struct {
	Upstream UpstreamConfig `json:"upstream" yaml:"upstream"`
	S3       S3Config       `json:"s3"       yaml:"s3"`
	Relay    RelayConfig    `json:"relay"    yaml:"relay"`
	Server   ServerConfig   `json:"server"   yaml:"server"`
	Log      LogConfig      `json:"log"      yaml:"log"`
}

const (
	UpstreamKindHTTP = "http"
	UpstreamKindS3   = "s3"
)

type UpstreamConfig struct {
	Kind                  string        `json:"kind"                    yaml:"kind"`
	BaseURL               string        `json:"base_url"                yaml:"base_url"`
	ConnectTimeout        time.Duration `json:"connect_timeout"         yaml:"connect_timeout"`
	ResponseHeaderTimeout time.Duration `json:"response_header_timeout" yaml:"response_header_timeout"`
	IdleTimeout           time.Duration `json:"idle_timeout"            yaml:"idle_timeout"`
	// MaxConns bounds concurrent requests per upstream instance; 0 means unbounded.
	MaxConns        int           `json:"max_conns"         yaml:"max_conns"`
	PoolWaitTimeout time.Duration `json:"pool_wait_timeout" yaml:"pool_wait_timeout"`
}

type S3Config struct {
	AccessKey   string `json:"-"            yaml:"-"`
	SecretKey   string `json:"-"            yaml:"-"`
	AccessToken string `json:"-"            yaml:"-"`
	Region      string `json:"region"       yaml:"region"`
	EndpointURL string `json:"endpoint_url" yaml:"endpoint_url"`
	Bucket      string `json:"bucket"       yaml:"bucket"`
	Prefix      string `json:"prefix"       yaml:"prefix"`
}

type RelayConfig struct {
	DefaultMode string `json:"default_mode" yaml:"default_mode"`
	// BufferThreshold is the largest payload buffered mode will hold in memory.
	BufferThreshold int64 `json:"buffer_threshold" yaml:"buffer_threshold"`
	ChunkSize       int   `json:"chunk_size"       yaml:"chunk_size"`
}

type ServerConfig struct {
	Addr         string `json:"addr"           yaml:"addr"`
	Debug        bool   `json:"debug"          yaml:"debug"`
	CORSAllowAll bool   `json:"cors_allow_all" yaml:"cors_allow_all"`
}

type LogConfig struct {
	Level  string `json:"level"  yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

const (
	DefaultConnectTimeout        = 10 * time.Second
	DefaultResponseHeaderTimeout = 30 * time.Second
	DefaultIdleTimeout           = 90 * time.Second
	DefaultPoolWaitTimeout       = 5 * time.Second
	DefaultBufferThreshold       = 64 * 1024 * 1024
	DefaultChunkSize             = 32 * 1024
)

// Defaults returns a Config with every tunable populated.
func Defaults() Config {
	return Config{
		Upstream: UpstreamConfig{
			Kind:                  UpstreamKindHTTP,
			ConnectTimeout:        DefaultConnectTimeout,
			ResponseHeaderTimeout: DefaultResponseHeaderTimeout,
			IdleTimeout:           DefaultIdleTimeout,
			PoolWaitTimeout:       DefaultPoolWaitTimeout,
		},
		Relay: RelayConfig{
			DefaultMode:     "streaming",
			BufferThreshold: DefaultBufferThreshold,
			ChunkSize:       DefaultChunkSize,
		},
		Server: ServerConfig{Addr: ":8080"},
		Log:    LogConfig{Level: "info", Format: "json"},
	}
}

// WithDefaults fills zero-valued tunables from Defaults.
func (c Config) WithDefaults() Config {
	def := Defaults()
	if c.Upstream.Kind == "" {
		c.Upstream.Kind = def.Upstream.Kind
	}
	if c.Upstream.ConnectTimeout <= 0 {
		c.Upstream.ConnectTimeout = def.Upstream.ConnectTimeout
	}
	if c.Upstream.ResponseHeaderTimeout <= 0 {
		c.Upstream.ResponseHeaderTimeout = def.Upstream.ResponseHeaderTimeout
	}
	if c.Upstream.IdleTimeout <= 0 {
		c.Upstream.IdleTimeout = def.Upstream.IdleTimeout
	}
	if c.Upstream.PoolWaitTimeout <= 0 {
		c.Upstream.PoolWaitTimeout = def.Upstream.PoolWaitTimeout
	}
	if c.Relay.DefaultMode == "" {
		c.Relay.DefaultMode = def.Relay.DefaultMode
	}
	if c.Relay.BufferThreshold <= 0 {
		c.Relay.BufferThreshold = def.Relay.BufferThreshold
	}
	if c.Relay.ChunkSize <= 0 {
		c.Relay.ChunkSize = def.Relay.ChunkSize
	}
	if c.Server.Addr == "" {
		c.Server.Addr = def.Server.Addr
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
	return c
}

func (c Config) Validate() error {
	switch strings.ToLower(c.Upstream.Kind) {
	case UpstreamKindHTTP:
		if c.Upstream.BaseURL == "" {
			return errors.New("upstream base url is required")
		}
		u, err := url.Parse(c.Upstream.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid upstream base url %q", c.Upstream.BaseURL)
		}
	case UpstreamKindS3:
		if c.S3.Bucket == "" {
			return errors.New("s3 bucket is required for the s3 upstream")
		}
	default:
		return fmt.Errorf("unsupported upstream kind %q", c.Upstream.Kind)
	}
	switch strings.ToLower(c.Relay.DefaultMode) {
	case "buffered", "streaming":
	default:
		return fmt.Errorf("unsupported relay mode %q", c.Relay.DefaultMode)
	}
	if c.Upstream.MaxConns < 0 {
		return errors.New("upstream max conns must not be negative")
	}
	return nil
}
