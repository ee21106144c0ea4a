// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/scc-digitalhub/filerelay/sdk/config"
)

type RelayService struct {
	buffered    *bufferedStrategy
	streaming   *streamingStrategy
	defaultMode Mode
	threshold   int64
	log         logrus.FieldLogger
	metrics     *Metrics
	now         func() time.Time
}

type Option func(*RelayService)

func WithLogger(l logrus.FieldLogger) Option {
	return func(s *RelayService) { s.log = l }
}

func WithMetrics(m *Metrics) Option {
	return func(s *RelayService) { s.metrics = m }
}

// WithUpstreams overrides the upstream instances built from the config.
func WithUpstreams(buffered, streaming config.Upstream) Option {
	return func(s *RelayService) {
		s.buffered.upstream = buffered
		s.streaming.upstream = streaming
	}
}

// NewRelayService wires two upstream instances, one per submission mode, from
// conf. Nothing is shared between services.
func NewRelayService(ctx context.Context, conf config.Config, opts ...Option) (*RelayService, error) {
	conf = conf.WithDefaults()

	mode, err := ParseMode(conf.Relay.DefaultMode, ModeStreaming)
	if err != nil {
		return nil, fmt.Errorf("invalid relay config: %w", err)
	}
	s := &RelayService{
		buffered:    &bufferedStrategy{threshold: conf.Relay.BufferThreshold},
		streaming:   &streamingStrategy{chunkSize: conf.Relay.ChunkSize},
		defaultMode: mode,
		threshold:   conf.Relay.BufferThreshold,
		log:         logrus.StandardLogger(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.buffered.upstream != nil && s.streaming.upstream != nil {
		return s, nil
	}

	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid relay config: %w", err)
	}
	switch strings.ToLower(conf.Upstream.Kind) {
	case config.UpstreamKindS3:
		s3c, err := config.NewS3Client(ctx, conf.S3)
		if err != nil {
			return nil, fmt.Errorf("S3 init failed: %w", err)
		}
		s.buffered.upstream, s.streaming.upstream = s3c, s3c
	default:
		// un solo client e un solo pool per entrambe le istanze
		httpc := config.NewHTTPClient(conf.Upstream)
		pool := config.NewConnPool(conf.Upstream)
		s.buffered.upstream = config.NewHTTPUpstream(httpc, pool, conf.Upstream, config.SubmitBuffered, conf.Relay.BufferThreshold+multipartOverhead)
		s.streaming.upstream = config.NewHTTPUpstream(httpc, pool, conf.Upstream, config.SubmitStreaming, 0)
	}
	return s, nil
}

// multipartOverhead leaves room for the form envelope around a buffered upload.
const multipartOverhead = 64 * 1024

func (s *RelayService) DefaultMode() Mode { return s.defaultMode }

// Ping probes the upstream.
func (s *RelayService) Ping(ctx context.Context) (string, error) {
	return s.streaming.upstream.Ping(ctx)
}

func (s *RelayService) strategyFor(m Mode) (BodyTransferStrategy, error) {
	if m == "" {
		m = s.defaultMode
	}
	switch m {
	case ModeBuffered:
		return s.buffered, nil
	case ModeStreaming:
		return s.streaming, nil
	default:
		return nil, fmt.Errorf("unsupported mode %q", m)
	}
}

func (s *RelayService) start(direction Direction, filename string, mode Mode) (Outcome, time.Time, func()) {
	if mode == "" {
		mode = s.defaultMode
	}
	out := Outcome{
		ID:        uuid.NewString(),
		Direction: direction,
		Mode:      mode,
		Filename:  filename,
	}
	return out, s.now(), s.metrics.begin(direction)
}

// finish stamps duration, logs and records the outcome.
func (s *RelayService) finish(out Outcome, started time.Time, done func()) Outcome {
	done()
	out.Duration = s.now().Sub(started)
	out.Delivered = out.Err == nil

	entry := s.log.WithFields(logrus.Fields{
		"transfer_id": out.ID,
		"direction":   out.Direction,
		"mode":        out.Mode,
		"filename":    out.Filename,
		"bytes":       out.BytesTransferred,
		"status":      out.Status,
		"duration":    out.Duration.String(),
	})
	switch {
	case out.Err == nil:
		entry.Info("transfer completed")
	case out.Err.Kind == KindClientAborted || out.Err.Kind == KindUpstreamRejected:
		entry.WithField("kind", out.Err.Kind).WithError(out.Err).Warn("transfer not delivered")
	default:
		entry.WithField("kind", out.Err.Kind).WithError(out.Err).Error("transfer failed")
	}
	s.metrics.observe(out)
	return out
}
