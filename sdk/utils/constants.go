// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package utils

const (
	IniName            = ".filerelay.ini"
	ConfigPathEnv      = "FILERELAY_CONFIG"
	CurrentEnvironment = "current_environment"
	UpdatedEnvKey      = "updated_environment"

	UpstreamKind                  = "upstream_kind"
	UpstreamBaseURL               = "upstream_base_url"
	UpstreamConnectTimeout        = "upstream_connect_timeout"
	UpstreamResponseHeaderTimeout = "upstream_response_header_timeout"
	UpstreamIdleTimeout           = "upstream_idle_timeout"
	UpstreamMaxConns              = "upstream_max_conns"
	UpstreamPoolWaitTimeout       = "upstream_pool_wait_timeout"

	RelayDefaultMode     = "relay_default_mode"
	RelayBufferThreshold = "relay_buffer_threshold"
	RelayChunkSize       = "relay_chunk_size"

	ServerAddr         = "server_addr"
	ServerDebug        = "server_debug"
	ServerCORSAllowAll = "server_cors_allow_all"

	LogLevel  = "log_level"
	LogFormat = "log_format"

	AwsAccessKeyID     = "aws_access_key_id"
	AwsSecretAccessKey = "aws_secret_access_key"
	AwsSessionToken    = "aws_session_token"
	AwsRegion          = "aws_region"
	AwsEndpointURL     = "aws_endpoint_url"
	S3Bucket           = "s3_bucket"
	S3Prefix           = "s3_prefix"
)
