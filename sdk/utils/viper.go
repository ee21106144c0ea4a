// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/ini.v1"

	"github.com/scc-digitalhub/filerelay/sdk/config"
)

// EnvDumpPrefix: optional prefix for env lookup (e.g., "FILERELAY")
const EnvDumpPrefix = "FILERELAY"

// Settings holds all logical keys. Tags:
// - vkey: Viper key
// - env: canonical env name (UPPER_SNAKE). If empty, derived from vkey
// - persist: "true" to write the key into the INI
// - default: optional default to set if key is unset
// - secret: "true" if sensitive (masked by config show)
// - bind: "false" to NOT bind from env (we still can set defaults)
type Settings struct {
	UpstreamKind                  string `vkey:"upstream_kind"                    env:"UPSTREAM_KIND"                    persist:"true" default:"http"`
	UpstreamBaseURL               string `vkey:"upstream_base_url"                env:"UPSTREAM_BASE_URL"                persist:"true"`
	UpstreamConnectTimeout        string `vkey:"upstream_connect_timeout"         env:"UPSTREAM_CONNECT_TIMEOUT"         persist:"true" default:"10s"`
	UpstreamResponseHeaderTimeout string `vkey:"upstream_response_header_timeout" env:"UPSTREAM_RESPONSE_HEADER_TIMEOUT" persist:"true" default:"30s"`
	UpstreamIdleTimeout           string `vkey:"upstream_idle_timeout"            env:"UPSTREAM_IDLE_TIMEOUT"            persist:"true" default:"90s"`
	UpstreamMaxConns              string `vkey:"upstream_max_conns"               env:"UPSTREAM_MAX_CONNS"               persist:"true" default:"0"`
	UpstreamPoolWaitTimeout       string `vkey:"upstream_pool_wait_timeout"       env:"UPSTREAM_POOL_WAIT_TIMEOUT"       persist:"true" default:"5s"`

	RelayDefaultMode     string `vkey:"relay_default_mode"     env:"RELAY_DEFAULT_MODE"     persist:"true" default:"streaming"`
	RelayBufferThreshold string `vkey:"relay_buffer_threshold" env:"RELAY_BUFFER_THRESHOLD" persist:"true" default:"67108864"`
	RelayChunkSize       string `vkey:"relay_chunk_size"       env:"RELAY_CHUNK_SIZE"       persist:"true" default:"32768"`

	ServerAddr         string `vkey:"server_addr"           env:"SERVER_ADDR"           persist:"true" default:":8080"`
	ServerDebug        string `vkey:"server_debug"          env:"SERVER_DEBUG"          persist:"true" default:"false"`
	ServerCORSAllowAll string `vkey:"server_cors_allow_all" env:"SERVER_CORS_ALLOW_ALL" persist:"true" default:"false"`

	LogLevel  string `vkey:"log_level"  env:"LOG_LEVEL"  persist:"true" default:"info"`
	LogFormat string `vkey:"log_format" env:"LOG_FORMAT" persist:"true" default:"json"`

	AwsAccessKeyID     string `vkey:"aws_access_key_id"     env:"AWS_ACCESS_KEY_ID"     persist:"true" secret:"true"`
	AwsSecretAccessKey string `vkey:"aws_secret_access_key" env:"AWS_SECRET_ACCESS_KEY" persist:"true" secret:"true"`
	AwsSessionToken    string `vkey:"aws_session_token"     env:"AWS_SESSION_TOKEN"     persist:"true" secret:"true"`
	AwsRegion          string `vkey:"aws_region"            env:"AWS_REGION"            persist:"true" default:"us-east-1"`
	AwsEndpointURL     string `vkey:"aws_endpoint_url"      env:"AWS_ENDPOINT_URL"      persist:"true"`
	S3Bucket           string `vkey:"s3_bucket"             env:"S3_BUCKET"             persist:"true"`
	S3Prefix           string `vkey:"s3_prefix"             env:"S3_PREFIX"             persist:"true"`

	UpdatedEnvironment string `vkey:"updated_environment" env:"UPDATED_ENVIRONMENT" persist:"true" bind:"false"`
	CurrentEnvironment string `vkey:"current_environment" env:"CURRENT_ENVIRONMENT" persist:"false"`
}

// resolveEnvName: --env > "default"
func resolveEnvName(optionalEnv ...string) string {
	if len(optionalEnv) > 0 && optionalEnv[0] != "" && strings.ToLower(optionalEnv[0]) != "null" {
		return optionalEnv[0]
	}
	return "default"
}

// IniPath: $FILERELAY_CONFIG > ~/.filerelay.ini
func IniPath() string {
	if p := os.Getenv(ConfigPathEnv); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, IniName)
}

// mirror PREFIX_FOO -> FOO (optional)
func mirrorPrefix(prefix string) {
	if prefix == "" {
		return
	}
	upPrefix := strings.ToUpper(prefix) + "_"
	for _, e := range os.Environ() {
		kv := strings.SplitN(e, "=", 2)
		if len(kv) != 2 {
			continue
		}
		name, val := kv[0], kv[1]
		if strings.HasPrefix(name, upPrefix) {
			unpref := strings.TrimPrefix(name, upPrefix)
			if os.Getenv(unpref) == "" {
				_ = os.Setenv(unpref, val)
			}
		}
	}
}

// forEachKey visits the tagged fields of Settings.
func forEachKey(fn func(f reflect.StructField, key string)) {
	rt := reflect.TypeOf(Settings{})
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		key := f.Tag.Get("vkey")
		if key == "" {
			continue
		}
		fn(f, key)
	}
}

// Bind env for all fields of Settings using struct tags.
func BindEnvFromStruct(prefix string) {
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	mirrorPrefix(prefix)

	forEachKey(func(f reflect.StructField, key string) {
		if def := f.Tag.Get("default"); def != "" {
			viper.SetDefault(key, def)
		}
		// if false not to bind
		if f.Tag.Get("bind") == "false" {
			return
		}
		env := f.Tag.Get("env")
		if env == "" {
			env = strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		}
		_ = viper.BindEnv(key, env)
	})
}

func persistedSection(sec *ini.Section) {
	forEachKey(func(f reflect.StructField, key string) {
		if f.Tag.Get("persist") != "true" {
			return
		}
		val := viper.GetString(key)
		if val == "" {
			return
		}
		sec.Key(key).SetValue(val)
	})
}

// Write a new INI with only fields marked persist:"true".
func WriteIniFromStruct(iniPath, envName string) error {
	cfg := ini.Empty()
	cfg.Section("DEFAULT").Key(CurrentEnvironment).SetValue(envName)
	sec := cfg.Section(envName)
	persistedSection(sec)
	sec.Key(UpdatedEnvKey).SetValue(time.Now().UTC().Format(time.RFC3339))
	return cfg.SaveTo(iniPath)
}

// Update or create INI section from current Viper values (persist:"true" only).
func UpdateIniFromStruct(iniPath, envName string) error {
	cfg, err := ini.Load(iniPath)
	if err != nil {
		return WriteIniFromStruct(iniPath, envName)
	}
	sec := cfg.Section(envName)
	persistedSection(sec)

	if !cfg.Section("DEFAULT").HasKey(CurrentEnvironment) {
		cfg.Section("DEFAULT").Key(CurrentEnvironment).SetValue(envName)
	}
	sec.Key(UpdatedEnvKey).SetValue(time.Now().UTC().Format(time.RFC3339))
	return cfg.SaveTo(iniPath)
}

// Load [DEFAULT] + [env] into Viper (TOML in-memory). ENV can still override on Get().
// Returns the section actually used.
func loadIniSectionIntoViper(cfg *ini.File, env string) (string, error) {
	def := cfg.Section("DEFAULT")
	selected := def
	used := "DEFAULT"
	if env != "" && cfg.HasSection(env) {
		selected = cfg.Section(env)
		used = env
	}

	merged := make(map[string]string)
	for _, k := range def.Keys() {
		merged[k.Name()] = k.Value()
	}
	if selected != def {
		for _, k := range selected.Keys() {
			merged[k.Name()] = k.Value()
		}
	}

	var buf bytes.Buffer
	for k, v := range merged {
		vSafe := strings.ReplaceAll(strings.ReplaceAll(v, `\`, `\\`), `"`, `\"`)
		_, _ = fmt.Fprintf(&buf, "%s = \"%s\"\n", k, vSafe)
	}
	viper.SetConfigType("toml")
	return used, viper.ReadConfig(&buf)
}

// RegisterIniCfgWithViper:
// 1) bind ENV from struct (live)
// 2) load the INI if present; a missing INI means ENV-only mode
// 3) load active section into Viper and set current_environment
func RegisterIniCfgWithViper(iniPath string, optionalEnv ...string) (string, error) {
	BindEnvFromStruct(EnvDumpPrefix)

	env := resolveEnvName(optionalEnv...)
	cfg, err := ini.Load(iniPath)
	if err != nil {
		if os.IsNotExist(err) {
			viper.Set(CurrentEnvironment, env)
			return env, nil
		}
		return "", fmt.Errorf("failed to read INI %s: %w", iniPath, err)
	}

	// active env: --env > DEFAULT.current_environment > default
	if env == "default" {
		if v := cfg.Section("DEFAULT").Key(CurrentEnvironment).String(); v != "" {
			env = v
		}
	}

	used, err := loadIniSectionIntoViper(cfg, env)
	if err != nil {
		return "", fmt.Errorf("failed to load INI into viper: %w", err)
	}
	viper.Set(CurrentEnvironment, env)
	return used, nil
}

// LoadConfig resolves the relay configuration from the current Viper state.
func LoadConfig() (config.Config, error) {
	durations := map[string]*time.Duration{}
	conf := config.Config{
		Upstream: config.UpstreamConfig{
			Kind:     strings.ToLower(viper.GetString(UpstreamKind)),
			BaseURL:  viper.GetString(UpstreamBaseURL),
			MaxConns: viper.GetInt(UpstreamMaxConns),
		},
		S3: config.S3Config{
			AccessKey:   viper.GetString(AwsAccessKeyID),
			SecretKey:   viper.GetString(AwsSecretAccessKey),
			AccessToken: viper.GetString(AwsSessionToken),
			Region:      viper.GetString(AwsRegion),
			EndpointURL: viper.GetString(AwsEndpointURL),
			Bucket:      viper.GetString(S3Bucket),
			Prefix:      viper.GetString(S3Prefix),
		},
		Relay: config.RelayConfig{
			DefaultMode:     strings.ToLower(viper.GetString(RelayDefaultMode)),
			BufferThreshold: viper.GetInt64(RelayBufferThreshold),
			ChunkSize:       viper.GetInt(RelayChunkSize),
		},
		Server: config.ServerConfig{
			Addr:         viper.GetString(ServerAddr),
			Debug:        viper.GetBool(ServerDebug),
			CORSAllowAll: viper.GetBool(ServerCORSAllowAll),
		},
		Log: config.LogConfig{
			Level:  viper.GetString(LogLevel),
			Format: viper.GetString(LogFormat),
		},
	}
	durations[UpstreamConnectTimeout] = &conf.Upstream.ConnectTimeout
	durations[UpstreamResponseHeaderTimeout] = &conf.Upstream.ResponseHeaderTimeout
	durations[UpstreamIdleTimeout] = &conf.Upstream.IdleTimeout
	durations[UpstreamPoolWaitTimeout] = &conf.Upstream.PoolWaitTimeout

	for key, dst := range durations {
		raw := viper.GetString(key)
		if raw == "" {
			continue
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return config.Config{}, fmt.Errorf("invalid %s %q: %w", key, raw, err)
		}
		*dst = d
	}
	return conf.WithDefaults(), nil
}

// SecretKeys lists the keys tagged secret:"true".
func SecretKeys() []string {
	var keys []string
	forEachKey(func(f reflect.StructField, key string) {
		if f.Tag.Get("secret") == "true" {
			keys = append(keys, key)
		}
	})
	return keys
}

const secretMask = "********"

// EffectiveSettings returns every key as Viper resolves it; secrets that are
// set come back masked.
func EffectiveSettings() map[string]string {
	secret := map[string]bool{}
	for _, k := range SecretKeys() {
		secret[k] = true
	}
	out := map[string]string{}
	forEachKey(func(_ reflect.StructField, key string) {
		val := viper.GetString(key)
		if secret[key] && val != "" {
			val = secretMask
		}
		out[key] = val
	})
	return out
}
