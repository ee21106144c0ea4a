// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/ini.v1"

	"github.com/scc-digitalhub/filerelay/sdk/testutil"
)

// run executes the root command against an isolated INI path.
func run(t *testing.T, iniPath string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand(&stdout, &stderr)
	cmd.SetArgs(append([]string{"--config", iniPath, "--log-level", "error"}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func setupUpstream(t *testing.T) *testutil.FakeUpstream {
	t.Helper()
	fake := testutil.NewFakeUpstream()
	t.Cleanup(fake.Close)
	t.Setenv("UPSTREAM_BASE_URL", fake.URL)
	t.Setenv("RELAY_CHUNK_SIZE", "4096")
	return fake
}

func TestDownloadCommandWritesFile(t *testing.T) {
	fake := setupUpstream(t)
	payload := testutil.Pattern(200_000)
	fake.Put("data.bin", payload)

	dir := t.TempDir()
	target := filepath.Join(dir, "copy.bin")

	for _, mode := range []string{"buffered", "streaming"} {
		t.Run(mode, func(t *testing.T) {
			stdout, _, err := run(t, filepath.Join(dir, "missing.ini"),
				"--output", "json", "download", "data.bin", "-o", target, "--mode", mode)
			require.NoError(t, err)

			got, err := os.ReadFile(target)
			require.NoError(t, err)
			assert.Equal(t, payload, got)

			var out map[string]any
			require.NoError(t, json.Unmarshal([]byte(stdout), &out))
			assert.Equal(t, mode, out["mode"])
			assert.Equal(t, true, out["delivered"])
			assert.EqualValues(t, len(payload), out["bytes_transferred"])
		})
	}

	// nessun file parziale rimasto
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDownloadCommandRejected(t *testing.T) {
	fake := setupUpstream(t)
	fake.Reject("gone.bin", http.StatusNotFound)

	dir := t.TempDir()
	target := filepath.Join(dir, "gone.bin")
	stdout, _, err := run(t, filepath.Join(dir, "missing.ini"), "download", "gone.bin", "-o", target)
	require.Error(t, err)
	assert.Contains(t, stdout, "status: 404")

	_, statErr := os.Stat(target)
	assert.True(t, os.IsNotExist(statErr))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUploadCommand(t *testing.T) {
	fake := setupUpstream(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "local.csv")
	payload := testutil.Pattern(50_000)
	require.NoError(t, os.WriteFile(src, payload, 0o600))

	_, _, err := run(t, filepath.Join(dir, "missing.ini"), "upload", src, "--name", "remote.csv", "--mode", "streaming")
	require.NoError(t, err)
	_, _, err = run(t, filepath.Join(dir, "missing.ini"), "upload", src, "--mode", "buffered")
	require.NoError(t, err)

	uploads := fake.Uploads()
	require.Len(t, uploads, 2)
	assert.Equal(t, "remote.csv", uploads[0].Filename)
	assert.True(t, uploads[0].Chunked)
	assert.Equal(t, "local.csv", uploads[1].Filename)
	assert.Equal(t, payload, uploads[0].Content)
	assert.Equal(t, payload, uploads[1].Content)
}

func TestUploadCommandMissingFile(t *testing.T) {
	setupUpstream(t)
	dir := t.TempDir()
	_, _, err := run(t, filepath.Join(dir, "missing.ini"), "upload", filepath.Join(dir, "nope"))
	require.Error(t, err)
}

func TestPingCommand(t *testing.T) {
	setupUpstream(t)
	stdout, _, err := run(t, filepath.Join(t.TempDir(), "missing.ini"), "ping")
	require.NoError(t, err)
	assert.Contains(t, stdout, "fake upstream is up")
}

func TestInvalidModeFlag(t *testing.T) {
	setupUpstream(t)
	_, _, err := run(t, filepath.Join(t.TempDir(), "missing.ini"), "download", "x", "--mode", "turbo")
	require.Error(t, err)
}

func TestConfigShowOmitsSecrets(t *testing.T) {
	setupUpstream(t)
	t.Setenv("AWS_SECRET_ACCESS_KEY", "super-secret")
	stdout, _, err := run(t, filepath.Join(t.TempDir(), "missing.ini"), "--output", "json", "config", "show")
	require.NoError(t, err)
	assert.NotContains(t, stdout, "super-secret")

	var conf map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &conf))
	assert.Contains(t, conf, "upstream")
	assert.Contains(t, conf, "relay")
}

func TestConfigShowKeysMasksSecrets(t *testing.T) {
	fake := setupUpstream(t)
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIAEXAMPLE")
	stdout, _, err := run(t, filepath.Join(t.TempDir(), "missing.ini"), "--output", "json", "config", "show", "--keys")
	require.NoError(t, err)
	assert.NotContains(t, stdout, "AKIAEXAMPLE")

	var settings map[string]string
	require.NoError(t, json.Unmarshal([]byte(stdout), &settings))
	assert.Equal(t, "********", settings["aws_access_key_id"])
	assert.Equal(t, fake.URL, settings["upstream_base_url"])
}

func TestConfigSave(t *testing.T) {
	fake := setupUpstream(t)
	iniPath := filepath.Join(t.TempDir(), "relay.ini")

	_, _, err := run(t, iniPath, "--env", "staging", "config", "save")
	require.NoError(t, err)

	cfg, err := ini.Load(iniPath)
	require.NoError(t, err)
	assert.Equal(t, fake.URL, cfg.Section("staging").Key("upstream_base_url").String())
	assert.Equal(t, "staging", cfg.Section("DEFAULT").Key("current_environment").String())
}

func TestFileResponseWriterKeepsErrorBodyAside(t *testing.T) {
	var dst bytes.Buffer
	w := newFileResponseWriter(&dst, nil)
	w.WriteHeader(http.StatusBadGateway)
	_, err := w.Write([]byte(`{"error":"x"}`))
	require.NoError(t, err)
	assert.Zero(t, dst.Len())
	assert.Equal(t, `{"error":"x"}`, w.ErrorBody())
}
