/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "client.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
domain: example.com
username: juliet
password: r0m30myr0m30
resource: balcony
priority: 5
enable_compression: true
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "example.com", cfg.Domain)
	require.Equal(t, "juliet", cfg.Username)
	require.Equal(t, "balcony", cfg.Resource)
	require.Equal(t, int8(5), cfg.Priority)
	require.True(t, cfg.EnableCompression)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)
}
