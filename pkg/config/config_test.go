package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name    string        `yaml:"name"`
	Port    int           `yaml:"port"`
	Timeout time.Duration `yaml:"timeout"`
}

func (s *sample) Validate() error {
	if s.Port <= 0 {
		return errors.New("port must be positive")
	}
	return nil
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_ExpandsEnvAndKeepsDefaults(t *testing.T) {
	t.Setenv("SAMPLE_NAME", "lattice")
	path := writeFile(t, "name: ${SAMPLE_NAME}\ntimeout: 750ms\n")

	cfg := sample{Port: 8080}
	require.NoError(t, Load(path, &cfg))
	assert.Equal(t, "lattice", cfg.Name)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 750*time.Millisecond, cfg.Timeout)
}

func TestLoad_Validates(t *testing.T) {
	path := writeFile(t, "port: 0\n")
	cfg := sample{Port: 8080}
	err := Load(path, &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestLoad_MissingFile(t *testing.T) {
	var cfg sample
	require.Error(t, Load(filepath.Join(t.TempDir(), "nope.yaml"), &cfg))
}

func TestParse_InvalidYAML(t *testing.T) {
	cfg := sample{Port: 1}
	require.Error(t, Parse([]byte("port: [1"), &cfg))
}

func TestLoadOptional(t *testing.T) {
	cfg := sample{Port: 9000}
	found, err := LoadOptional(filepath.Join(t.TempDir(), "absent.yaml"), &cfg)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 9000, cfg.Port)

	bad := sample{}
	_, err = LoadOptional(filepath.Join(t.TempDir(), "absent.yaml"), &bad)
	require.Error(t, err)

	path := writeFile(t, "port: 9100\n")
	found, err = LoadOptional(path, &cfg)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 9100, cfg.Port)
}
