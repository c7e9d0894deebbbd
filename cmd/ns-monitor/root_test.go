package main

import (
	"path/filepath"
	"testing"
	"time"

	"Go2NetPulse/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScannerConfig_FallsBackToCaptureInterface(t *testing.T) {
	cfg := config.Default()
	cfg.Capture.Interface = "eth3"

	sc := scannerConfig(cfg)
	assert.Equal(t, "eth3", sc.Interface)
	assert.Equal(t, 3*time.Second, sc.Wait)
	assert.Equal(t, 50*time.Microsecond, sc.RateLimit)

	cfg.Discovery.Interface = "wlan0"
	assert.Equal(t, "wlan0", scannerConfig(cfg).Interface)
}

func TestLoadConfig_ExplicitMissingFileFails(t *testing.T) {
	prev := configFile
	t.Cleanup(func() { configFile = prev })

	configFile = filepath.Join(t.TempDir(), "nope.yaml")
	_, err := loadConfig()
	require.Error(t, err)
}

func TestCommandsRegistered(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "scan", "tail"})
}
