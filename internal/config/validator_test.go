package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateLogLevel(t *testing.T) {
	v := NewValidator()

	for _, level := range []string{"trace", "debug", "info", "warn", "error"} {
		assert.NoError(t, v.ValidateLogLevel(level), level)
	}
	assert.Error(t, v.ValidateLogLevel(""))
	assert.Error(t, v.ValidateLogLevel("INFO"))
}

func TestValidateHeartbeat(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateHeartbeat("@every 30s"))
	assert.NoError(t, v.ValidateHeartbeat("*/5 * * * *"))
	assert.Error(t, v.ValidateHeartbeat("@every"))
	assert.Error(t, v.ValidateHeartbeat("61 * * * *"))
}

func TestValidateStorage(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateStorage(StorageConfig{Backend: BackendS3}))
	assert.NoError(t, v.ValidateStorage(StorageConfig{Backend: BackendFS, FS: FSConfig{Root: "/srv/blobs"}}))
	assert.NoError(t, v.ValidateStorage(StorageConfig{Backend: BackendBolt, Bolt: BoltConfig{Path: "/srv/blobs.db"}}))
	assert.Error(t, v.ValidateStorage(StorageConfig{Backend: BackendFS, FS: FSConfig{Root: "  "}}))
}

func TestValidateConfigCollectsAll(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Port = 0
	cfg.Storage.Backend = "ftp"
	cfg.Logging.Level = "loud"

	errs := NewValidator().ValidateConfig(cfg)
	assert.Len(t, errs, 3)
}
