package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	cfg := Load()

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "attachment-zip-requests", cfg.QueueName)
	assert.True(t, cfg.QueueBase64)
	assert.Equal(t, 3, cfg.MaxAttachments)
	assert.Equal(t, BlobBackendLocal, cfg.BlobBackend)
	assert.Equal(t, 5*time.Minute, cfg.VisibilityTimeout)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("WORKER_CONCURRENCY", "7")
	t.Setenv("QUEUE_BASE64", "false")
	t.Setenv("VISIBILITY_TIMEOUT", "45s")
	t.Setenv("BLOB_BACKEND", "S3")
	t.Setenv("S3_BUCKET", "results")
	t.Setenv("RESULT_BASE_URL", "https://files.example.com/")
	t.Setenv("MAX_ATTACHMENT_BYTES", "1024")

	cfg := Load()

	assert.Equal(t, 7, cfg.WorkerConcurrency)
	assert.False(t, cfg.QueueBase64)
	assert.Equal(t, 45*time.Second, cfg.VisibilityTimeout)
	assert.Equal(t, BlobBackendS3, cfg.BlobBackend)
	assert.Equal(t, "https://files.example.com", cfg.ResultBaseURL)
	assert.Equal(t, int64(1024), cfg.MaxAttachmentBytes)
	require.NoError(t, cfg.Validate())
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("MAX_DEQUEUE_COUNT", "lots")
	t.Setenv("RATE_LIMIT_REFILL_PER_SEC", "fast")

	cfg := Load()
	assert.Equal(t, 5, cfg.MaxDequeueCount)
	assert.Equal(t, float64(1), cfg.RateLimitRefill)
}

func TestLoadReadsDotEnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("QUEUE_NAME=from-dotenv\nHTTP_PORT=9999\n"), 0o600))
	t.Setenv("ENV_FILE", envFile)
	// Real environment variables take precedence over the file.
	t.Setenv("HTTP_PORT", "7070")
	t.Cleanup(func() { _ = os.Unsetenv("QUEUE_NAME") })

	cfg := Load()
	assert.Equal(t, "from-dotenv", cfg.QueueName)
	assert.Equal(t, "7070", cfg.HTTPPort)
}

func TestValidateRejectsBadSettings(t *testing.T) {
	cfg := Config{
		BlobBackend:       BlobBackendS3,
		QueueName:         "",
		WorkerConcurrency: 0,
		MaxDequeueCount:   0,
		MaxAttachments:    0,
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "S3_BUCKET")
	assert.Contains(t, err.Error(), "QUEUE_NAME")
	assert.Contains(t, err.Error(), "WORKER_CONCURRENCY")
	assert.Contains(t, err.Error(), "VISIBILITY_TIMEOUT")

	cfg = Config{BlobBackend: "azure"}
	assert.ErrorContains(t, cfg.Validate(), `unknown BLOB_BACKEND "azure"`)
}
