package storage

import (
	"testing"

	"github.com/dunamismax/pixelfit/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientRequiresBucket(t *testing.T) {
	_, err := NewClient(config.StorageConfig{Endpoint: "localhost:9000", Bucket: "  "})
	require.Error(t, err)
}

func TestNewClientKeepsBucket(t *testing.T) {
	c, err := NewClient(config.StorageConfig{
		Endpoint:  "localhost:9000",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    "renditions",
	})
	require.NoError(t, err)
	assert.Equal(t, "renditions", c.Bucket())
}

func TestObjectKeys(t *testing.T) {
	assert.Equal(t, "sources/job-1", SourceKey("job-1"))
	assert.Equal(t, "renditions/job-1/thumb.jpeg", RenditionKey("", "job-1", "thumb", "jpeg"))
	assert.Equal(t, "out/job-1/hero.png", RenditionKey("/out/", "job-1", "hero", "png"))
}
