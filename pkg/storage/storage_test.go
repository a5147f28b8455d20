package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framelight/deckhand/pkg/config"
)

func TestNewS3StoreRequiresBucket(t *testing.T) {
	_, err := NewS3Store(config.StorageConfig{Region: "us-east-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket")
}

func TestObjectKeyPrefixing(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		key    string
		want   string
	}{
		{"with prefix", "deckhand", "runs/42/brief.pdf", "deckhand/runs/42/brief.pdf"},
		{"prefix slashes trimmed", "/deckhand/", "brief.pdf", "deckhand/brief.pdf"},
		{"no prefix", "", "brief.pdf", "brief.pdf"},
		{"leading slash on key", "deckhand", "/brief.pdf", "deckhand/brief.pdf"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store, err := NewS3Store(config.StorageConfig{
				Bucket: "deckhand-archive",
				Region: "us-east-1",
				Prefix: tc.prefix,
			})
			require.NoError(t, err)
			assert.Equal(t, tc.want, store.objectKey(tc.key))
		})
	}
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "application/pdf", ContentTypeFor("brief.pdf"))
	assert.Equal(t, "image/png", ContentTypeFor("storyboard.PNG"))
	assert.Equal(t, "application/octet-stream", ContentTypeFor("dailies.braw2"))
	assert.Equal(t, "application/octet-stream", ContentTypeFor("noextension"))
}
