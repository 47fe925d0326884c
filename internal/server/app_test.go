package server

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/server/config"
	"github.com/dmitrijs2005/gophdrive/internal/server/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c := &config.Config{}
	c.LoadDefaults()
	c.MetadataStore = config.MetadataMemory
	c.StorageBackend = config.BackendFilesystem
	c.StorageRoot = t.TempDir()
	c.TempDir = t.TempDir()
	c.HTTPAddr = "127.0.0.1:0"
	c.EncryptionPassword = "pw"
	return c
}

func TestNewBackend_Filesystem(t *testing.T) {
	b, err := newBackend(context.Background(), testConfig(t))
	require.NoError(t, err)
	assert.Equal(t, storage.KindFilesystem, b.Kind())
}

func TestNewBackend_Unknown(t *testing.T) {
	c := testConfig(t)
	c.StorageBackend = "tape"
	_, err := newBackend(context.Background(), c)
	assert.Error(t, err)
}

func TestNewRepositoryManager(t *testing.T) {
	c := testConfig(t)

	db, rm, err := newRepositoryManager(context.Background(), c)
	require.NoError(t, err)
	assert.Nil(t, db)
	assert.NotNil(t, rm)

	c.MetadataStore = "nosql"
	_, _, err = newRepositoryManager(context.Background(), c)
	assert.Error(t, err)
}

func TestMinioEndpoint(t *testing.T) {
	tests := []struct {
		raw    string
		host   string
		secure bool
	}{
		{"http://127.0.0.1:9000/", "127.0.0.1:9000", false},
		{"https://minio.example.com", "minio.example.com", true},
		{"localhost:9000", "localhost:9000", false},
		{"minio:9000/", "minio:9000", false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			host, secure := minioEndpoint(tt.raw)
			assert.Equal(t, tt.host, host)
			assert.Equal(t, tt.secure, secure)
		})
	}
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	c := testConfig(t)
	c.TokenPurgeInterval = 10 * time.Millisecond

	app, err := NewApp(context.Background(), c)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		app.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
}
