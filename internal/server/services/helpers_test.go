package services

import (
	"bytes"
	"context"
	"errors"
	"image"
	"io"
	"io/fs"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/cryptox"
	"github.com/dmitrijs2005/gophdrive/internal/logging"
	"github.com/dmitrijs2005/gophdrive/internal/server/auth"
	"github.com/dmitrijs2005/gophdrive/internal/server/config"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
	"github.com/dmitrijs2005/gophdrive/internal/server/notify"
	"github.com/dmitrijs2005/gophdrive/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophdrive/internal/server/storage/fsstore"
	"github.com/dmitrijs2005/gophdrive/internal/server/thumbnail"
	"github.com/stretchr/testify/require"
)

// --- helpers ---

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeFrames struct{}

func (fakeFrames) ExtractFrame(context.Context, string) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 640, 360)), nil
}

type failingThumbs struct{}

func (failingThumbs) Generate(context.Context, thumbnail.Kind, string) ([]byte, error) {
	return nil, errors.New("decoder exploded")
}

func (failingThumbs) MaxSource() int64 { return 0 }

type recordingNotifier struct {
	events []notify.ShareEvent
}

func (n *recordingNotifier) ShareCreated(_ context.Context, e notify.ShareEvent) error {
	n.events = append(n.events, e)
	return nil
}

type testEnv struct {
	root      string
	clock     *clock
	rm        *repomanager.MemoryRepositoryManager
	store     *fsstore.Store
	env       *cryptox.Envelope
	tokens    *TokenService
	uploads   *UploadService
	retrieval *RetrievalService
	files     *FileService
	notifier  *recordingNotifier
	cfg       *config.Config
}

func newTestEnv(t *testing.T, thumbs Thumbnailer) *testEnv {
	t.Helper()

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.TempDir = t.TempDir()

	root := t.TempDir()
	store, err := fsstore.New(root)
	require.NoError(t, err)

	env, err := cryptox.NewEnvelope(cryptox.DeriveMasterKey([]byte("password"), []byte("salt-salt")))
	require.NoError(t, err)

	clk := &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	rm := repomanager.NewMemoryRepositoryManager()
	log := logging.Nop()
	n := &recordingNotifier{}

	tokens := NewTokenService(nil, rm, auth.NewSigner([]byte("k"), clk.now), cfg, log, clk.now)

	return &testEnv{
		root:      root,
		clock:     clk,
		rm:        rm,
		store:     store,
		env:       env,
		tokens:    tokens,
		uploads:   NewUploadService(nil, rm, store, env, thumbs, cfg, log),
		retrieval: NewRetrievalService(nil, rm, store, env, tokens, log),
		files:     NewFileService(nil, rm, store, tokens, n, log),
		notifier:  n,
		cfg:       cfg,
	}
}

func (e *testEnv) upload(t *testing.T, p models.Principal, name string, data []byte) *models.File {
	t.Helper()
	f, err := e.uploads.Upload(context.Background(), p, UploadRequest{Filename: name, Body: bytes.NewReader(data)})
	require.NoError(t, err)
	return f
}

// storedObjects lists every regular file under the store root.
func (e *testEnv) storedObjects(t *testing.T) []string {
	t.Helper()
	var out []string
	err := filepath.WalkDir(e.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			out = append(out, path)
		}
		return nil
	})
	require.NoError(t, err)
	return out
}

func readAll(t *testing.T, c *Content) []byte {
	t.Helper()
	defer c.Body.Close()
	b, err := io.ReadAll(c.Body)
	require.NoError(t, err)
	return b
}

func randomBytes(n int, seed int64) []byte {
	b := make([]byte, n)
	rand.New(rand.NewSource(seed)).Read(b)
	return b
}

// brokenBody yields n bytes and then fails, like a client that disconnects.
type brokenBody struct {
	data []byte
	err  error
}

func (b *brokenBody) Read(p []byte) (int, error) {
	if len(b.data) == 0 {
		return 0, b.err
	}
	n := copy(p, b.data)
	b.data = b.data[n:]
	return n, nil
}

var alice = models.Principal{ID: "alice", EmailVerified: true}
var bob = models.Principal{ID: "bob", EmailVerified: true}

type memoryManager = repomanager.MemoryRepositoryManager

func mustRel(t *testing.T, root, path string) string {
	t.Helper()
	rel, err := filepath.Rel(root, path)
	require.NoError(t, err)
	return filepath.ToSlash(rel)
}
