package retrieval

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"distcoord/internal/coordinator"
	"distcoord/internal/crypto"
	"distcoord/internal/manifest"
	"distcoord/internal/node"
	"distcoord/internal/registry"
)

func registerFakeNode(t *testing.T, reg *registry.Registry, id string, chunks map[string][]byte) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/chunk/", func(w http.ResponseWriter, r *http.Request) {
		chunkID := r.URL.Path[len("/chunk/"):]
		data, ok := chunks[chunkID]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write(data)
	})
	s := httptest.NewServer(mux)
	u, err := url.Parse(s.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	reg.Register(id, u.Hostname(), port, 2048)
	return s
}

func TestDownloadReassemblesFromSingleReplica(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	part1, err := crypto.Encrypt(key, []byte("hello "))
	require.NoError(t, err)
	part2, err := crypto.Encrypt(key, []byte("world"))
	require.NoError(t, err)

	reg := registry.New(30*time.Second, nil)
	s := registerFakeNode(t, reg, "n1", map[string][]byte{
		"c0": part1,
		"c1": part2,
	})
	defer s.Close()

	manifests, err := manifest.NewStore(t.TempDir(), key, 4096)
	require.NoError(t, err)
	m := &manifest.Manifest{
		FileID:           "file-xyz",
		OriginalFilename: "greeting.txt",
		EncryptionKey:    base64Encode(key),
		Chunks: []manifest.ChunkDescriptor{
			{ChunkID: "c0", NodeIDs: []string{"n1"}},
			{ChunkID: "c1", NodeIDs: []string{"n1"}},
		},
	}
	require.NoError(t, manifests.Save(m.FileID, m))

	engine := &Engine{
		Registry:   reg,
		Manifests:  manifests,
		NodeClient: node.NewClient(&http.Client{Timeout: 5 * time.Second}),
		Logger:     logrus.New(),
	}

	var out bytes.Buffer
	name, err := engine.Download(context.Background(), "file-xyz", &out)
	require.NoError(t, err)
	require.Equal(t, "greeting.txt", name)
	require.Equal(t, "hello world", out.String())
}

func TestDownloadFallsThroughToNextReplica(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	ciphertext, err := crypto.Encrypt(key, []byte("payload"))
	require.NoError(t, err)

	reg := registry.New(30*time.Second, nil)
	// n1 is registered but never serves this chunk id -> 404 -> fallthrough.
	s1 := registerFakeNode(t, reg, "n1", map[string][]byte{})
	defer s1.Close()
	s2 := registerFakeNode(t, reg, "n2", map[string][]byte{"c0": ciphertext})
	defer s2.Close()

	manifests, err := manifest.NewStore(t.TempDir(), key, 4096)
	require.NoError(t, err)
	m := &manifest.Manifest{
		FileID:        "file-fallthrough",
		EncryptionKey: base64Encode(key),
		Chunks: []manifest.ChunkDescriptor{
			{ChunkID: "c0", NodeIDs: []string{"n1", "n2"}},
		},
	}
	require.NoError(t, manifests.Save(m.FileID, m))

	engine := &Engine{
		Registry:   reg,
		Manifests:  manifests,
		NodeClient: node.NewClient(&http.Client{Timeout: 5 * time.Second}),
		Logger:     logrus.New(),
	}

	var out bytes.Buffer
	_, err = engine.Download(context.Background(), "file-fallthrough", &out)
	require.NoError(t, err)
	require.Equal(t, "payload", out.String())
}

func TestDownloadUnknownFileFails(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	manifests, err := manifest.NewStore(t.TempDir(), key, 4096)
	require.NoError(t, err)

	engine := &Engine{
		Registry:   registry.New(30*time.Second, nil),
		Manifests:  manifests,
		NodeClient: node.NewClient(&http.Client{Timeout: 5 * time.Second}),
		Logger:     logrus.New(),
	}

	var out bytes.Buffer
	_, err = engine.Download(context.Background(), "nope", &out)
	require.ErrorIs(t, err, coordinator.ErrFileNotFound)
}

func TestDownloadNoReachableReplicaFails(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	manifests, err := manifest.NewStore(t.TempDir(), key, 4096)
	require.NoError(t, err)

	m := &manifest.Manifest{
		FileID:        "file-lost",
		EncryptionKey: base64Encode(key),
		Chunks: []manifest.ChunkDescriptor{
			{ChunkID: "c0", NodeIDs: []string{}},
		},
	}
	require.NoError(t, manifests.Save(m.FileID, m))

	engine := &Engine{
		Registry:   registry.New(30*time.Second, nil),
		Manifests:  manifests,
		NodeClient: node.NewClient(&http.Client{Timeout: 5 * time.Second}),
		Logger:     logrus.New(),
	}

	var out bytes.Buffer
	_, err = engine.Download(context.Background(), "file-lost", &out)
	require.ErrorIs(t, err, coordinator.ErrChunkUnavailable)
}

func TestDownloadAbortsOnKnownFailedChunk(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	manifests, err := manifest.NewStore(t.TempDir(), key, 4096)
	require.NoError(t, err)

	m := &manifest.Manifest{
		FileID:        "file-partial",
		EncryptionKey: base64Encode(key),
		Chunks: []manifest.ChunkDescriptor{
			{ChunkID: "c0", NodeIDs: []string{}},
		},
		FailedChunks: []string{"c0"},
	}
	require.NoError(t, manifests.Save(m.FileID, m))

	engine := &Engine{
		Registry:   registry.New(30*time.Second, nil),
		Manifests:  manifests,
		NodeClient: node.NewClient(&http.Client{Timeout: 5 * time.Second}),
		Logger:     logrus.New(),
	}

	var out bytes.Buffer
	_, err = engine.Download(context.Background(), "file-partial", &out)
	require.ErrorIs(t, err, coordinator.ErrChunkUnavailable)
}

func base64Encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}
