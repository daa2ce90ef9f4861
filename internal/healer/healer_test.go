package healer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"distcoord/internal/audit"
	"distcoord/internal/coordinator"
	"distcoord/internal/crypto"
	"distcoord/internal/manifest"
	"distcoord/internal/node"
	"distcoord/internal/registry"
)

type fakeAuditSink struct {
	events []audit.Event
}

func (f *fakeAuditSink) Record(e audit.Event) {
	f.events = append(f.events, e)
}

func fakeChunkNode(t *testing.T, reg *registry.Registry, id string, blobs map[string][]byte) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/chunk/", func(w http.ResponseWriter, r *http.Request) {
		chunkID := r.URL.Path[len("/chunk/"):]
		data, ok := blobs[chunkID]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write(data)
	})
	mux.HandleFunc("/store_chunk", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		chunkID := r.FormValue("chunk_id")
		file, _, err := r.FormFile("chunk")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		buf := make([]byte, 1<<20)
		n, _ := file.Read(buf)
		blobs[chunkID] = buf[:n]
		w.WriteHeader(http.StatusOK)
	})
	s := httptest.NewServer(mux)
	u, err := url.Parse(s.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	reg.Register(id, u.Hostname(), port, 2048)
	return s
}

func TestHealOneRestoresRedundancy(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	ciphertext, err := crypto.Encrypt(key, []byte("payload"))
	require.NoError(t, err)

	reg := registry.New(30*time.Second, nil)
	donorBlobs := map[string][]byte{"file-1_chunk_00000": ciphertext}
	donor := fakeChunkNode(t, reg, "n1", donorBlobs)
	defer donor.Close()
	candidateBlobs := map[string][]byte{}
	candidate := fakeChunkNode(t, reg, "n2", candidateBlobs)
	defer candidate.Close()

	manifests, err := manifest.NewStore(t.TempDir(), key, 4096)
	require.NoError(t, err)
	m := &manifest.Manifest{
		FileID:        "file-1",
		EncryptionKey: "",
		Chunks: []manifest.ChunkDescriptor{
			{ChunkID: "file-1_chunk_00000", NodeIDs: []string{"n1"}},
		},
	}
	require.NoError(t, manifests.Save(m.FileID, m))

	queue := coordinator.NewHealQueue()
	worker := NewWorker(queue, reg, manifests, node.NewClient(&http.Client{Timeout: 5 * time.Second}), 3, 50*time.Millisecond, logrus.New())
	sink := &fakeAuditSink{}
	worker.Audit = sink

	worker.healOne(context.Background(), "file-1_chunk_00000")

	got, err := manifests.Load("file-1")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"n1", "n2"}, got.Chunks[0].NodeIDs)

	require.Len(t, sink.events, 1)
	require.Equal(t, "healed", sink.events[0].EventType)
	require.Equal(t, "file-1_chunk_00000", sink.events[0].ChunkID)
}

func TestHealOneUnhealableWhenNoDonor(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	manifests, err := manifest.NewStore(t.TempDir(), key, 4096)
	require.NoError(t, err)
	m := &manifest.Manifest{
		FileID: "file-lost",
		Chunks: []manifest.ChunkDescriptor{
			{ChunkID: "file-lost_chunk_00000", NodeIDs: []string{}},
		},
	}
	require.NoError(t, manifests.Save(m.FileID, m))

	reg := registry.New(30*time.Second, nil)
	queue := coordinator.NewHealQueue()
	worker := NewWorker(queue, reg, manifests, node.NewClient(&http.Client{Timeout: 5 * time.Second}), 3, 50*time.Millisecond, logrus.New())

	worker.healOne(context.Background(), "file-lost_chunk_00000")

	got, err := manifests.Load("file-lost")
	require.NoError(t, err)
	require.Empty(t, got.Chunks[0].NodeIDs)
}

func TestHealOneAlreadyHealthyIsNoop(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	manifests, err := manifest.NewStore(t.TempDir(), key, 4096)
	require.NoError(t, err)
	m := &manifest.Manifest{
		FileID: "file-ok",
		Chunks: []manifest.ChunkDescriptor{
			{ChunkID: "file-ok_chunk_00000", NodeIDs: []string{"n1", "n2", "n3"}},
		},
	}
	require.NoError(t, manifests.Save(m.FileID, m))

	reg := registry.New(30*time.Second, nil)
	queue := coordinator.NewHealQueue()
	worker := NewWorker(queue, reg, manifests, node.NewClient(&http.Client{Timeout: 5 * time.Second}), 3, 50*time.Millisecond, logrus.New())

	worker.healOne(context.Background(), "file-ok_chunk_00000")

	got, err := manifests.Load("file-ok")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"n1", "n2", "n3"}, got.Chunks[0].NodeIDs)
}

func TestMarkDeadEnqueuesUnderReplicatedChunks(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	manifests, err := manifest.NewStore(t.TempDir(), key, 4096)
	require.NoError(t, err)
	m := &manifest.Manifest{
		FileID: "file-death",
		Chunks: []manifest.ChunkDescriptor{
			{ChunkID: "c0", NodeIDs: []string{"n1", "n2", "n3"}},
		},
	}
	require.NoError(t, manifests.Save(m.FileID, m))

	queue := coordinator.NewHealQueue()
	sink := &fakeAuditSink{}
	handler := &DeathHandler{Manifests: manifests, Queue: queue, Redundancy: 3, Logger: logrus.New(), Audit: sink}

	handler.MarkDead("n2")

	got, err := manifests.Load("file-death")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"n1", "n3"}, got.Chunks[0].NodeIDs)
	require.Equal(t, 1, queue.Len())

	require.Len(t, sink.events, 1)
	require.Equal(t, "node_died", sink.events[0].EventType)
	require.Equal(t, "n2", sink.events[0].NodeID)
}
