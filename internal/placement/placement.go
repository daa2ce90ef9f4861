// Package placement implements the upload fan-out path: split, encrypt,
// replicate, and persist. Grounded on the teacher's UploadHandler
// (handlers/handlers.go), generalized from a single-destination encrypted
// write into an N-way replicated fan-out against node_server.py's
// /store_chunk contract.
package placement

import (
	"context"
	"encoding/base64"
	"fmt"
	"math/rand"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"distcoord/internal/chunker"
	"distcoord/internal/coordinator"
	"distcoord/internal/crypto"
	"distcoord/internal/manifest"
	"distcoord/internal/metrics"
	"distcoord/internal/node"
	"distcoord/internal/registry"
)

// Engine places newly-uploaded files across the live node fleet.
type Engine struct {
	Registry   *registry.Registry
	Manifests  *manifest.Store
	NodeClient *node.Client
	ChunkSize  int
	Redundancy int
	Logger     *logrus.Logger

	// Metrics, if set, receives a per-target placement counter.
	Metrics *metrics.Metrics
}

// NewFileID mints a file_id per the specification: "file-" followed by
// the first six hex characters of a fresh random UUID.
func NewFileID() string {
	return "file-" + uuid.New().String()[:6]
}

// Upload splits path into chunks, replicates each across live nodes, and
// persists the resulting manifest. It returns the new file_id and the
// number of chunks successfully placed with at least one replica.
func (e *Engine) Upload(ctx context.Context, path, originalFilename string) (fileID string, chunksStored int, err error) {
	live := e.Registry.Snapshot()
	if len(live) == 0 {
		return "", 0, coordinator.ErrNoNodesOnline
	}

	fileID = NewFileID()

	dataKey, err := crypto.GenerateKey()
	if err != nil {
		return "", 0, fmt.Errorf("placement: generate key: %w", err)
	}

	chunks, err := chunker.Split(path, fileID, e.ChunkSize)
	if err != nil {
		return "", 0, fmt.Errorf("placement: split: %w", err)
	}

	m := &manifest.Manifest{
		FileID:           fileID,
		OriginalFilename: originalFilename,
		EncryptionKey:    base64.StdEncoding.EncodeToString(dataKey),
	}

	for _, chunk := range chunks {
		ciphertext, err := crypto.Encrypt(dataKey, chunk.Bytes)
		if err != nil {
			return "", 0, fmt.Errorf("placement: encrypt chunk %s: %w", chunk.ID, err)
		}

		targets := pickTargets(live, e.Redundancy)
		successful := e.storeOnTargets(ctx, chunk.ID, ciphertext, targets)

		desc := manifest.ChunkDescriptor{ChunkID: chunk.ID, NodeIDs: successful}
		m.Chunks = append(m.Chunks, desc)
		if len(successful) == 0 {
			m.FailedChunks = append(m.FailedChunks, chunk.ID)
			e.Logger.WithField("chunk_id", chunk.ID).Warn("chunk placed on zero nodes, flagged failed")
		} else {
			chunksStored++
		}
	}

	if err := e.Manifests.Save(fileID, m); err != nil {
		return "", 0, fmt.Errorf("placement: save manifest: %w", err)
	}

	return fileID, chunksStored, nil
}

// pickTargets chooses min(redundancy, len(live)) distinct nodes uniformly
// at random without replacement.
func pickTargets(live []registry.Node, redundancy int) []registry.Node {
	n := redundancy
	if n > len(live) {
		n = len(live)
	}
	shuffled := make([]registry.Node, len(live))
	copy(shuffled, live)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	return shuffled[:n]
}

// storeOnTargets POSTs ciphertext to each target independently and
// returns the node ids that succeeded. A failed POST to one target never
// blocks the others.
func (e *Engine) storeOnTargets(ctx context.Context, chunkID string, ciphertext []byte, targets []registry.Node) []string {
	var (
		mu         sync.Mutex
		successful []string
		wg         sync.WaitGroup
	)
	for _, target := range targets {
		wg.Add(1)
		go func(t registry.Node) {
			defer wg.Done()
			if err := e.NodeClient.StoreChunk(ctx, t.Endpoint(), chunkID, ciphertext); err != nil {
				e.Logger.WithError(err).WithFields(logrus.Fields{
					"chunk_id": chunkID,
					"node_id":  t.NodeID,
				}).Warn("store_chunk failed on target")
				if e.Metrics != nil {
					e.Metrics.ChunkPlacementsTotal.WithLabelValues("failure").Inc()
				}
				return
			}
			if e.Metrics != nil {
				e.Metrics.ChunkPlacementsTotal.WithLabelValues("success").Inc()
			}
			mu.Lock()
			successful = append(successful, t.NodeID)
			mu.Unlock()
		}(target)
	}
	wg.Wait()
	return successful
}
