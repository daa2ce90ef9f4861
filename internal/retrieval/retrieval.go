// Package retrieval implements the download fan-in path: for each manifest
// chunk, pull from the first reachable, decryptable replica, in manifest
// order, and hand the result to the joiner. Grounded on the teacher's
// DownloadHandler (handlers/handlers.go), which streamed decrypted bytes
// to the client through an io.Pipe; this package fans in across replicas
// instead, and does not stream: every chunk is fetched and decrypted into
// memory first, and only then are they joined into the writer.
package retrieval

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"distcoord/internal/chunker"
	"distcoord/internal/coordinator"
	"distcoord/internal/crypto"
	"distcoord/internal/manifest"
	"distcoord/internal/node"
	"distcoord/internal/registry"
)

// Engine reconstructs files from their manifests.
type Engine struct {
	Registry   *registry.Registry
	Manifests  *manifest.Store
	NodeClient *node.Client
	Logger     *logrus.Logger
}

// Download reconstructs file_id's byte stream into w, trying replicas in
// manifest order and falling through to the next one on any failure.
func (e *Engine) Download(ctx context.Context, fileID string, w io.Writer) (originalFilename string, err error) {
	m, err := e.Manifests.Load(fileID)
	if err != nil {
		if err == manifest.ErrNotFound {
			return "", coordinator.ErrFileNotFound
		}
		return "", fmt.Errorf("retrieval: load manifest: %w", err)
	}

	if m.EncryptionKey == "" {
		return "", coordinator.ErrKeyMissing
	}
	dataKey, err := base64.StdEncoding.DecodeString(m.EncryptionKey)
	if err != nil {
		return "", coordinator.ErrKeyMissing
	}

	failed := make(map[string]struct{}, len(m.FailedChunks))
	for _, id := range m.FailedChunks {
		failed[id] = struct{}{}
	}

	var payloads [][]byte
	for _, desc := range m.Chunks {
		if _, known := failed[desc.ChunkID]; known {
			e.Logger.WithFields(logrus.Fields{
				"file_id":  fileID,
				"chunk_id": desc.ChunkID,
			}).Warn("download: chunk was never placed on any node at upload time, aborting")
			return "", coordinator.ErrChunkUnavailable
		}
		plain, err := e.fetchOne(ctx, desc, dataKey)
		if err != nil {
			return "", coordinator.ErrChunkUnavailable
		}
		payloads = append(payloads, plain)
	}

	if err := chunker.Join(w, payloads); err != nil {
		return "", fmt.Errorf("retrieval: join: %w", err)
	}
	return m.OriginalFilename, nil
}

// fetchOne tries each recorded replica of desc, in order, returning the
// first one that is live, reachable, and decrypts cleanly. A replica that
// returns tampered bytes is treated the same as an unreachable one.
func (e *Engine) fetchOne(ctx context.Context, desc manifest.ChunkDescriptor, dataKey []byte) ([]byte, error) {
	for _, nodeID := range desc.NodeIDs {
		n, ok := e.Registry.Get(nodeID)
		if !ok {
			continue
		}
		ciphertext, err := e.NodeClient.GetChunk(ctx, n.Endpoint(), desc.ChunkID)
		if err != nil {
			e.Logger.WithError(err).WithFields(logrus.Fields{
				"chunk_id": desc.ChunkID,
				"node_id":  nodeID,
			}).Warn("replica fetch failed, trying next")
			continue
		}
		plain, err := crypto.Decrypt(dataKey, ciphertext)
		if err != nil {
			e.Logger.WithFields(logrus.Fields{
				"chunk_id": desc.ChunkID,
				"node_id":  nodeID,
			}).Warn("replica returned undecryptable bytes, trying next")
			continue
		}
		return plain, nil
	}
	return nil, coordinator.ErrChunkUnavailable
}
