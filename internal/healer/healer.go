// Package healer implements the self-healing background worker: drain the
// healing queue, restore each chunk's replica count from a live donor.
// Grounded on the teacher's single-package-level-state idiom (auth.Sessions
// as a shared mutable map any handler can touch) generalized into an
// explicit worker goroutine with a wake-up channel, so POST /heal_now never
// spawns a second worker.
package healer

import (
	"context"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"distcoord/internal/audit"
	"distcoord/internal/coordinator"
	"distcoord/internal/manifest"
	"distcoord/internal/metrics"
	"distcoord/internal/node"
	"distcoord/internal/registry"
)

// Worker drains the healing queue, one chunk at a time, restoring
// redundancy from a live donor.
type Worker struct {
	Queue      *coordinator.HealQueue
	Registry   *registry.Registry
	Manifests  *manifest.Store
	NodeClient *node.Client
	Redundancy int
	IdleSleep  time.Duration
	Logger     *logrus.Logger

	// Audit and Metrics are both optional; nil is treated as "record
	// nothing" so callers that construct a Worker directly (tests) don't
	// need to wire either.
	Audit   audit.Sink
	Metrics *metrics.Metrics

	wake chan struct{}
}

// NewWorker returns a Worker ready to Run in a background goroutine.
func NewWorker(queue *coordinator.HealQueue, reg *registry.Registry, manifests *manifest.Store, client *node.Client, redundancy int, idleSleep time.Duration, logger *logrus.Logger) *Worker {
	return &Worker{
		Queue:      queue,
		Registry:   reg,
		Manifests:  manifests,
		NodeClient: client,
		Redundancy: redundancy,
		IdleSleep:  idleSleep,
		Logger:     logger,
		wake:       make(chan struct{}, 1),
	}
}

// Wake nudges an idle worker to re-check the queue immediately. It is safe
// to call from any goroutine and never spawns a second worker; POST
// /heal_now should call this rather than starting a new Run.
func (w *Worker) Wake() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Run drains the queue until ctx is cancelled. It is meant to be started
// exactly once at coordinator boot.
func (w *Worker) Run(ctx context.Context) {
	for {
		chunkID, ok := w.Queue.Dequeue()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-w.wake:
				continue
			case <-time.After(w.IdleSleep):
				continue
			}
		}
		w.healOne(ctx, chunkID)
	}
}

func (w *Worker) healOne(ctx context.Context, chunkID string) {
	fileID, m, idx, err := w.locateManifest(chunkID)
	if err != nil {
		w.Logger.WithField("chunk_id", chunkID).Warn("heal: parent manifest not found, dropping")
		w.recordHealAttempt("", chunkID, false)
		return
	}

	desc := &m.Chunks[idx]
	needed := w.Redundancy - len(desc.NodeIDs)
	if needed <= 0 {
		return
	}
	if len(desc.NodeIDs) == 0 {
		w.Logger.WithField("chunk_id", chunkID).Error("heal: chunk unhealable, no donor exists")
		w.recordHealAttempt(fileID, chunkID, false)
		return
	}

	live := w.Registry.Snapshot()
	candidates := candidatesExcluding(live, desc.NodeIDs)
	rand.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })

	changed := false
	for _, candidate := range candidates {
		if needed <= 0 {
			break
		}
		donorID := desc.NodeIDs[rand.Intn(len(desc.NodeIDs))]
		donor, ok := w.Registry.Get(donorID)
		if !ok {
			continue
		}

		ciphertext, err := w.NodeClient.GetChunk(ctx, donor.Endpoint(), chunkID)
		if err != nil {
			w.Logger.WithError(err).WithFields(logrus.Fields{"chunk_id": chunkID, "donor": donorID}).Warn("heal: donor fetch failed")
			continue
		}
		if err := w.NodeClient.StoreChunk(ctx, candidate.Endpoint(), chunkID, ciphertext); err != nil {
			w.Logger.WithError(err).WithFields(logrus.Fields{"chunk_id": chunkID, "candidate": candidate.NodeID}).Warn("heal: candidate store failed")
			continue
		}

		desc.NodeIDs = append(desc.NodeIDs, candidate.NodeID)
		needed--
		changed = true
	}

	if changed {
		if err := w.Manifests.Save(fileID, m); err != nil {
			w.Logger.WithError(err).WithField("file_id", fileID).Error("heal: failed to persist healed manifest")
		}
	}
	w.recordHealAttempt(fileID, chunkID, changed)
}

// recordHealAttempt writes the heal attempt to the audit trail and the
// heal-attempts-by-outcome counter. Both are optional; a nil Audit or
// Metrics means "record nothing".
func (w *Worker) recordHealAttempt(fileID, chunkID string, succeeded bool) {
	outcome := "failure"
	eventType := "heal_failed"
	if succeeded {
		outcome = "success"
		eventType = "healed"
	}
	if w.Audit != nil {
		w.Audit.Record(audit.Event{FileID: fileID, ChunkID: chunkID, EventType: eventType})
	}
	if w.Metrics != nil {
		w.Metrics.HealAttemptsTotal.WithLabelValues(outcome).Inc()
	}
}

// locateManifest scans manifests for the one containing chunkID. Chunk
// ids are namespaced by file_id at mint time, so in practice the first
// match is the only match; this still honors the specification's
// first-match-wins contract for any id minted before namespacing existed.
func (w *Worker) locateManifest(chunkID string) (fileID string, m *manifest.Manifest, chunkIdx int, err error) {
	ids, err := w.Manifests.List()
	if err != nil {
		return "", nil, 0, err
	}
	for _, id := range ids {
		candidate, err := w.Manifests.Load(id)
		if err != nil {
			continue
		}
		for i, desc := range candidate.Chunks {
			if desc.ChunkID == chunkID {
				return id, candidate, i, nil
			}
		}
	}
	return "", nil, 0, coordinator.ErrUnhealable
}

func candidatesExcluding(live []registry.Node, exclude []string) []registry.Node {
	excluded := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		excluded[id] = struct{}{}
	}
	var out []registry.Node
	for _, n := range live {
		if _, skip := excluded[n.NodeID]; !skip {
			out = append(out, n)
		}
	}
	return out
}
