package healer

import (
	"errors"

	"github.com/sirupsen/logrus"

	"distcoord/internal/audit"
	"distcoord/internal/manifest"
)

// DeathHandler builds a registry.DeathHandler that implements the
// specification's node-death processing: for every manifest, strip the
// dead node from every chunk's node_ids and enqueue any chunk that falls
// below the redundancy target.
type DeathHandler struct {
	Manifests  *manifest.Store
	Queue      Queue
	Redundancy int
	Logger     *logrus.Logger

	// Audit, if set, receives one "node_died" event per manifest the
	// death touched. Nil means "record nothing".
	Audit audit.Sink
}

// Queue is the subset of coordinator.HealQueue the death handler needs.
type Queue interface {
	Enqueue(chunkID string)
}

// MarkDead implements registry.DeathHandler.
func (d *DeathHandler) MarkDead(nodeID string) {
	ids, err := d.Manifests.List()
	if err != nil {
		d.Logger.WithError(err).Error("mark_dead: failed to list manifests")
		return
	}

	for _, fileID := range ids {
		m, err := d.Manifests.Load(fileID)
		if err != nil {
			if errors.Is(err, manifest.ErrNotFound) {
				continue // benign race with a concurrent delete
			}
			d.Logger.WithError(err).WithField("file_id", fileID).Warn("mark_dead: skipping unreadable manifest")
			continue
		}

		changed := false
		for i := range m.Chunks {
			desc := &m.Chunks[i]
			if !removeNodeID(desc, nodeID) {
				continue
			}
			changed = true
			if len(desc.NodeIDs) < d.Redundancy {
				d.Queue.Enqueue(desc.ChunkID)
			}
		}

		if changed {
			if err := d.Manifests.Save(fileID, m); err != nil {
				d.Logger.WithError(err).WithField("file_id", fileID).Error("mark_dead: failed to persist manifest")
			}
			if d.Audit != nil {
				d.Audit.Record(audit.Event{FileID: fileID, EventType: "node_died", NodeID: nodeID})
			}
		}
	}
}

// removeNodeID removes nodeID from desc.NodeIDs if present, reporting
// whether it made a change.
func removeNodeID(desc *manifest.ChunkDescriptor, nodeID string) bool {
	for i, id := range desc.NodeIDs {
		if id == nodeID {
			desc.NodeIDs = append(desc.NodeIDs[:i], desc.NodeIDs[i+1:]...)
			return true
		}
	}
	return false
}
