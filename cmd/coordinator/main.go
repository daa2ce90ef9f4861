// Command coordinator runs the control plane: node registry, chunk
// placement, manifest store, and the self-healing worker. Grounded on the
// teacher's root main.go, which wired gin, CORS, and its route groups
// directly in main; this command keeps that flat boot-and-serve shape but
// builds the coordinator's own dependency graph instead of the teacher's
// auth/files groups.
package main

import (
	"context"
	"crypto/rand"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"distcoord/internal/api"
	"distcoord/internal/audit"
	"distcoord/internal/config"
	"distcoord/internal/coordinator"
	"distcoord/internal/healer"
	"distcoord/internal/manifest"
	"distcoord/internal/metrics"
	"distcoord/internal/node"
	"distcoord/internal/placement"
	"distcoord/internal/registry"
	"distcoord/internal/retrieval"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("failed to load config")
	}

	manifestDir := filepath.Join(cfg.BaseDir, "manifests")
	scratchDir := filepath.Join(cfg.BaseDir, "scratch")
	if err := os.MkdirAll(scratchDir, 0755); err != nil {
		logger.WithError(err).Fatal("failed to create scratch directory")
	}

	manifestKey := cfg.ManifestKey
	if manifestKey == nil {
		manifestKey = make([]byte, 32)
		if _, err := rand.Read(manifestKey); err != nil {
			logger.WithError(err).Fatal("failed to generate manifest key")
		}
		logger.Warn("MANIFEST_KEY not set: generated an ephemeral key, manifests will be unreadable after restart")
	}

	manifestStore, err := manifest.NewStore(manifestDir, manifestKey, cfg.ManifestChunkSize)
	if err != nil {
		logger.WithError(err).Fatal("failed to open manifest store")
	}

	auditSink := audit.New(cfg.AuditDSN, logger)
	metricsRegistry := metrics.New()

	queue := coordinator.NewHealQueue()
	death := &healer.DeathHandler{
		Manifests:  manifestStore,
		Queue:      queue,
		Redundancy: cfg.ChunkRedundancy,
		Logger:     logger,
		Audit:      auditSink,
	}

	nodeRegistry := registry.New(cfg.HeartbeatTimeout, death.MarkDead)
	nodeRegistry.SetSweepEvictionsHook(func(count int) {
		metricsRegistry.SweepEvictionsTotal.Add(float64(count))
	})
	nodeClient := node.NewClient(&http.Client{Timeout: cfg.NodeRequestTimeout})

	placementEngine := &placement.Engine{
		Registry:   nodeRegistry,
		Manifests:  manifestStore,
		NodeClient: nodeClient,
		ChunkSize:  cfg.ChunkSizeBytes,
		Redundancy: cfg.ChunkRedundancy,
		Logger:     logger,
		Metrics:    metricsRegistry,
	}
	retrievalEngine := &retrieval.Engine{
		Registry:   nodeRegistry,
		Manifests:  manifestStore,
		NodeClient: nodeClient,
		Logger:     logger,
	}
	healWorker := healer.NewWorker(queue, nodeRegistry, manifestStore, nodeClient, cfg.ChunkRedundancy, cfg.HealIdleSleep, logger)
	healWorker.Audit = auditSink
	healWorker.Metrics = metricsRegistry

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	go healWorker.Run(ctx)
	go reportLiveNodes(ctx, nodeRegistry, queue, metricsRegistry)

	server := &api.Server{
		Registry:   nodeRegistry,
		Manifests:  manifestStore,
		Placement:  placementEngine,
		Retrieval:  retrievalEngine,
		Healer:     healWorker,
		Queue:      queue,
		ChunkMap:   coordinator.NewChunkMap(),
		Metrics:    metricsRegistry,
		Audit:      auditSink,
		Logger:     logger,
		ScratchDir: scratchDir,
	}

	logger.WithField("port", cfg.Port).Info("coordinator listening")
	if err := server.Router().Run("0.0.0.0:" + cfg.Port); err != nil {
		logger.WithError(err).Fatal("server error")
	}
}

// reportLiveNodes keeps the live-node and queue-depth gauges fresh for
// scrapers between request-driven updates.
func reportLiveNodes(ctx context.Context, reg *registry.Registry, queue *coordinator.HealQueue, m *metrics.Metrics) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.LiveNodes.Set(float64(reg.Count()))
			m.HealingQueueDepth.Set(float64(queue.Len()))
		}
	}
}
