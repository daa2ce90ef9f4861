package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type registerRequest struct {
	NodeID           string `json:"node_id" binding:"required"`
	IP               string `json:"ip" binding:"required"`
	Port             int    `json:"port" binding:"required"`
	StorageAvailable int64  `json:"storage_available"`
}

func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.Registry.Register(req.NodeID, req.IP, req.Port, req.StorageAvailable)
	s.Metrics.NodeRegistrationsTotal.Inc()
	s.Logger.WithField("node_id", req.NodeID).Info("node registered")
	c.JSON(http.StatusOK, gin.H{"status": "registered"})
}

type heartbeatRequest struct {
	NodeID string `json:"node_id" binding:"required"`
}

func (s *Server) handleHeartbeat(c *gin.Context) {
	var req heartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.Metrics.HeartbeatsTotal.Inc()
	if err := s.Registry.Heartbeat(req.NodeID, time.Now()); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown node"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) handleNodes(c *gin.Context) {
	live := s.Registry.Snapshot()
	out := make(map[string]gin.H, len(live))
	for _, n := range live {
		out[n.NodeID] = gin.H{
			"host":              n.Host,
			"port":              n.Port,
			"storage_available": n.StorageAvailable,
			"last_seen":         n.LastSeen.Unix(),
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleStatus(c *gin.Context) {
	live := s.Registry.Snapshot()
	ids, err := s.Manifests.List()
	manifestErrors := 0
	totalChunks := 0
	totalFailedChunks := 0
	filesWithFailedChunks := make([]string, 0)
	if err != nil {
		manifestErrors++
		ids = nil
	}
	for _, id := range ids {
		m, err := s.Manifests.Load(id)
		if err != nil {
			manifestErrors++
			continue
		}
		totalChunks += len(m.Chunks)
		if len(m.FailedChunks) > 0 {
			totalFailedChunks += len(m.FailedChunks)
			filesWithFailedChunks = append(filesWithFailedChunks, id)
		}
	}

	registeredNodes := make([]string, 0, len(live))
	for _, n := range live {
		registeredNodes = append(registeredNodes, n.NodeID)
	}

	c.JSON(http.StatusOK, gin.H{
		"node_count":               len(live),
		"registered_nodes":         registeredNodes,
		"file_count":               len(ids),
		"files":                    ids,
		"total_chunks":             totalChunks,
		"manifest_errors":          manifestErrors,
		"failed_chunks":            totalFailedChunks,
		"files_with_failed_chunks": filesWithFailedChunks,
	})
}

func (s *Server) handleKeys(c *gin.Context) {
	ids, err := s.Manifests.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enumerate manifests"})
		return
	}
	count := 0
	for _, id := range ids {
		if m, err := s.Manifests.Load(id); err == nil && m.EncryptionKey != "" {
			count++
		}
	}
	c.JSON(http.StatusOK, gin.H{"stored_keys": count})
}
