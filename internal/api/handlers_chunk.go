package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleChunkLookup(c *gin.Context) {
	chunkID := c.Param("chunk_id")
	nodes, ok := s.ChunkMap.Lookup(chunkID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "chunk not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"nodes": nodes})
}

type chunkAssignRequest struct {
	ChunkID string `json:"chunk_id" binding:"required"`
	NodeID  string `json:"node_id" binding:"required"`
}

func (s *Server) handleChunkAssign(c *gin.Context) {
	var req chunkAssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.ChunkMap.Assign(req.ChunkID, req.NodeID)
	c.JSON(http.StatusOK, gin.H{"status": "chunk assigned"})
}
