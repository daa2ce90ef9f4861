package node

import (
	"net/http"
	"os"
	"path/filepath"
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// chunkIDPattern guards the blob store against path traversal via a
// crafted chunk_id; node_server.py trusted request.form blindly.
var chunkIDPattern = regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)

// Server is a trivial blob server: it exposes store_chunk/get_chunk over
// HTTP and keeps no state beyond the chunk folder on disk. Grounded on
// node_server.py's Flask routes of the same name.
type Server struct {
	NodeID      string
	ChunkFolder string
	Logger      *logrus.Logger
}

// NewServer ensures ChunkFolder exists and returns a ready Server.
func NewServer(nodeID, chunkFolder string, logger *logrus.Logger) (*Server, error) {
	if err := os.MkdirAll(chunkFolder, 0755); err != nil {
		return nil, err
	}
	return &Server{NodeID: nodeID, ChunkFolder: chunkFolder, Logger: logger}, nil
}

// Router builds the gin engine exposing this node's wire contract.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.POST("/store_chunk", s.handleStoreChunk)
	r.GET("/chunk/:chunk_id", s.handleGetChunk)
	return r
}

func (s *Server) chunkPath(chunkID string) string {
	return filepath.Join(s.ChunkFolder, chunkID)
}

func (s *Server) handleStoreChunk(c *gin.Context) {
	chunkID := c.PostForm("chunk_id")
	if chunkID == "" || !chunkIDPattern.MatchString(chunkID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid chunk_id"})
		return
	}
	fh, err := c.FormFile("chunk")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing chunk"})
		return
	}

	if err := c.SaveUploadedFile(fh, s.chunkPath(chunkID)); err != nil {
		s.Logger.WithError(err).WithField("chunk_id", chunkID).Error("failed to store chunk")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store failed"})
		return
	}

	s.Logger.WithFields(logrus.Fields{"node": s.NodeID, "chunk_id": chunkID}).Info("stored chunk")
	c.JSON(http.StatusOK, gin.H{"status": "chunk stored", "node": s.NodeID, "chunk_id": chunkID})
}

func (s *Server) handleGetChunk(c *gin.Context) {
	chunkID := c.Param("chunk_id")
	if !chunkIDPattern.MatchString(chunkID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chunk_id"})
		return
	}
	path := s.chunkPath(chunkID)
	if _, err := os.Stat(path); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "chunk not found"})
		return
	}

	s.Logger.WithFields(logrus.Fields{"node": s.NodeID, "chunk_id": chunkID}).Info("served chunk")
	c.File(path)
}
