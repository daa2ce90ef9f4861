package api

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"distcoord/internal/audit"
	"distcoord/internal/coordinator"
)

// handleUpload implements POST /upload_file: multipart "file" -> placement
// engine -> persisted manifest. Grounded on the teacher's UploadHandler
// (handlers/handlers.go), which staged the multipart file before
// encrypting it; here the staging directory is scratch, removed on every
// exit path per the specification's resource policy.
func (s *Server) handleUpload(c *gin.Context) {
	start := time.Now()
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file uploaded"})
		return
	}

	stagingName := "upload_" + uuid.New().String()
	stagingDir, cleanup, err := s.scratchDirFor(filepath.Join("temp_uploads", stagingName))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to stage upload"})
		return
	}
	defer cleanup()

	stagingPath := filepath.Join(stagingDir, fh.Filename)
	if err := c.SaveUploadedFile(fh, stagingPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to stage upload"})
		return
	}

	fileID, chunksStored, err := s.Placement.Upload(c.Request.Context(), stagingPath, fh.Filename)
	s.Metrics.UploadDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, coordinator.ErrNoNodesOnline) {
			s.Metrics.UploadsTotal.WithLabelValues("no_nodes").Inc()
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "No nodes online"})
			return
		}
		s.Metrics.UploadsTotal.WithLabelValues("error").Inc()
		s.Logger.WithError(err).Error("upload failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}

	s.Metrics.UploadsTotal.WithLabelValues("success").Inc()
	s.Audit.Record(audit.Event{FileID: fileID, EventType: "placed"})
	c.JSON(http.StatusOK, gin.H{"file_id": fileID, "chunks_stored": chunksStored})
}

// handleDownload implements GET /download_file/{file_id}: retrieval
// engine -> scratch file -> streamed response. Grounded on the teacher's
// DownloadHandler pipe-streaming idiom.
func (s *Server) handleDownload(c *gin.Context) {
	start := time.Now()
	fileID := c.Param("file_id")

	scratchDir, cleanup, err := s.scratchDirFor(filepath.Join("temp_chunks", fileID))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to prepare scratch space"})
		return
	}
	defer cleanup()

	outPath := filepath.Join(scratchDir, "assembled.bin")
	out, err := os.Create(outPath)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to stage download"})
		return
	}

	originalFilename, err := s.Retrieval.Download(c.Request.Context(), fileID, out)
	out.Close()
	s.Metrics.DownloadDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		status := coordinator.StatusFor(err)
		outcome := "error"
		switch status {
		case http.StatusNotFound:
			outcome = "not_found"
		case http.StatusBadGateway:
			outcome = "unavailable"
		}
		s.Metrics.DownloadsTotal.WithLabelValues(outcome).Inc()
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	s.Metrics.DownloadsTotal.WithLabelValues("success").Inc()
	s.Audit.Record(audit.Event{FileID: fileID, EventType: "retrieved"})
	c.FileAttachment(outPath, originalFilename)
}

// handleManifest implements GET /manifest/{file_id}. The per-file data
// key is returned in plaintext: acceptable only on a trusted control
// channel, since the manifest itself is encrypted at rest precisely to
// protect this key, not to hide it from the operator retrieving it here.
func (s *Server) handleManifest(c *gin.Context) {
	fileID := c.Param("file_id")
	m, err := s.Manifests.Load(fileID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "manifest not found"})
		return
	}
	c.JSON(http.StatusOK, m)
}

func (s *Server) handleHealNow(c *gin.Context) {
	s.Healer.Wake()
	c.JSON(http.StatusOK, gin.H{"status": "Healing started in background"})
}
