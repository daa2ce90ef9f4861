// Command node runs a single storage node: a blob server exposing
// /store_chunk and /chunk/{id}, plus a background loop that registers with
// the coordinator and heartbeats on an interval. Grounded on the Python
// prototype's node_server.py process model (one flat process per node,
// self-registering against the coordinator at boot).
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"distcoord/internal/node"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	nodeID := envOrDefault("NODE_ID", "node-1")
	port := envOrDefault("PORT", "9000")
	chunkFolder := envOrDefault("CHUNK_FOLDER", "./chunks")
	coordinatorURL := os.Getenv("COORDINATOR_URL")
	advertiseHost := envOrDefault("ADVERTISE_HOST", "localhost")

	srv, err := node.NewServer(nodeID, chunkFolder, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to start node server")
	}

	if coordinatorURL != "" {
		portNum, err := strconv.Atoi(port)
		if err != nil {
			logger.WithError(err).Fatal("invalid PORT")
		}
		go registerAndHeartbeat(coordinatorURL, nodeID, advertiseHost, portNum, logger)
	}

	logger.WithFields(logrus.Fields{"node_id": nodeID, "port": port}).Info("storage node listening")
	if err := srv.Router().Run("0.0.0.0:" + port); err != nil {
		logger.WithError(err).Fatal("server error")
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// registerAndHeartbeat registers this node with the coordinator, then
// heartbeats every 10 seconds until the process exits, registering again
// whenever a heartbeat fails or is rejected.
func registerAndHeartbeat(coordinatorURL, nodeID, host string, port int, logger *logrus.Logger) {
	client := &http.Client{Timeout: 5 * time.Second}

	register := func() error {
		body, _ := json.Marshal(map[string]any{
			"node_id":           nodeID,
			"ip":                host,
			"port":              port,
			"storage_available": 0,
		})
		resp, err := client.Post(coordinatorURL+"/register", "application/json", bytes.NewReader(body))
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		return nil
	}

	heartbeat := func() error {
		body, _ := json.Marshal(map[string]any{"node_id": nodeID})
		resp, err := client.Post(coordinatorURL+"/heartbeat", "application/json", bytes.NewReader(body))
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("heartbeat returned %d", resp.StatusCode)
		}
		return nil
	}

	if err := register(); err != nil {
		logger.WithError(err).Warn("initial registration failed, will retry on next heartbeat tick")
	}

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		if err := heartbeat(); err != nil {
			logger.WithError(err).Warn("heartbeat failed")
			if err := register(); err != nil {
				logger.WithError(err).Warn("re-registration failed")
			}
		}
	}
}
