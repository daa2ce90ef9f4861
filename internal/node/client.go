// Package node is the client side of the storage-node wire contract
// (POST /store_chunk, GET /chunk/{chunk_id}), grounded on the Python
// prototype's node_server.py. The coordinator's placement, retrieval, and
// healer packages all share this client rather than building HTTP
// requests inline, the way the teacher centralizes the AEAD framing in
// storage/storage.go instead of duplicating it per handler.
package node

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

// Client talks to a single storage node's HTTP surface.
type Client struct {
	httpClient *http.Client
}

// NewClient returns a Client that sends its requests through httpClient, so
// outbound calls are bounded by that client's timeout.
func NewClient(httpClient *http.Client) *Client {
	return &Client{httpClient: httpClient}
}

// StoreChunk POSTs ciphertext to endpoint's /store_chunk under chunkID.
// It reports success only on HTTP 200/201.
func (c *Client) StoreChunk(ctx context.Context, endpoint, chunkID string, ciphertext []byte) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("chunk_id", chunkID); err != nil {
		return err
	}
	part, err := writer.CreateFormFile("chunk", chunkID)
	if err != nil {
		return err
	}
	if _, err := part.Write(ciphertext); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/store_chunk", &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("node: store_chunk returned %d", resp.StatusCode)
	}
	return nil
}

// GetChunk fetches chunkID's raw ciphertext from endpoint.
func (c *Client) GetChunk(ctx context.Context, endpoint, chunkID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/chunk/"+chunkID, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("node: get_chunk returned %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
