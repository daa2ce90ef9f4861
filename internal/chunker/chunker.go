// Package chunker cuts a file into fixed-size ordinal-named pieces and
// reassembles them in order. Adapted from the teacher's part-file naming
// idiom in storage/stateless_chunk.go (%08d.part), generalized to the
// split/join contract named in the specification.
package chunker

import (
	"fmt"
	"io"
	"os"
)

// Chunk is one ordinal slice of a split file.
type Chunk struct {
	ID    string
	Bytes []byte
}

// IDFor returns the zero-padded ordinal chunk id for index i, namespaced
// under namespace (typically a file_id) so chunk ids never collide across
// files at a node's blob store.
func IDFor(namespace string, index int) string {
	if namespace == "" {
		return fmt.Sprintf("chunk_%05d", index)
	}
	return fmt.Sprintf("%s_chunk_%05d", namespace, index)
}

// Split reads path sequentially into buffers of exactly chunkSize bytes,
// except for a possibly-shorter final buffer, and names each by ordinal
// under namespace. An empty input produces zero chunks.
func Split(path, namespace string, chunkSize int) ([]Chunk, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunker: chunk size must be positive, got %d", chunkSize)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var chunks []Chunk
	buf := make([]byte, chunkSize)
	index := 0
	for {
		n, err := io.ReadFull(f, buf)
		if n > 0 {
			b := make([]byte, n)
			copy(b, buf[:n])
			chunks = append(chunks, Chunk{ID: IDFor(namespace, index), Bytes: b})
			index++
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return chunks, nil
}

// Join concatenates ordered chunk payloads into w. Joining zero chunks
// writes nothing, yielding an empty output.
func Join(w io.Writer, chunks [][]byte) error {
	for _, c := range chunks {
		if _, err := w.Write(c); err != nil {
			return err
		}
	}
	return nil
}
