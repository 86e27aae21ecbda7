// Package archive writes dead-lettered messages to durable compressed
// storage before the dead-letter queue's retention period purges them.
// Output is zstd-compressed NDJSON, one message per line.
package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"scorepipe/internal/queue"
)

// Entry is one archived dead-letter message.
type Entry struct {
	MessageID  string    `json:"message_id"`
	Body       string    `json:"body"`
	Attempt    int       `json:"attempt,omitempty"`
	ArchivedAt time.Time `json:"archived_at"`
}

// Writer archives batches of queue messages into timestamped .ndjson.zst
// files under a base directory.
type Writer struct {
	dir string
	now func() time.Time
}

// NewWriter creates a Writer rooted at dir, creating the directory if needed.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("archive: failed to create directory %s: %w", dir, err)
	}
	return &Writer{dir: dir, now: time.Now}, nil
}

// Archive writes the messages to a new archive file and returns its path.
// The file is flushed and synced before returning, so a returned nil error
// means the messages are durably captured and safe to acknowledge.
func (w *Writer) Archive(messages []queue.Message) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("archive: no messages to archive")
	}

	name := fmt.Sprintf("dlq-%s.ndjson.zst", w.now().UTC().Format("20060102T150405.000000000"))
	path := filepath.Join(w.dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("archive: failed to create %s: %w", path, err)
	}

	enc, err := zstd.NewWriter(f)
	if err != nil {
		f.Close()
		return "", fmt.Errorf("archive: failed to create zstd writer: %w", err)
	}

	archivedAt := w.now().UTC()
	for _, msg := range messages {
		line, err := json.Marshal(Entry{
			MessageID:  msg.ID,
			Body:       msg.Body,
			Attempt:    msg.Attempt,
			ArchivedAt: archivedAt,
		})
		if err != nil {
			enc.Close()
			f.Close()
			return "", fmt.Errorf("archive: failed to marshal entry %s: %w", msg.ID, err)
		}
		if _, err := enc.Write(append(line, '\n')); err != nil {
			enc.Close()
			f.Close()
			return "", fmt.Errorf("archive: failed to write entry %s: %w", msg.ID, err)
		}
	}

	if err := enc.Close(); err != nil {
		f.Close()
		return "", fmt.Errorf("archive: failed to flush compressor: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return "", fmt.Errorf("archive: failed to sync %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("archive: failed to close %s: %w", path, err)
	}

	return path, nil
}
