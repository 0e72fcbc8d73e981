package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/deusflow/impactdigest/internal/logger"
)

// historyFile is the on-disk JSON layout. IDs are ordered oldest first.
type historyFile struct {
	IDs       []string  `json:"ids"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FileStore keeps the history in a JSON file.
type FileStore struct {
	filePath string
	capacity int
}

// NewFileStore creates a new file store instance
func NewFileStore(filePath string, capacity int) *FileStore {
	return &FileStore{
		filePath: filePath,
		capacity: capacity,
	}
}

// Load reads the history. A missing, empty or corrupt file yields an empty
// history; only unexpected I/O errors are returned.
func (fs *FileStore) Load(ctx context.Context) (*History, error) {
	data, err := os.ReadFile(fs.filePath)
	if errors.Is(err, os.ErrNotExist) {
		logger.Info("History file not found, starting empty", "path", fs.filePath)
		return NewHistory(fs.capacity), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history file: %w", err)
	}
	if len(data) == 0 {
		return NewHistory(fs.capacity), nil
	}

	ids, err := decodeHistory(data)
	if err != nil {
		logger.Warn("History file is corrupt, starting empty", "path", fs.filePath, "error", err)
		return NewHistory(fs.capacity), nil
	}

	h := NewHistoryFrom(fs.capacity, ids)
	logger.Debug("History loaded", "path", fs.filePath, "entries", h.Len())
	return h, nil
}

// decodeHistory accepts the current object layout and a bare JSON array
// of identifiers.
func decodeHistory(data []byte) ([]string, error) {
	var hf historyFile
	if err := json.Unmarshal(data, &hf); err == nil {
		return hf.IDs, nil
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// Save writes the history atomically (temp file + rename).
func (fs *FileStore) Save(ctx context.Context, h *History) error {
	data, err := json.MarshalIndent(historyFile{IDs: h.IDs(), UpdatedAt: time.Now().UTC()}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	dir := filepath.Dir(fs.filePath)
	tmp, err := os.CreateTemp(dir, ".history-*.json")
	if err != nil {
		return fmt.Errorf("create temp history file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write history file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close history file: %w", err)
	}
	if err := os.Rename(tmpName, fs.filePath); err != nil {
		return fmt.Errorf("replace history file: %w", err)
	}

	logger.Debug("History saved", "path", fs.filePath, "entries", h.Len())
	return nil
}
