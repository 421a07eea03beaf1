package chaos

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/miradorstack/mirador-chaos/internal/models"
)

// WindowLog is the append-only per-run chaos log: one JSON record per line,
// one owning writer per run. Appends are serialized; records are never
// rewritten.
type WindowLog struct {
	mu   sync.Mutex
	file *os.File
}

// OpenWindowLog opens (or creates) the log file for appending.
func OpenWindowLog(path string) (*WindowLog, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open window log: %w", err)
	}
	return &WindowLog{file: file}, nil
}

// Append writes one window record followed by a newline and syncs it so a
// crash mid-run never loses completed windows.
func (l *WindowLog) Append(record models.ChaosWindow) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal window record: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append window record: %w", err)
	}
	return l.file.Sync()
}

// Close releases the underlying file.
func (l *WindowLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
