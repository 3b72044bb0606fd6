package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"oraclegate/internal/model"
)

// JsonlAuditLog appends confirmed payment records to a JSONL file.
// It is a secondary trail next to the ledger; write failures must not
// fail verification.
type JsonlAuditLog struct {
	path string
	mu   sync.Mutex
}

func NewJsonlAuditLog(path string) *JsonlAuditLog {
	return &JsonlAuditLog{path: path}
}

// Append writes one payment record as a JSON line.
func (s *JsonlAuditLog) Append(rec *model.PaymentRecord) error {
	if rec == nil {
		return nil
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create audit dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal payment record: %w", err)
	}
	if _, err := writer.Write(line); err != nil {
		return fmt.Errorf("write payment record: %w", err)
	}
	if err := writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush audit file: %w", err)
	}

	return nil
}
