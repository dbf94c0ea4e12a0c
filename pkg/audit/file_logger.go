package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// FileLogger writes records as newline-delimited JSON with size-based
// rotation.
type FileLogger struct {
	basePath string
	file     *os.File
	mu       sync.Mutex
	encoder  *json.Encoder
	rotate   bool
	maxSize  int64
	maxFiles int
}

// FileLoggerConfig configures the file logger.
type FileLoggerConfig struct {
	BasePath string // Directory for audit logs
	Rotate   bool   // Enable size-based rotation
	MaxSize  int64  // Max file size in bytes before rotation (default 100MB)
	MaxFiles int    // Max number of rotated files to keep (default 10)
}

// DefaultFileLoggerConfig returns the shipped defaults.
func DefaultFileLoggerConfig() FileLoggerConfig {
	return FileLoggerConfig{
		BasePath: "/var/log/caregate/audit",
		Rotate:   true,
		MaxSize:  100 * 1024 * 1024,
		MaxFiles: 10,
	}
}

// NewFileLogger creates a file-based audit logger, creating the directory if
// needed.
func NewFileLogger(config FileLoggerConfig) (*FileLogger, error) {
	if err := os.MkdirAll(config.BasePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	logger := &FileLogger{
		basePath: config.BasePath,
		rotate:   config.Rotate,
		maxSize:  config.MaxSize,
		maxFiles: config.MaxFiles,
	}
	if logger.maxSize == 0 {
		logger.maxSize = 100 * 1024 * 1024
	}
	if logger.maxFiles == 0 {
		logger.maxFiles = 10
	}

	if err := logger.openLogFile(); err != nil {
		return nil, err
	}
	return logger, nil
}

func (l *FileLogger) currentFile() string {
	return filepath.Join(l.basePath, "audit.log")
}

func (l *FileLogger) openLogFile() error {
	filename := l.currentFile()

	if l.rotate {
		if info, err := os.Stat(filename); err == nil && info.Size() >= l.maxSize {
			if err := l.rotateFile(); err != nil {
				return fmt.Errorf("failed to rotate audit log: %w", err)
			}
		}
	}

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit log file: %w", err)
	}

	l.file = file
	l.encoder = json.NewEncoder(file)
	return nil
}

func (l *FileLogger) rotateFile() error {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}

	timestamp := time.Now().Format("2006-01-02-15-04-05")
	rotated := filepath.Join(l.basePath, fmt.Sprintf("audit-%s.log", timestamp))
	if err := os.Rename(l.currentFile(), rotated); err != nil {
		return fmt.Errorf("failed to rename audit log: %w", err)
	}

	if err := l.cleanupOldFiles(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to cleanup old audit logs: %v\n", err)
	}
	return nil
}

// cleanupOldFiles removes rotated files beyond maxFiles. Rotated filenames
// embed their timestamp, so lexical order is chronological order.
func (l *FileLogger) cleanupOldFiles() error {
	files, err := filepath.Glob(filepath.Join(l.basePath, "audit-*.log"))
	if err != nil {
		return err
	}
	if len(files) <= l.maxFiles {
		return nil
	}
	sort.Strings(files)
	for _, file := range files[:len(files)-l.maxFiles] {
		if err := os.Remove(file); err != nil {
			fmt.Fprintf(os.Stderr, "failed to remove old audit log %s: %v\n", file, err)
		}
	}
	return nil
}

// Log appends one record to the current file, rotating first if it has grown
// past the size limit.
func (l *FileLogger) Log(ctx context.Context, rec *Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.rotate && l.file != nil {
		if info, err := l.file.Stat(); err == nil && info.Size() >= l.maxSize {
			if err := l.openLogFile(); err != nil {
				return fmt.Errorf("failed to rotate audit log: %w", err)
			}
		}
	}

	if err := l.encoder.Encode(rec); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// Purge deletes rotated files whose embedded timestamp is older than the
// retention window. The active audit.log is never purged.
func (l *FileLogger) Purge(ctx context.Context, policy RetentionPolicy) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -policy.RetentionDays)

	l.mu.Lock()
	defer l.mu.Unlock()

	files, err := filepath.Glob(filepath.Join(l.basePath, "audit-*.log"))
	if err != nil {
		return 0, err
	}

	var removed int64
	for _, file := range files {
		base := filepath.Base(file)
		stamp, err := time.Parse("2006-01-02-15-04-05", base[len("audit-"):len(base)-len(".log")])
		if err != nil {
			continue
		}
		if stamp.Before(cutoff) {
			if err := os.Remove(file); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

// Close closes the current file.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// ReadRecords reads up to count records from the current file. A count of 0
// reads everything.
func (l *FileLogger) ReadRecords(count int) ([]*Record, error) {
	file, err := os.Open(l.currentFile())
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer file.Close()

	var records []*Record
	decoder := json.NewDecoder(file)
	for {
		var rec Record
		if err := decoder.Decode(&rec); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("failed to decode audit log entry: %w", err)
		}
		records = append(records, &rec)
		if count > 0 && len(records) >= count {
			break
		}
	}
	return records, nil
}
