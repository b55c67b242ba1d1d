// internal/tradelog/journal.go
package tradelog

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Journal appends every recorded trade to a CSV file, flushing periodically.
// It satisfies Store for writes only; Find always returns nothing.
type Journal struct {
	mu     sync.Mutex
	writer *csv.Writer
	file   *os.File
	ticker *time.Ticker
	done   chan struct{}
	logger *zap.Logger
	path   string

	records uint64
	flushes uint64
}

// NewJournal opens path in append mode, writing the header to a new file.
func NewJournal(path string, flushInterval time.Duration, logger *zap.Logger) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat journal: %w", err)
	}

	j := &Journal{
		writer: csv.NewWriter(file),
		file:   file,
		ticker: time.NewTicker(flushInterval),
		done:   make(chan struct{}),
		logger: logger.Named("journal"),
		path:   path,
	}

	if stat.Size() == 0 {
		if err := j.writer.Write(CSVHeaders()); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
		j.writer.Flush()
	}

	go j.periodicFlush()
	return j, nil
}

func (j *Journal) Append(_ context.Context, t Trade) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.writer.Write(t.ToCSV()); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	j.records++
	return nil
}

func (j *Journal) Find(context.Context, Query) ([]Trade, error) {
	return nil, nil
}

// Flush writes buffered records and syncs the file.
func (j *Journal) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.flushLocked()
}

func (j *Journal) flushLocked() error {
	j.writer.Flush()
	if err := j.writer.Error(); err != nil {
		return fmt.Errorf("CSV writer error: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync journal: %w", err)
	}
	j.flushes++
	return nil
}

func (j *Journal) periodicFlush() {
	for {
		select {
		case <-j.ticker.C:
			if err := j.Flush(); err != nil {
				j.logger.Error("Periodic journal flush failed",
					zap.String("file", j.path),
					zap.Error(err))
			}
		case <-j.done:
			return
		}
	}
}

func (j *Journal) Close() error {
	close(j.done)
	j.ticker.Stop()

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.flushLocked(); err != nil {
		j.file.Close()
		return err
	}
	if err := j.file.Close(); err != nil {
		return fmt.Errorf("failed to close journal: %w", err)
	}

	j.logger.Info("Trade journal closed",
		zap.String("file", j.path),
		zap.Uint64("records", j.records),
		zap.Uint64("flushes", j.flushes))
	return nil
}

// Stats returns the number of records written and flushes performed.
func (j *Journal) Stats() (records, flushes uint64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.records, j.flushes
}
