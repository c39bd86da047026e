package capture

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Journal writes market-data records as JSON lines into date-organized
// files. Writes are async: a full buffer drops the record rather than
// stalling the CDP event loop feeding it.
type Journal struct {
	baseDir   string
	name      string
	maxSizeMB int

	writeCh chan any
	done    chan struct{}
	wg      sync.WaitGroup

	mu          sync.Mutex
	currentDate string
	logger      *lumberjack.Logger
}

func NewJournal(baseDir, name string, bufferSize, maxSizeMB int) *Journal {
	j := &Journal{
		baseDir:   baseDir,
		name:      name,
		maxSizeMB: maxSizeMB,
		writeCh:   make(chan any, bufferSize),
		done:      make(chan struct{}),
	}
	j.wg.Add(1)
	go j.writeLoop()
	return j
}

// Write queues a record. Never blocks.
func (j *Journal) Write(record any) error {
	select {
	case j.writeCh <- record:
		return nil
	case <-j.done:
		return fmt.Errorf("journal is closed")
	default:
		slog.Warn("journal buffer full, dropping record", "name", j.name)
		return fmt.Errorf("buffer full")
	}
}

// Close flushes queued records, bounded by a drain timeout.
func (j *Journal) Close() error {
	close(j.done)

	timeout := time.After(5 * time.Second)
	for {
		select {
		case record := <-j.writeCh:
			j.writeRecord(record)
		case <-timeout:
			slog.Warn("journal close timeout, some records may be lost", "name", j.name)
			goto done
		default:
			goto done
		}
	}

done:
	j.wg.Wait()

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.logger != nil {
		return j.logger.Close()
	}
	return nil
}

func (j *Journal) writeLoop() {
	defer j.wg.Done()
	for {
		select {
		case record := <-j.writeCh:
			j.writeRecord(record)
		case <-j.done:
			return
		}
	}
}

func (j *Journal) writeRecord(record any) {
	data, err := json.Marshal(record)
	if err != nil {
		slog.Error("journal marshal failed", "name", j.name, "error", err)
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	date := time.Now().UTC().Format("2006-01-02")
	if date != j.currentDate || j.logger == nil {
		j.rotateForDate(date)
	}
	if j.logger == nil {
		return
	}
	if _, err := j.logger.Write(append(data, '\n')); err != nil {
		slog.Error("journal write failed", "name", j.name, "error", err)
	}
}

func (j *Journal) rotateForDate(date string) {
	if j.logger != nil {
		j.logger.Close()
	}

	dir := filepath.Join(j.baseDir, date)
	if err := os.MkdirAll(dir, 0755); err != nil {
		slog.Error("journal mkdir failed", "dir", dir, "error", err)
		return
	}

	filename := filepath.Join(dir, j.name+".jsonl")
	j.logger = &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    j.maxSizeMB,
		MaxBackups: 100,
		MaxAge:     30,
		Compress:   false,
		LocalTime:  false,
	}
	j.currentDate = date
	slog.Info("journal opened new file", "file", filename)
}
