package cleanup

import (
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"time"
)

// Scheduler retires old exported documents. Exports are meant to be picked up
// by the user shortly after extraction; anything past the retention window is
// stale and gets swept.
type Scheduler struct {
	outputDir string
	interval  time.Duration
	retention time.Duration
	stopChan  chan struct{}
}

// NewScheduler creates a retention sweeper over outputDir.
func NewScheduler(outputDir string, intervalMinutes, retentionDays int) *Scheduler {
	return &Scheduler{
		outputDir: outputDir,
		interval:  time.Duration(intervalMinutes) * time.Minute,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		stopChan:  make(chan struct{}),
	}
}

// Start runs one sweep immediately, then sweeps on the configured interval.
func (s *Scheduler) Start() {
	log.Println("Running initial export cleanup...")
	s.sweep()

	ticker := time.NewTicker(s.interval)

	go func() {
		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.stopChan:
				ticker.Stop()
				return
			}
		}
	}()

	log.Printf("Cleanup scheduler started (interval: %s, retention: %s)",
		s.interval, s.retention)
}

// Stop halts the scheduler.
func (s *Scheduler) Stop() {
	close(s.stopChan)
	log.Println("Cleanup scheduler stopped")
}

// sweep removes exports older than the retention window and prunes the date
// directories they leave empty.
func (s *Scheduler) sweep() {
	now := time.Now()

	var deletedCount int
	var deletedSize int64
	var dirs []string

	err := filepath.WalkDir(s.outputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Skip entries we can't access
		}

		if d.IsDir() {
			if path != s.outputDir {
				dirs = append(dirs, path)
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		age := now.Sub(info.ModTime())
		if age > s.retention {
			size := info.Size()
			if err := os.Remove(path); err != nil {
				log.Printf("Failed to delete old export %s: %v", path, err)
			} else {
				deletedCount++
				deletedSize += size
				log.Printf("Deleted old export: %s (age: %s)",
					filepath.Base(path), age.Round(time.Hour))
			}
		}

		return nil
	})

	if err != nil {
		log.Printf("Error during cleanup: %v", err)
	}

	// Deepest directories first so emptied day/month trees collapse upward.
	for i := len(dirs) - 1; i >= 0; i-- {
		if entries, err := os.ReadDir(dirs[i]); err == nil && len(entries) == 0 {
			os.Remove(dirs[i])
		}
	}

	if deletedCount > 0 {
		log.Printf("Cleanup complete: %d exports deleted, %.2fMB freed",
			deletedCount, float64(deletedSize)/(1024*1024))
	}
}

// EnsureOutputDirExists creates the export directory if it doesn't exist.
func EnsureOutputDirExists(outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}
	log.Printf("Export directory ready: %s", outputDir)
	return nil
}
