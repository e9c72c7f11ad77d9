package cleanup

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Scheduler periodically removes expired EPUB files from the output
// directory. The registry rows stay; only the local artifact goes away.
type Scheduler struct {
	outputDir       string
	intervalMinutes int
	maxAgeHours     int
	stopChan        chan struct{}
}

// NewScheduler creates a cleanup scheduler for the output directory.
func NewScheduler(outputDir string, intervalMinutes, maxAgeHours int) *Scheduler {
	return &Scheduler{
		outputDir:       outputDir,
		intervalMinutes: intervalMinutes,
		maxAgeHours:     maxAgeHours,
		stopChan:        make(chan struct{}),
	}
}

// Start runs one cleanup immediately and then on the configured interval.
func (s *Scheduler) Start() {
	log.Println("Running initial output cleanup...")
	s.cleanExpiredBooks()

	ticker := time.NewTicker(time.Duration(s.intervalMinutes) * time.Minute)

	go func() {
		for {
			select {
			case <-ticker.C:
				s.cleanExpiredBooks()
			case <-s.stopChan:
				ticker.Stop()
				return
			}
		}
	}()

	log.Printf("Cleanup scheduler started (interval: %dm, max age: %dh)",
		s.intervalMinutes, s.maxAgeHours)
}

// Stop stops the cleanup scheduler.
func (s *Scheduler) Stop() {
	close(s.stopChan)
	log.Println("Cleanup scheduler stopped")
}

// cleanExpiredBooks removes .epub files older than maxAgeHours.
func (s *Scheduler) cleanExpiredBooks() {
	now := time.Now()
	maxAge := time.Duration(s.maxAgeHours) * time.Hour

	var deletedCount int
	var deletedSize int64

	err := filepath.Walk(s.outputDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip files we can't access
		}
		if info.IsDir() || !strings.HasSuffix(path, ".epub") {
			return nil
		}

		age := now.Sub(info.ModTime())
		if age > maxAge {
			size := info.Size()
			if err := os.Remove(path); err != nil {
				log.Printf("Failed to delete expired book %s: %v", path, err)
			} else {
				deletedCount++
				deletedSize += size
				log.Printf("Deleted expired book: %s (age: %s, size: %dKB)",
					filepath.Base(path), age.Round(time.Hour), size/1024)
			}
		}

		return nil
	})

	if err != nil {
		log.Printf("Error during cleanup: %v", err)
	}

	if deletedCount > 0 {
		log.Printf("Cleanup complete: %d files deleted, %.2fMB freed",
			deletedCount, float64(deletedSize)/(1024*1024))
	}
}

// EnsureOutputDirExists creates the output directory if it doesn't exist.
func EnsureOutputDirExists(outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}
	log.Printf("Output directory ready: %s", outputDir)
	return nil
}
