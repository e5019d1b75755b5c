package log

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"
)

const (
	filePrefix = "hublink-"
	dayLayout  = "2006-01-02"
	latestLink = "latest.jsonl"
)

// FileWriter appends JSON records to dir/hublink-YYYY-MM-DD.jsonl, switching
// files when the day changes. Files are owner-only since records can carry
// account ids and request paths.
type FileWriter struct {
	dir string
	now func() time.Time

	mu   sync.Mutex
	file *os.File
	day  string
}

// NewFileWriter opens today's log file in dir.
func NewFileWriter(dir string) (*FileWriter, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating debug log dir: %w", err)
	}

	fw := &FileWriter{dir: dir, now: time.Now}
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if err := fw.openLocked(fw.now().Format(dayLayout)); err != nil {
		return nil, err
	}
	return fw, nil
}

// Write implements io.Writer.
func (fw *FileWriter) Write(p []byte) (int, error) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.file == nil {
		return 0, os.ErrClosed
	}
	if day := fw.now().Format(dayLayout); day != fw.day {
		if err := fw.openLocked(day); err != nil {
			return 0, err
		}
	}
	return fw.file.Write(p)
}

// Close closes the current file. Later writes fail with os.ErrClosed.
func (fw *FileWriter) Close() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.file == nil {
		return nil
	}
	err := fw.file.Close()
	fw.file = nil
	return err
}

func (fw *FileWriter) openLocked(day string) error {
	name := filePrefix + day + ".jsonl"
	f, err := os.OpenFile(filepath.Join(fw.dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	if fw.file != nil {
		fw.file.Close()
	}
	fw.file = f
	fw.day = day

	link := filepath.Join(fw.dir, latestLink)
	tmp := link + ".tmp"
	os.Remove(tmp)
	if err := os.Symlink(name, tmp); err == nil {
		_ = os.Rename(tmp, link)
	}
	return nil
}

var logFilePattern = regexp.MustCompile(`^hublink-(\d{4}-\d{2}-\d{2})\.jsonl$`)

// Files returns the log files in dir, newest first.
func Files(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && logFilePattern.MatchString(e.Name()) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(files)))
	return files, nil
}

// Cleanup removes log files in dir dated more than retentionDays ago.
// Files that don't follow the naming scheme are left alone.
func Cleanup(dir string, retentionDays int) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := logFilePattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		day, err := time.Parse(dayLayout, m[1])
		if err != nil {
			continue
		}
		if day.Before(cutoff) {
			os.Remove(filepath.Join(dir, entry.Name()))
		}
	}
}
