// Package archive keeps a raw copy of every telemetry payload in daily
// files, compressing each day once it is over.
package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"

	"github.com/saviobatista/vessel-tracker/internal/logging"
	"github.com/saviobatista/vessel-tracker/internal/types"
)

const (
	filePrefix = "telemetry_"
	fileSuffix = ".log"
	dayLayout  = "2006-01-02"
)

var (
	// ErrNilMessage is returned when recording a nil message
	ErrNilMessage = errors.New("nil telemetry message")
	// ErrStopped is returned by Record once Stop has been called
	ErrStopped = errors.New("archive stopped")
)

// record is one archived line
type record struct {
	ReceivedAt time.Time `json:"received_at"`
	Source     string    `json:"source"`
	Payload    string    `json:"payload"`
}

// Archive appends payloads to telemetry_YYYY-MM-DD.log in dir
type Archive struct {
	dir      string
	file     *os.File
	day      string
	stopped  bool
	now      func() time.Time
	mu       sync.Mutex
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a new Archive writing into dir
func New(dir string) *Archive {
	return &Archive{
		dir:      dir,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

// Start creates the directory, compresses files left over from previous
// days and starts the midnight rotation timer
func (a *Archive) Start() error {
	if err := os.MkdirAll(a.dir, 0o750); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	a.mu.Lock()
	err := a.openFile()
	a.mu.Unlock()
	if err != nil {
		return err
	}

	if err := a.compressStale(); err != nil {
		logging.Warn().Err(err).Str("dir", a.dir).Msg("Failed to compress stale archive files")
	}

	a.wg.Add(1)
	go a.rotationTimer()

	return nil
}

// Stop stops the rotation timer and closes the current file
func (a *Archive) Stop() error {
	a.stopOnce.Do(func() { close(a.stopChan) })
	a.wg.Wait()

	a.mu.Lock()
	defer a.mu.Unlock()

	a.stopped = true
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}

// Record appends msg to the current day's file, rotating first when the
// day has changed. It fails with ErrStopped after Stop.
func (a *Archive) Record(msg *types.TelemetryMessage) error {
	if msg == nil {
		return ErrNilMessage
	}

	line, err := json.Marshal(record{
		ReceivedAt: msg.ReceivedAt.UTC(),
		Source:     msg.Source,
		Payload:    string(msg.Payload),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal archive record: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		return ErrStopped
	}
	if a.file == nil || a.day != a.today() {
		if err := a.rotate(); err != nil {
			return err
		}
	}

	if _, err := a.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write archive record: %w", err)
	}
	return nil
}

// rotationTimer rotates at midnight UTC even when nothing is recorded
func (a *Archive) rotationTimer() {
	defer a.wg.Done()

	for {
		now := a.now().UTC()
		nextMidnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)

		select {
		case <-time.After(nextMidnight.Sub(now)):
			a.mu.Lock()
			var err error
			if a.day != a.today() {
				err = a.rotate()
			}
			a.mu.Unlock()
			if err != nil {
				logging.Error().Err(err).Str("dir", a.dir).Msg("Archive rotation failed")
			}
		case <-a.stopChan:
			return
		}
	}
}

// rotate closes the current file, compresses it and opens today's file.
// Callers hold a.mu.
func (a *Archive) rotate() error {
	if a.file != nil {
		previous := a.file.Name()
		if err := a.file.Close(); err != nil {
			logging.Warn().Err(err).Str("file", previous).Msg("Failed to close archive file")
		}
		a.file = nil
		if a.day != a.today() {
			if err := compressFile(previous); err != nil {
				logging.Warn().Err(err).Str("file", previous).Msg("Failed to compress archive file")
			}
		}
	}
	return a.openFile()
}

// openFile opens today's file for appending. Callers hold a.mu.
func (a *Archive) openFile() error {
	day := a.today()
	name := filepath.Join(a.dir, fileName(day))

	file, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640) // #nosec G304 - name is built from the configured directory
	if err != nil {
		return fmt.Errorf("failed to open archive file: %w", err)
	}

	a.file = file
	a.day = day
	return nil
}

// compressStale compresses uncompressed files from days before today
func (a *Archive) compressStale() error {
	stale, err := a.staleFiles()
	if err != nil {
		return err
	}
	for _, name := range stale {
		if err := compressFile(name); err != nil {
			return err
		}
	}
	return nil
}

func (a *Archive) staleFiles() ([]string, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list archive directory: %w", err)
	}

	current := fileName(a.today())
	var stale []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == current {
			continue
		}
		if strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileSuffix) {
			stale = append(stale, filepath.Join(a.dir, name))
		}
	}
	sort.Strings(stale)
	return stale, nil
}

func (a *Archive) today() string {
	return a.now().UTC().Format(dayLayout)
}

func fileName(day string) string {
	return filePrefix + day + fileSuffix
}

// compressFile gzips path into path.gz and removes the original
func compressFile(path string) error {
	source, err := os.Open(path) // #nosec G304 - path comes from the archive directory
	if err != nil {
		return fmt.Errorf("failed to open file for compression: %w", err)
	}
	defer source.Close()

	target, err := os.Create(path + ".gz") // #nosec G304 - path comes from the archive directory
	if err != nil {
		return fmt.Errorf("failed to create compressed file: %w", err)
	}

	gz, err := gzip.NewWriterLevel(target, gzip.BestCompression)
	if err != nil {
		target.Close()
		return fmt.Errorf("failed to create gzip writer: %w", err)
	}
	gz.Name = filepath.Base(path)

	if _, err := io.Copy(gz, source); err != nil {
		gz.Close()
		target.Close()
		return fmt.Errorf("failed to compress file: %w", err)
	}
	if err := gz.Close(); err != nil {
		target.Close()
		return fmt.Errorf("failed to finish compressed file: %w", err)
	}
	if err := target.Close(); err != nil {
		return fmt.Errorf("failed to close compressed file: %w", err)
	}
	source.Close()

	return os.Remove(path)
}
