package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/swsync-network/swsync/pkg/util"
)

// ErrJournalClosed is returned by Log after Close.
var ErrJournalClosed = errors.New("audit journal closed")

// maxEventLine bounds a single encoded event; a sync of a large chassis
// can carry several hundred interface changes.
const maxEventLine = 4 << 20

// Logger records sync and plan events and reads them back.
type Logger interface {
	Log(event *Event) error
	Query(filter Filter) ([]*Event, error)
	Close() error
}

// JournalOptions bounds the disk used by a Journal. A zero MaxSize
// disables rotation.
type JournalOptions struct {
	MaxSize    int64 // bytes written to the live file before it is rotated
	MaxBackups int   // rotated generations kept, at least one
}

// Journal is a Logger backed by a JSON-lines file. On rotation the live
// file becomes path.1, path.1 becomes path.2 and so on; the generation
// past MaxBackups is removed. Query reads every generation, oldest first.
type Journal struct {
	path string
	opts JournalOptions

	mu   sync.Mutex
	file *os.File
	size int64
}

// OpenJournal opens (or creates) the journal at path, creating its
// directory if needed. New events are appended.
func OpenJournal(path string, opts JournalOptions) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}
	j := &Journal{path: path, opts: opts}
	if err := j.open(); err != nil {
		return nil, err
	}
	return j, nil
}

// Path returns the live file's path.
func (j *Journal) Path() string { return j.path }

func (j *Journal) open() error {
	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening audit journal: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("opening audit journal: %w", err)
	}
	j.file, j.size = f, info.Size()
	return nil
}

// Log appends event as one line, rotating first if the line would push
// a non-empty live file past MaxSize.
func (j *Journal) Log(event *Event) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding audit event %s: %w", event.ID, err)
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return ErrJournalClosed
	}
	if j.opts.MaxSize > 0 && j.size > 0 && j.size+int64(len(line)) > j.opts.MaxSize {
		if err := j.rotate(); err != nil {
			return fmt.Errorf("rotating audit journal: %w", err)
		}
	}
	n, err := j.file.Write(line)
	j.size += int64(n)
	return err
}

func (j *Journal) keep() int {
	return max(j.opts.MaxBackups, 1)
}

func (j *Journal) generation(n int) string {
	return j.path + "." + strconv.Itoa(n)
}

// rotate shifts every generation up by one. The live file is reopened
// even when the shift fails so that later events are not lost.
func (j *Journal) rotate() error {
	if err := j.file.Close(); err != nil {
		return err
	}
	j.file = nil

	shiftErr := j.shift()
	if err := j.open(); err != nil {
		return errors.Join(shiftErr, err)
	}
	return shiftErr
}

func (j *Journal) shift() error {
	oldest := j.generation(j.keep())
	if err := os.Remove(oldest); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	for n := j.keep() - 1; n >= 1; n-- {
		if err := os.Rename(j.generation(n), j.generation(n+1)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return os.Rename(j.path, j.generation(1))
}

// Query returns the events matching filter in the order they were
// logged, then applies the filter's Offset and Limit.
func (j *Journal) Query(filter Filter) ([]*Event, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var events []*Event
	for n := j.keep(); n >= 1; n-- {
		found, err := readEvents(j.generation(n), filter)
		if err != nil {
			return nil, err
		}
		events = append(events, found...)
	}
	found, err := readEvents(j.path, filter)
	if err != nil {
		return nil, err
	}
	return filter.page(append(events, found...)), nil
}

// readEvents scans one journal file. A missing file holds no events;
// malformed lines are logged and skipped.
func readEvents(path string, filter Filter) ([]*Event, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading audit journal: %w", err)
	}
	defer f.Close()

	var events []*Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLine)
	for line := 1; scanner.Scan(); line++ {
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			util.Warnf("audit: %s:%d: skipping malformed entry: %v", filepath.Base(path), line, err)
			continue
		}
		if filter.Match(&ev) {
			events = append(events, &ev)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading audit journal %s: %w", path, err)
	}
	return events, nil
}

// Close closes the live file. It is safe to call more than once.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}

var (
	defaultMu     sync.RWMutex
	defaultLogger Logger
)

// SetDefaultLogger installs the logger read by the package-level Query.
// Passing nil removes it.
func SetDefaultLogger(l Logger) {
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
}

// Query reads from the default logger. Without one there are no events.
func Query(filter Filter) ([]*Event, error) {
	defaultMu.RLock()
	l := defaultLogger
	defaultMu.RUnlock()

	if l == nil {
		return nil, nil
	}
	return l.Query(filter)
}
