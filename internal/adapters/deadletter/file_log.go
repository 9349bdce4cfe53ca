package deadletter

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/ghalamif/sensorflow/internal/ports"
)

// record layout: [8 bytes id][4 bytes len][len bytes json entry]
const recordHeaderLen = 12

// FileLog is an append-only dead-letter log. Entries up to the committed id have been
// replayed; TruncateCommitted drops them from disk.
type FileLog struct {
	mu        sync.Mutex
	dir       string
	path      string
	metaPath  string
	file      *os.File
	nextID    ports.DeadLetterID
	committed ports.DeadLetterID
	sizeBytes int64
}

func Open(dir string) (*FileLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	l := &FileLog{
		dir:      dir,
		path:     filepath.Join(dir, "dlq.log"),
		metaPath: filepath.Join(dir, "dlq.meta"),
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	l.file = f
	if err := l.recover(); err != nil {
		f.Close()
		return nil, err
	}
	return l, nil
}

// recover finds the last complete record, cuts off a torn tail and loads the commit mark.
func (l *FileLog) recover() error {
	var (
		offset int64
		lastID ports.DeadLetterID
	)
	err := scan(l.path, func(id ports.DeadLetterID, _ []byte, end int64) error {
		lastID, offset = id, end
		return nil
	})
	if err != nil && !errors.Is(err, errTornRecord) {
		return err
	}
	if err := l.file.Truncate(offset); err != nil {
		return err
	}
	if _, err := l.file.Seek(0, io.SeekEnd); err != nil {
		return err
	}
	l.sizeBytes = offset
	l.nextID = lastID

	data, err := os.ReadFile(l.metaPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if val := strings.TrimSpace(string(data)); val != "" {
		u, err := strconv.ParseUint(val, 10, 64)
		if err != nil {
			return fmt.Errorf("dlq meta parse: %w", err)
		}
		l.committed = ports.DeadLetterID(u)
	}
	if l.nextID < l.committed {
		l.nextID = l.committed
	}
	return nil
}

var errTornRecord = errors.New("torn dead-letter record")

// scan walks every complete record. end is the file offset just past the record.
func scan(path string, fn func(id ports.DeadLetterID, body []byte, end int64) error) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var offset int64
	for {
		var hdr [recordHeaderLen]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return errTornRecord
			}
			return fmt.Errorf("dlq read header: %w", err)
		}
		id := ports.DeadLetterID(binary.BigEndian.Uint64(hdr[0:8]))
		body := make([]byte, binary.BigEndian.Uint32(hdr[8:12]))
		if _, err := io.ReadFull(r, body); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return errTornRecord
			}
			return fmt.Errorf("dlq read body: %w", err)
		}
		offset += recordHeaderLen + int64(len(body))
		if err := fn(id, body, offset); err != nil {
			return err
		}
	}
}

func encodeRecord(id ports.DeadLetterID, body []byte) []byte {
	buf := make([]byte, recordHeaderLen+len(body))
	binary.BigEndian.PutUint64(buf[0:8], uint64(id))
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(body)))
	copy(buf[recordHeaderLen:], body)
	return buf
}

// Append writes and fsyncs one entry.
func (l *FileLog) Append(e ports.DeadLetterEntry) (ports.DeadLetterID, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextID + 1
	rec := encodeRecord(id, body)
	if _, err := l.file.Write(rec); err != nil {
		return 0, err
	}
	if err := l.file.Sync(); err != nil {
		return 0, err
	}
	l.nextID = id
	l.sizeBytes += int64(len(rec))
	return id, nil
}

func (l *FileLog) Iterate(from ports.DeadLetterID, fn func(id ports.DeadLetterID, e ports.DeadLetterEntry) error) error {
	l.mu.Lock()
	path := l.path
	l.mu.Unlock()

	err := scan(path, func(id ports.DeadLetterID, body []byte, _ int64) error {
		if id < from {
			return nil
		}
		var e ports.DeadLetterEntry
		if err := json.Unmarshal(body, &e); err != nil {
			return fmt.Errorf("corrupt dlq entry %d: %w", id, err)
		}
		return fn(id, e)
	})
	if errors.Is(err, errTornRecord) {
		return nil
	}
	return err
}

func (l *FileLog) Commit(upto ports.DeadLetterID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if upto > l.committed {
		l.committed = upto
	}
	return os.WriteFile(l.metaPath, []byte(fmt.Sprintf("%d\n", l.committed)), 0o644)
}

// TruncateCommitted rewrites the log keeping only entries after the commit mark.
func (l *FileLog) TruncateCommitted() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tmpPath := l.path + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(tmp)
	var kept int64
	err = scan(l.path, func(id ports.DeadLetterID, body []byte, _ int64) error {
		if id <= l.committed {
			return nil
		}
		rec := encodeRecord(id, body)
		kept += int64(len(rec))
		_, werr := w.Write(rec)
		return werr
	})
	if err != nil && !errors.Is(err, errTornRecord) {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := l.file.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, l.path); err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	l.file = f
	l.sizeBytes = kept
	return nil
}

func (l *FileLog) Stats() ports.DeadLetterStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return ports.DeadLetterStats{
		OldestPending:  l.committed + 1,
		LatestAppended: l.nextID,
		SizeBytes:      l.sizeBytes,
	}
}

func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

var _ ports.DeadLetterLog = (*FileLog)(nil)
