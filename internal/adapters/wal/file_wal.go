package wal

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

	"github.com/fasanicam/ferme-dashboard/internal/domain"
	"github.com/fasanicam/ferme-dashboard/internal/ports"
)

const recordHeaderLen = 12

var renameFile = os.Rename

// FileWAL is an append-only log of pending store writes. Committed entries
// are reclaimed by TruncateCommitted.
type FileWAL struct {
	mu        sync.Mutex
	path      string
	metaPath  string
	file      *os.File
	writer    *bufio.Writer
	nextID    ports.WALEntryID
	committed ports.WALEntryID
	sizeBytes int64
}

func NewFileWAL(dir string) (*FileWAL, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "wal.log")
	f, err := openLog(path)
	if err != nil {
		return nil, err
	}

	wal := &FileWAL{
		path:     path,
		metaPath: filepath.Join(dir, "wal.meta"),
		file:     f,
		writer:   bufio.NewWriterSize(f, 1<<16),
	}
	if err := wal.bootstrap(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return wal, nil
}

func openLog(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
}

func (w *FileWAL) bootstrap() error {
	if err := w.scanExisting(); err != nil {
		return err
	}
	if err := w.loadCommitted(); err != nil {
		return err
	}
	if w.nextID < w.committed {
		w.nextID = w.committed
	}
	return nil
}

// scanExisting finds the last complete entry and cuts off a torn tail.
func (w *FileWAL) scanExisting() error {
	rf, err := os.Open(w.path)
	if err != nil {
		return err
	}
	defer rf.Close()

	var (
		reader = bufio.NewReader(rf)
		offset int64
		lastID ports.WALEntryID
	)
	for {
		id, body, err := readEntry(reader)
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("wal scan: %w", err)
		}
		offset += recordHeaderLen + int64(len(body))
		lastID = id
	}

	if err := w.file.Truncate(offset); err != nil {
		return err
	}
	w.sizeBytes = offset
	w.nextID = lastID
	return nil
}

func (w *FileWAL) loadCommitted() error {
	data, err := os.ReadFile(w.metaPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	val := strings.TrimSpace(string(data))
	if val == "" {
		return nil
	}
	u, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return fmt.Errorf("wal meta parse: %w", err)
	}
	w.committed = ports.WALEntryID(u)
	return nil
}

func (w *FileWAL) Append(r *domain.Record) (ports.WALEntryID, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return 0, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	id := w.nextID + 1
	n, err := writeEntry(w.writer, id, b)
	if err != nil {
		return 0, err
	}
	w.nextID = id
	w.sizeBytes += int64(n)
	return id, nil
}

func (w *FileWAL) Iterate(from ports.WALEntryID, fn func(id ports.WALEntryID, r *domain.Record) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		return err
	}

	f, err := os.Open(w.path)
	if err != nil {
		return err
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	for {
		id, body, err := readEntry(reader)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("corrupt WAL: %w", err)
		}
		if id < from {
			continue
		}

		var rec domain.Record
		if err := json.Unmarshal(body, &rec); err != nil {
			return fmt.Errorf("corrupt WAL entry %d: %w", id, err)
		}
		if err := fn(id, &rec); err != nil {
			return err
		}
	}
}

// Commit marks every entry up to and including upto as durably stored.
func (w *FileWAL) Commit(upto ports.WALEntryID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.writer.Flush(); err != nil {
		return err
	}
	if upto > w.committed {
		w.committed = upto
	}
	return w.persistMetaLocked()
}

// TruncateCommitted rewrites the log keeping only uncommitted entries.
func (w *FileWAL) TruncateCommitted() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.committed == 0 || w.sizeBytes == 0 {
		return nil
	}
	if err := w.writer.Flush(); err != nil {
		return err
	}

	tmpPath := w.path + ".tmp"
	kept, err := w.copyUncommitted(tmpPath)
	if err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	closeErr := w.file.Close()
	renameErr := renameFile(tmpPath, w.path)
	if renameErr != nil {
		_ = os.Remove(tmpPath)
	}
	// The handle is reopened whatever happened above so Append keeps a live file.
	f, err := openLog(w.path)
	if err != nil {
		return errors.Join(closeErr, renameErr, fmt.Errorf("reopen wal: %w", err))
	}
	w.file = f
	w.writer = bufio.NewWriterSize(f, 1<<16)
	if renameErr != nil {
		return fmt.Errorf("swap truncated wal: %w", renameErr)
	}
	w.sizeBytes = kept
	return closeErr
}

func (w *FileWAL) copyUncommitted(dst string) (int64, error) {
	src, err := os.Open(w.path)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	var (
		reader = bufio.NewReader(src)
		writer = bufio.NewWriter(out)
		kept   int64
	)
	for {
		id, body, err := readEntry(reader)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("wal truncate: %w", err)
		}
		if id <= w.committed {
			continue
		}
		n, err := writeEntry(writer, id, body)
		if err != nil {
			return 0, err
		}
		kept += int64(n)
	}
	if err := writer.Flush(); err != nil {
		return 0, err
	}
	return kept, out.Sync()
}

func (w *FileWAL) Stats() ports.WALStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return ports.WALStats{
		OldestUncommitted: w.committed + 1,
		LatestAppended:    w.nextID,
		SizeBytes:         w.sizeBytes,
	}
}

func (w *FileWAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := errors.Join(w.writer.Flush(), w.file.Sync(), w.file.Close())
	w.file = nil
	return err
}

func (w *FileWAL) persistMetaLocked() error {
	data := []byte(fmt.Sprintf("%d\n", w.committed))
	return os.WriteFile(w.metaPath, data, 0o644)
}

// entry format: [8 bytes id][4 bytes len][len bytes json]
func writeEntry(dst io.Writer, id ports.WALEntryID, body []byte) (int, error) {
	var hdr [recordHeaderLen]byte
	binary.BigEndian.PutUint64(hdr[0:8], uint64(id))
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(body)))
	if _, err := dst.Write(hdr[:]); err != nil {
		return 0, err
	}
	if _, err := dst.Write(body); err != nil {
		return 0, err
	}
	return recordHeaderLen + len(body), nil
}

// readEntry returns io.EOF at a clean end and io.ErrUnexpectedEOF on a torn entry.
func readEntry(r *bufio.Reader) (ports.WALEntryID, []byte, error) {
	var hdr [recordHeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}
	id := ports.WALEntryID(binary.BigEndian.Uint64(hdr[0:8]))
	body := make([]byte, binary.BigEndian.Uint32(hdr[8:12]))
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return 0, nil, err
	}
	return id, body, nil
}

var _ ports.WAL = (*FileWAL)(nil)
