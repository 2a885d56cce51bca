// Package local implements the offline fallback store: one JSON blob per
// holder, read when it changes and rewritten wholesale after every mutation.
package local

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"ledger/internal/core"
)

const (
	lockTimeout  = 5 * time.Second
	lockPoll     = 10 * time.Millisecond
	staleLockAge = 30 * time.Second
)

var errLockTimeout = errors.New("timed out waiting for ledger lock")

// Store keeps every holder's records in memory and mirrors them to dir.
// With an empty dir nothing touches the disk.
//
// Several processes may share dir: a blob whose size or modification time
// changed since it was last read is read again, and writers serialize on a
// lock file next to the blob.
type Store struct {
	mu      sync.Mutex
	dir     string
	holders map[string]*holderState
}

type holderState struct {
	docs  []core.RawRecord
	stamp fileStamp
	// gen counts mutations in memory-only mode.
	gen uint64
}

// fileStamp identifies one version of a blob on disk.
type fileStamp struct {
	exists  bool
	modTime int64
	size    int64
}

func (f fileStamp) String() string {
	if !f.exists {
		return "0"
	}
	return fmt.Sprintf("%d-%d", f.modTime, f.size)
}

// New returns a store persisting under dir, creating it if needed.
func New(dir string) (*Store, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create local data directory: %w", err)
		}
	}
	return &Store{dir: dir, holders: make(map[string]*holderState)}, nil
}

// NewMemory returns a store that never persists.
func NewMemory() *Store {
	return &Store{holders: make(map[string]*holderState)}
}

// List returns the holder's documents ordered by date descending.
func (s *Store) List(_ context.Context, holderID string) ([]core.RawRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.loadLocked(holderID)
	if err != nil {
		return nil, err
	}
	out := make([]core.RawRecord, len(st.docs))
	for i, d := range st.docs {
		out[i] = cloneDoc(d)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return dateOf(out[i]) > dateOf(out[j])
	})
	return out, nil
}

// Revision returns a token that changes whenever the holder's blob does.
// It implements ports.RevisionSource.
func (s *Store) Revision(_ context.Context, holderID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dir == "" {
		if st, ok := s.holders[holderID]; ok {
			return strconv.FormatUint(st.gen, 10), nil
		}
		return "0", nil
	}
	stamp, err := s.stat(holderID)
	if err != nil {
		return "", core.Transient("revision", err)
	}
	return stamp.String(), nil
}

// Insert appends a record.
func (s *Store) Insert(ctx context.Context, holderID string, rec core.TransactionRecord) error {
	return s.mutate(ctx, holderID, "insert", func(docs []core.RawRecord) ([]core.RawRecord, error) {
		return append(docs, rec.Raw()), nil
	})
}

// MarkPaid flips a pending record to paid.
func (s *Store) MarkPaid(ctx context.Context, holderID, recordID string) (bool, error) {
	changed := false
	err := s.mutate(ctx, holderID, "mark paid", func(docs []core.RawRecord) ([]core.RawRecord, error) {
		i := indexOf(docs, recordID)
		if i < 0 {
			return nil, &core.NotFoundError{HolderID: holderID, RecordID: recordID}
		}
		if core.Normalize(docs[i]).Status != core.StatusPending {
			return nil, errUnchanged
		}
		doc := cloneDoc(docs[i])
		doc["status"] = string(core.StatusPaid)
		docs[i] = doc
		changed = true
		return docs, nil
	})
	if errors.Is(err, errUnchanged) {
		return false, nil
	}
	return changed, err
}

// Delete removes a record.
func (s *Store) Delete(ctx context.Context, holderID, recordID string) error {
	return s.mutate(ctx, holderID, "delete", func(docs []core.RawRecord) ([]core.RawRecord, error) {
		i := indexOf(docs, recordID)
		if i < 0 {
			return nil, &core.NotFoundError{HolderID: holderID, RecordID: recordID}
		}
		return append(docs[:i], docs[i+1:]...), nil
	})
}

var errUnchanged = errors.New("unchanged")

// mutate applies fn to a copy of the holder's latest documents and only
// installs the result once it has been written to disk. The read, fn and
// the write all happen under the holder's lock file.
func (s *Store) mutate(ctx context.Context, holderID, op string, fn func([]core.RawRecord) ([]core.RawRecord, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dir != "" {
		unlock, err := s.lockFile(ctx, holderID)
		if err != nil {
			return core.Transient(op, err)
		}
		defer unlock()
	}

	st, err := s.loadLocked(holderID)
	if err != nil {
		return err
	}
	next, err := fn(append([]core.RawRecord(nil), st.docs...))
	if err != nil {
		return err
	}
	if s.dir == "" {
		st.docs = next
		st.gen++
		return nil
	}

	if err := s.writeLocked(holderID, next); err != nil {
		return core.Transient(op, err)
	}
	stamp, err := s.stat(holderID)
	if err != nil {
		// Written but unknown stamp: the next read reloads from disk.
		delete(s.holders, holderID)
		return nil
	}
	s.holders[holderID] = &holderState{docs: next, stamp: stamp}
	return nil
}

// loadLocked returns the holder's state, reading the blob again when it
// changed on disk since the last read.
func (s *Store) loadLocked(holderID string) (*holderState, error) {
	st, cached := s.holders[holderID]
	if s.dir == "" {
		if !cached {
			st = &holderState{docs: []core.RawRecord{}}
			s.holders[holderID] = st
		}
		return st, nil
	}

	stamp, err := s.stat(holderID)
	if err != nil {
		return nil, core.Transient("load", err)
	}
	if cached && st.stamp == stamp {
		return st, nil
	}

	docs := []core.RawRecord{}
	if stamp.exists {
		data, err := os.ReadFile(s.path(holderID))
		switch {
		case errors.Is(err, fs.ErrNotExist):
			stamp = fileStamp{}
		case err != nil:
			return nil, core.Transient("load", err)
		default:
			dec := json.NewDecoder(bytes.NewReader(data))
			dec.UseNumber()
			if err := dec.Decode(&docs); err != nil {
				return nil, core.Transient("load", fmt.Errorf("decode %s: %w", s.path(holderID), err))
			}
			if docs == nil {
				docs = []core.RawRecord{}
			}
		}
	}
	st = &holderState{docs: docs, stamp: stamp}
	s.holders[holderID] = st
	return st, nil
}

func (s *Store) stat(holderID string) (fileStamp, error) {
	info, err := os.Stat(s.path(holderID))
	if errors.Is(err, fs.ErrNotExist) {
		return fileStamp{}, nil
	}
	if err != nil {
		return fileStamp{}, err
	}
	return fileStamp{exists: true, modTime: info.ModTime().UnixNano(), size: info.Size()}, nil
}

// lockFile takes the holder's cross-process write lock. A lock older than
// staleLockAge is assumed abandoned by a crashed writer and broken.
func (s *Store) lockFile(ctx context.Context, holderID string) (func(), error) {
	lockPath := s.path(holderID) + ".lock"
	deadline := time.Now().Add(lockTimeout)
	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			f.Close()
			return func() { os.Remove(lockPath) }, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("create lock file: %w", err)
		}
		if info, serr := os.Stat(lockPath); serr == nil && time.Since(info.ModTime()) > staleLockAge {
			os.Remove(lockPath)
			continue
		}
		if time.Now().After(deadline) {
			return nil, errLockTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPoll):
		}
	}
}

func (s *Store) writeLocked(holderID string, docs []core.RawRecord) error {
	data, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, ".ledger-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(holderID)); err != nil {
		return fmt.Errorf("replace blob: %w", err)
	}
	return nil
}

// path maps a holder to a file name that is safe for any holder id.
func (s *Store) path(holderID string) string {
	return filepath.Join(s.dir, base64.RawURLEncoding.EncodeToString([]byte(holderID))+".json")
}

func indexOf(docs []core.RawRecord, recordID string) int {
	for i, d := range docs {
		if id, _ := d["id"].(string); id == recordID {
			return i
		}
	}
	return -1
}

func dateOf(d core.RawRecord) string {
	s, _ := d["date"].(string)
	return s
}

func cloneDoc(d core.RawRecord) core.RawRecord {
	out := make(core.RawRecord, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
