package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/phaniarnab/lineagecache/internal/lineage"
	"github.com/spf13/afero"
)

// SpillRecord is the bookkeeping the engine keeps for an evicted-to-disk
// entry: its on-disk path and the exec time it would have cost to
// recompute, keyed by LI in the engine's spill index.
type SpillRecord struct {
	FilePath   string
	ExecTimeNS int64
}

// BlobCodec is the external matrix-block serialization collaborator: the
// cache never interprets matrix bytes itself, it only asks the codec to
// turn a MatrixValue into bytes and back for writing/reading a spill
// file.
type BlobCodec interface {
	EncodeBlob(v MatrixValue) ([]byte, error)
	DecodeBlob(data []byte) (MatrixValue, error)
}

// SpillStore serializes evicted matrix blobs to a lazily-created working
// directory and re-reads them on demand. The directory is an afero.Fs
// rather than bare os calls so spill/rehydrate round-trips are testable
// against an in-memory filesystem.
type SpillStore struct {
	fs    afero.Fs
	codec BlobCodec
	base  string

	mu      sync.Mutex
	dir     string
	created bool
}

// NewSpillStore returns a SpillStore rooted at base; the directory itself
// isn't created until the first Spill call.
func NewSpillStore(fs afero.Fs, codec BlobCodec, base string) *SpillStore {
	return &SpillStore{fs: fs, codec: codec, base: base}
}

func (s *SpillStore) ensureDir() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.created {
		return s.dir, nil
	}
	dir := filepath.Join(s.base, fmt.Sprintf("lineage-%d-%d", os.Getpid(), time.Now().UnixNano()))
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create spill dir: %v", ErrIO, err)
	}
	s.dir = dir
	s.created = true
	return dir, nil
}

// Spill writes value to disk under a filename disambiguated by the
// lineage item's id and returns the record to install in the spill
// index. Spilling a nil value is a programmer error.
func (s *SpillStore) Spill(key *lineage.Item, value MatrixValue, execTimeNS int64) (SpillRecord, error) {
	if value == nil {
		return SpillRecord{}, fmt.Errorf("%w: lineage item %d has no value to spill", ErrSpillInvalid, key.ID())
	}
	dir, err := s.ensureDir()
	if err != nil {
		return SpillRecord{}, err
	}
	data, err := s.codec.EncodeBlob(value)
	if err != nil {
		return SpillRecord{}, fmt.Errorf("%w: encode blob for lineage item %d: %v", ErrIO, key.ID(), err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%d", key.ID()))
	if err := afero.WriteFile(s.fs, path, data, 0o644); err != nil {
		return SpillRecord{}, fmt.Errorf("%w: write spill file %s: %v", ErrIO, path, err)
	}
	return SpillRecord{FilePath: path, ExecTimeNS: execTimeNS}, nil
}

// Rehydrate reads rec's file back, deletes it, and returns the decoded
// value. IOErrors here propagate to the caller: it is relying on a value
// the cache can no longer reproduce any other way.
func (s *SpillStore) Rehydrate(rec SpillRecord) (MatrixValue, error) {
	data, err := afero.ReadFile(s.fs, rec.FilePath)
	if err != nil {
		return nil, fmt.Errorf("%w: read spill file %s: %v", ErrIO, rec.FilePath, err)
	}
	value, err := s.codec.DecodeBlob(data)
	if err != nil {
		return nil, fmt.Errorf("%w: decode spill file %s: %v", ErrIO, rec.FilePath, err)
	}
	if err := s.fs.Remove(rec.FilePath); err != nil {
		return nil, fmt.Errorf("%w: delete spill file %s: %v", ErrIO, rec.FilePath, err)
	}
	return value, nil
}

// Close removes every transient spill file left on disk; spill files
// don't outlive the process that created them.
func (s *SpillStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.created {
		return nil
	}
	if err := s.fs.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("%w: remove spill dir %s: %v", ErrIO, s.dir, err)
	}
	s.created = false
	return nil
}
