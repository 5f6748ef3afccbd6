package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/roach88/eventidx/internal/chain"
)

// Source delivers checkpoints in sequence order.
//
// Fetch returns up to limit checkpoints starting at sequence from. An empty
// result means nothing newer is available yet.
type Source interface {
	Fetch(ctx context.Context, from uint64, limit int) ([]*chain.Checkpoint, error)
}

// DirSource reads checkpoints from a directory of "<sequence>.json" files.
// It stops at the first missing sequence number.
type DirSource struct {
	Dir string
}

// NewDirSource returns a source over dir.
func NewDirSource(dir string) *DirSource {
	return &DirSource{Dir: dir}
}

func (s *DirSource) Fetch(ctx context.Context, from uint64, limit int) ([]*chain.Checkpoint, error) {
	var out []*chain.Checkpoint
	for seq := from; len(out) < limit; seq++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path := filepath.Join(s.Dir, strconv.FormatUint(seq, 10)+".json")
		cp, err := chain.ReadCheckpointFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			break
		}
		if err != nil {
			return nil, err
		}
		if cp.SequenceNumber != seq {
			return nil, fmt.Errorf("%s: holds checkpoint %d", path, cp.SequenceNumber)
		}
		out = append(out, cp)
	}
	return out, nil
}

// Exists reports whether the source directory is present.
func (s *DirSource) Exists() bool {
	info, err := os.Stat(s.Dir)
	return err == nil && info.IsDir()
}

// MemorySource serves checkpoints held in memory, in the order they were added.
// It is safe for concurrent use.
type MemorySource struct {
	mu          sync.Mutex
	checkpoints []*chain.Checkpoint
}

// NewMemorySource returns a source holding cps.
func NewMemorySource(cps ...*chain.Checkpoint) *MemorySource {
	return &MemorySource{checkpoints: cps}
}

// Add appends checkpoints, as a live source would deliver them.
func (s *MemorySource) Add(cps ...*chain.Checkpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints = append(s.checkpoints, cps...)
}

func (s *MemorySource) Fetch(ctx context.Context, from uint64, limit int) ([]*chain.Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*chain.Checkpoint
	for _, cp := range s.checkpoints {
		if len(out) == limit {
			break
		}
		if cp.SequenceNumber >= from {
			out = append(out, cp)
		}
	}
	return out, nil
}
