package bm25

import (
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kirillkom/hybrid-retrieval/internal/core/domain"
)

const (
	indexFile = "bm25.gob"
	metaFile  = "bm25_meta.json"

	formatVersion = 1
)

// indexDump is the gob wire form of a snapshot.
type indexDump struct {
	Payloads []domain.ChunkPayload
	Tokens   [][]string
	Lengths  []int
	Avgdl    float64
	DF       map[string]int
}

// indexMeta is the human-readable sidecar used to sanity-check a dump before
// loading it.
type indexMeta struct {
	Version int    `json:"version"`
	Chunks  int    `json:"chunks"`
	Terms   int    `json:"terms"`
	BuiltAt string `json:"built_at"`
}

// Save writes the current snapshot to disk via temp files renamed into
// place. Saving an empty or absent snapshot is a no-op.
func (idx *Index) Save() error {
	if idx.path == "" {
		return nil
	}
	snap := idx.snap.Load()
	if snap == nil || len(snap.payloads) == 0 {
		return nil
	}

	if err := os.MkdirAll(idx.path, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	dump := indexDump{
		Payloads: snap.payloads,
		Tokens:   snap.tokens,
		Lengths:  snap.lengths,
		Avgdl:    snap.avgdl,
		DF:       snap.df,
	}
	if err := writeGob(filepath.Join(idx.path, indexFile), dump); err != nil {
		return err
	}

	meta := indexMeta{
		Version: formatVersion,
		Chunks:  len(snap.payloads),
		Terms:   len(snap.df),
		BuiltAt: time.Now().UTC().Format(time.RFC3339),
	}
	return writeJSON(filepath.Join(idx.path, metaFile), meta)
}

// Load restores the last saved snapshot. A missing or mismatched dump leaves
// the index unbuilt and returns no error; corrupt files do error.
func (idx *Index) Load() error {
	if idx.path == "" {
		return nil
	}

	metaBytes, err := os.ReadFile(filepath.Join(idx.path, metaFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read index meta: %w", err)
	}
	var meta indexMeta
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return fmt.Errorf("decode index meta: %w", err)
	}
	if meta.Version != formatVersion {
		return nil
	}

	f, err := os.Open(filepath.Join(idx.path, indexFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open index dump: %w", err)
	}
	defer f.Close()

	var dump indexDump
	if err := gob.NewDecoder(f).Decode(&dump); err != nil {
		return fmt.Errorf("decode index dump: %w", err)
	}
	if len(dump.Payloads) != meta.Chunks {
		return fmt.Errorf("index dump chunk count %d does not match meta %d", len(dump.Payloads), meta.Chunks)
	}

	idx.snap.Store(&snapshot{
		payloads: dump.Payloads,
		tokens:   dump.Tokens,
		lengths:  dump.Lengths,
		avgdl:    dump.Avgdl,
		df:       dump.DF,
		builtAt:  meta.BuiltAt,
	})
	return nil
}

func writeGob(path string, v any) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".bm25-*")
	if err != nil {
		return fmt.Errorf("create temp dump: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(v); err != nil {
		tmp.Close()
		return fmt.Errorf("encode index dump: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp dump: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("install index dump: %w", err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode index meta: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".bm25-meta-*")
	if err != nil {
		return fmt.Errorf("create temp meta: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write index meta: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp meta: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("install index meta: %w", err)
	}
	return nil
}
