package main

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rendis/nodeflow/pkg/schema"
)

// definitionStore is the subset of engine.RunManager used to register
// definitions.
type definitionStore interface {
	Define(name string, cfg *schema.WorkflowConfig) error
}

type documentLoader interface {
	Load(data []byte) (*schema.WorkflowConfig, error)
}

// definitionSet loads *.json workflow documents from a directory. Each file
// is registered under its base name; unchanged files are skipped on reload.
type definitionSet struct {
	loader documentLoader
	store  definitionStore
	logger *slog.Logger

	mu     sync.Mutex
	hashes map[string]string // definition name → sha256 of the file
}

func newDefinitionSet(loader documentLoader, store definitionStore, logger *slog.Logger) *definitionSet {
	return &definitionSet{
		loader: loader,
		store:  store,
		logger: logger,
		hashes: make(map[string]string),
	}
}

// loadResult summarizes one pass over the definitions directory.
type loadResult struct {
	Loaded    []string
	Unchanged []string
	Failed    map[string]error
}

// loadDir registers every changed document in dir. A missing dir is empty.
func (d *definitionSet) loadDir(dir string) (loadResult, error) {
	res := loadResult{Failed: make(map[string]error)}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return res, nil
	}
	if err != nil {
		return res, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".json")
		path := filepath.Join(dir, e.Name())

		hash, err := sha256File(path)
		if err != nil {
			res.Failed[name] = err
			continue
		}
		if d.hashes[name] == hash {
			res.Unchanged = append(res.Unchanged, name)
			continue
		}
		if err := d.define(name, path); err != nil {
			res.Failed[name] = err
			d.logger.Error("definition rejected", slog.String("definition", name), slog.String("error", err.Error()))
			continue
		}
		d.hashes[name] = hash
		res.Loaded = append(res.Loaded, name)
	}
	sort.Strings(res.Loaded)
	sort.Strings(res.Unchanged)
	return res, nil
}

func (d *definitionSet) define(name, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	cfg, err := d.loader.Load(data)
	if err != nil {
		return err
	}
	return d.store.Define(name, cfg)
}

// sha256Hex computes the SHA-256 hex digest of r.
func sha256Hex(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// sha256File computes the SHA-256 hex digest of a file.
func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return sha256Hex(f)
}
