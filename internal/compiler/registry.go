package compiler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Registry tracks the compiler binaries installed under a directory laid out
// as <dir>/<toolchain>/<version>/<binary>.
type Registry struct {
	dir    string
	logger *slog.Logger

	mu        sync.RWMutex
	installed map[Toolchain][]installedCompiler
}

type installedCompiler struct {
	version Version
	path    string
}

// NewRegistry creates a registry over dir. Call Refresh to populate it.
func NewRegistry(dir string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		dir:       dir,
		logger:    logger,
		installed: map[Toolchain][]installedCompiler{},
	}
}

// Refresh rescans the compilers directory and replaces the snapshot.
func (r *Registry) Refresh(ctx context.Context) error {
	found := map[Toolchain][]installedCompiler{}
	for _, t := range []Toolchain{Solidity, Vyper} {
		if err := ctx.Err(); err != nil {
			return err
		}
		list, err := r.scan(t)
		if err != nil {
			return err
		}
		found[t] = list
	}

	r.mu.Lock()
	r.installed = found
	r.mu.Unlock()

	r.logger.Info("compiler versions refreshed",
		"dir", r.dir,
		"solidity", len(found[Solidity]),
		"vyper", len(found[Vyper]),
	)
	return nil
}

func (r *Registry) scan(t Toolchain) ([]installedCompiler, error) {
	root := filepath.Join(r.dir, string(t))
	entries, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", root, err)
	}

	var list []installedCompiler
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		v, err := ParseVersion(e.Name())
		if err != nil {
			r.logger.Debug("skipping compiler directory", "toolchain", t, "name", e.Name(), "error", err)
			continue
		}
		bin := filepath.Join(root, e.Name(), t.Binary())
		info, err := os.Stat(bin)
		if err != nil || info.IsDir() {
			continue
		}
		list = append(list, installedCompiler{version: v, path: bin})
	}

	// Newest first; prereleases and nightlies sort after the release.
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].version.Compare(list[j].version) > 0
	})
	return list, nil
}

// Versions returns the installed versions of a toolchain, newest first.
func (r *Registry) Versions(t Toolchain) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.installed[t]))
	for _, c := range r.installed[t] {
		out = append(out, c.version.String())
	}
	return out
}

// Lookup returns the binary path for a version. An exact directory name match
// wins; otherwise a version without build metadata matches any installed
// build of the same release.
func (r *Registry) Lookup(t Toolchain, v Version) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	want := strings.TrimPrefix(v.String(), "v")
	for _, c := range r.installed[t] {
		if strings.TrimPrefix(c.version.String(), "v") == want {
			return c.path, nil
		}
	}
	for _, c := range r.installed[t] {
		if c.version.Equal(v) {
			return c.path, nil
		}
	}
	return "", &ToolchainUnavailableError{Toolchain: t, Version: v.String()}
}

// Run refreshes the registry every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("failed to refresh compiler versions", "error", err)
			}
		}
	}
}
