// Package templates resolves parser template filenames to filesystem paths.
//
// Search order per lookup:
//  1. Local override directory templates/<engine>/<name> under the process
//     working root — highest priority.
//  2. The installed system template directory (e.g. the community
//     ntc-templates tree), searched recursively.
//
// A custom template with the same filename as a system template shadows it.
// When a shipped template breaks on a specific OS version, drop a fixed copy
// into templates/textfsm/ and it takes priority automatically. Every
// resolution is recorded in the parse trace so operators can confirm an
// override is actually being used.
package templates

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/scottpeterman/wirlwind/pkg/telemetry/trace"
)

// ErrTemplateNotFound is returned when neither search tier has the template.
// Use errors.Is to detect it; the concrete error names both searched paths.
var ErrTemplateNotFound = errors.New("template not found")

// NotFoundError carries the searched locations for diagnostics.
type NotFoundError struct {
	Name     string
	Searched []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("template not found: %q (searched %v)", e.Name, e.Searched)
}

func (e *NotFoundError) Unwrap() error { return ErrTemplateNotFound }

// Resolution is a successful lookup: the absolute path plus the tier that
// satisfied it.
type Resolution struct {
	Path string
	Tier trace.Tier
}

// ─────────────────────────────────────────────────────────────────────────────
// Resolver
// ─────────────────────────────────────────────────────────────────────────────

// Resolver maps template filenames to concrete paths. Resolutions are cached
// and read-only after first lookup; template edits require restart.
type Resolver struct {
	localRoot string // templates/<engine> parent, e.g. "templates"
	systemDir string // system template tree, "" when unavailable
	logger    *slog.Logger

	mu    sync.Mutex
	cache map[string]Resolution // "<engine>/<name>" → resolution
}

// DefaultSystemDir returns the system template directory: the
// WIRLWIND_SYSTEM_TEMPLATES environment variable when set, else the
// conventional ntc-templates install location.
func DefaultSystemDir() string {
	if v := os.Getenv("WIRLWIND_SYSTEM_TEMPLATES"); v != "" {
		return v
	}
	return "/usr/share/ntc-templates/templates"
}

// NewResolver creates a Resolver. localRoot is the directory containing
// per-engine override subdirectories (usually "templates"); systemDir may be
// "" to disable the system tier.
func NewResolver(localRoot, systemDir string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	r := &Resolver{
		localRoot: localRoot,
		systemDir: systemDir,
		logger:    logger,
		cache:     make(map[string]Resolution),
	}
	logger.Debug("template resolver ready",
		"local_root", localRoot,
		"system_dir", systemDir,
	)
	return r
}

// Resolve finds a template file by engine and filename. The result is
// recorded in tr (which tier satisfied the lookup) when tr is non-nil.
func (r *Resolver) Resolve(engine, name string, tr *trace.Trace) (Resolution, error) {
	key := engine + "/" + name

	r.mu.Lock()
	cached, ok := r.cache[key]
	r.mu.Unlock()
	if ok {
		if tr != nil {
			tr.TemplateResolved(name, cached.Path, cached.Tier, r.searchPaths(engine))
		}
		return cached, nil
	}

	res, err := r.lookup(engine, name)
	if err != nil {
		if tr != nil {
			tr.TemplateResolved(name, "", trace.TierNone, r.searchPaths(engine))
		}
		return Resolution{}, err
	}

	r.mu.Lock()
	r.cache[key] = res
	r.mu.Unlock()

	if tr != nil {
		tr.TemplateResolved(name, res.Path, res.Tier, r.searchPaths(engine))
	}
	r.logger.Debug("template resolved", "template", name, "path", res.Path, "tier", string(res.Tier))
	return res, nil
}

func (r *Resolver) lookup(engine, name string) (Resolution, error) {
	searched := r.searchPaths(engine)

	// Tier 1: local override.
	if r.localRoot != "" {
		local := filepath.Join(r.localRoot, engine, name)
		if fileExists(local) {
			abs, err := filepath.Abs(local)
			if err != nil {
				abs = local
			}
			return Resolution{Path: abs, Tier: trace.TierLocal}, nil
		}
	}

	// Tier 2: system directory, flat then recursive (the ntc-templates tree
	// is flat, but other packagings nest by platform).
	if r.systemDir != "" {
		flat := filepath.Join(r.systemDir, name)
		if fileExists(flat) {
			return Resolution{Path: flat, Tier: trace.TierSystem}, nil
		}
		if found := findUnder(r.systemDir, name); found != "" {
			return Resolution{Path: found, Tier: trace.TierSystem}, nil
		}
	}

	return Resolution{}, &NotFoundError{Name: name, Searched: searched}
}

func (r *Resolver) searchPaths(engine string) []string {
	var paths []string
	if r.localRoot != "" {
		paths = append(paths, filepath.Join(r.localRoot, engine))
	}
	if r.systemDir != "" {
		paths = append(paths, r.systemDir)
	}
	return paths
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// findUnder walks dir for the first regular file named name.
func findUnder(dir, name string) string {
	var found string
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable subtree, keep walking siblings
		}
		if !d.IsDir() && d.Name() == name {
			found = p
			return fs.SkipAll
		}
		return nil
	})
	return found
}

// noopWriter discards log output.
type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
