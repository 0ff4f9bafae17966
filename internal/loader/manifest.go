package loader

import (
	"context"
	"encoding/hex"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/prochub/prochub/internal/plugin"
	"github.com/prochub/prochub/internal/procerr"
)

// TypeManifest is the loader type of the filesystem manifest loader.
const TypeManifest = "manifest"

const manifestFilename = "manifest.yaml"

// HandlerFactory builds the executable instance for a manifest. The factory
// receives the manifest so handlers can read their config block.
type HandlerFactory func(m *plugin.Manifest) (plugin.Plugin, error)

// candidate is one validated manifest found during the scan.
type candidate struct {
	manifest *plugin.Manifest
	path     string
	digest   string
}

// ManifestLoader scans filesystem roots for manifest.yaml files, synthesizes
// metadata from the declarative fields, and wraps handler instances that do
// not describe themselves. Invalid manifests are logged and skipped, never
// fatal.
type ManifestLoader struct {
	priority  int
	enabled   bool
	roots     []string
	factories map[string]HandlerFactory
	logger    *slog.Logger

	mu         sync.Mutex
	scanned    bool
	candidates []candidate // discovery order
	unloaded   map[string]bool
}

// NewManifestLoader builds a loader over roots. factories maps manifest
// handler names to constructors.
func NewManifestLoader(priority int, enabled bool, roots []string, factories map[string]HandlerFactory, logger *slog.Logger) *ManifestLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &ManifestLoader{
		priority:  priority,
		enabled:   enabled,
		roots:     roots,
		factories: factories,
		logger:    logger,
		unloaded:  make(map[string]bool),
	}
}

func (l *ManifestLoader) Type() string  { return TypeManifest }
func (l *ManifestLoader) Priority() int { return l.priority }
func (l *ManifestLoader) Enabled() bool { return l.enabled }

func (l *ManifestLoader) Supports(desc plugin.Descriptor) bool {
	if desc.Validate() != nil {
		return false
	}
	return desc.SourceType == "" || desc.SourceType == TypeManifest
}

// Init scans the roots once. Safe to call again: a repeated Init within one
// startup reuses the scan.
func (l *ManifestLoader) Init(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.scanned {
		return nil
	}
	return l.scanLocked(ctx)
}

func (l *ManifestLoader) scanLocked(ctx context.Context) error {
	if len(l.roots) == 0 {
		return fmt.Errorf("at least one manifest root is required")
	}

	seen := make(map[string]string) // "id@version" -> path of kept manifest
	l.candidates = nil

	for _, root := range l.roots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		absRoot, err := filepath.Abs(root)
		if err != nil {
			return fmt.Errorf("failed to resolve manifest root %q: %w", root, err)
		}
		info, err := os.Stat(absRoot)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("manifest root does not exist: %s", absRoot)
			}
			return fmt.Errorf("failed to stat manifest root %s: %w", absRoot, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("manifest root is not a directory: %s", absRoot)
		}

		err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if d.IsDir() || d.Name() != manifestFilename {
				return nil
			}

			cand, err := readCandidate(path)
			if err != nil {
				l.logger.Warn("failed to load manifest", "root", absRoot, "path", path, "error", err.Error())
				return nil
			}

			pair := cand.manifest.ProcessID + "@" + cand.manifest.Version
			if kept, dup := seen[pair]; dup {
				l.logger.Warn("duplicate manifest ignored (keeping first discovered)",
					"process_id", cand.manifest.ProcessID,
					"version", cand.manifest.Version,
					"ignored_path", path,
					"kept_path", kept,
				)
				return nil
			}
			seen[pair] = path

			l.candidates = append(l.candidates, cand)
			l.logger.Info("discovered manifest",
				"process_id", cand.manifest.ProcessID,
				"version", cand.manifest.Version,
				"handler", cand.manifest.Handler,
				"digest", cand.digest,
			)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to scan manifest root %s: %w", absRoot, err)
		}
	}

	l.scanned = true
	return nil
}

// readCandidate reads, validates, and fingerprints one manifest file.
func readCandidate(path string) (candidate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return candidate{}, fmt.Errorf("failed to read manifest: %w", err)
	}

	m, err := plugin.ParseManifest(data)
	if err != nil {
		return candidate{}, err
	}

	sum := blake3.Sum256(data)
	return candidate{
		manifest: m,
		path:     filepath.Dir(path),
		digest:   hex.EncodeToString(sum[:]),
	}, nil
}

// Discover builds one instance per scanned manifest, yielded in discovery
// order. Instances are constructed lazily as the consumer advances. A
// manifest whose handler factory is missing or fails is skipped with a
// warning, matching the scan's tolerance for bad candidates.
func (l *ManifestLoader) Discover(ctx context.Context) iter.Seq2[plugin.Plugin, error] {
	return func(yield func(plugin.Plugin, error) bool) {
		l.mu.Lock()
		if !l.scanned {
			if err := l.scanLocked(ctx); err != nil {
				l.mu.Unlock()
				yield(nil, err)
				return
			}
		}
		candidates := slices.Clone(l.candidates)
		unloaded := maps.Clone(l.unloaded)
		l.mu.Unlock()

		for _, cand := range candidates {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if unloaded[cand.manifest.ProcessID] {
				continue
			}
			p, err := l.build(cand)
			if err != nil {
				l.logger.Warn("failed to build plugin from manifest",
					"process_id", cand.manifest.ProcessID, "path", cand.path, "error", err.Error())
				continue
			}
			if !yield(p, nil) {
				return
			}
		}
	}
}

func (l *ManifestLoader) Load(ctx context.Context, desc plugin.Descriptor) (plugin.Plugin, error) {
	if !l.Supports(desc) {
		return nil, procerr.NewInvalidDescriptor("manifest loader cannot resolve descriptor for " + desc.ProcessID)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.scanned {
		if err := l.scanLocked(ctx); err != nil {
			return nil, err
		}
	}

	for _, cand := range l.candidates {
		if cand.manifest.ProcessID != desc.ProcessID {
			continue
		}
		if desc.Handle != "" && cand.manifest.Handler != desc.Handle {
			continue
		}
		p, err := l.build(cand)
		if err != nil {
			return nil, err
		}
		delete(l.unloaded, desc.ProcessID)
		return p, nil
	}
	return nil, procerr.NewNotFound(desc.ProcessID, "")
}

// build constructs the handler instance and synthesizes metadata. When the
// handler self-describes (non-empty process id and version in its own
// metadata) those fields win; the manifest's metadata fills in otherwise.
// Either way the instance leaves here stamped with the loader type and the
// manifest digest. Needs no lock: factories are immutable after construction.
func (l *ManifestLoader) build(cand candidate) (plugin.Plugin, error) {
	factory, ok := l.factories[cand.manifest.Handler]
	if !ok {
		return nil, fmt.Errorf("no handler factory registered for %q", cand.manifest.Handler)
	}
	raw, err := factory(cand.manifest)
	if err != nil {
		return nil, fmt.Errorf("handler factory %q: %w", cand.manifest.Handler, err)
	}

	md := raw.Metadata()
	if md.ProcessID == "" || md.Version == "" {
		md = cand.manifest.ToMetadata(TypeManifest)
	}
	if md.SourceType == "" {
		md.SourceType = TypeManifest
	}
	md.Checksum = cand.digest
	return plugin.WithMetadata(raw, md), nil
}

func (l *ManifestLoader) Unload(id string) error {
	l.mu.Lock()
	l.unloaded[id] = true
	l.mu.Unlock()
	return nil
}

// Shutdown drops the scan state. Tolerates never having been initialized.
func (l *ManifestLoader) Shutdown(context.Context) error {
	l.mu.Lock()
	l.candidates = nil
	l.scanned = false
	l.mu.Unlock()
	return nil
}
