package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/open-policy-agent/opa/ast"
	"github.com/rs/zerolog"
)

// reloadDelay collapses bursts of file events into one reload.
const reloadDelay = 250 * time.Millisecond

// Loader reads policy files. A .rego file is one policy named after the
// file. A .json file holds a Policy document with the module inline.
//
// Every module must define deny, the only rule the engine queries. A
// package METADATA annotation may set the description and, under custom,
// the severity and tags:
//
//	# METADATA
//	# description: Navigation is only sold with Radio
//	# custom:
//	#   severity: error
//	#   tags: [bundles]
//	package custom.navigation
type Loader struct {
	logger zerolog.Logger

	mu    sync.Mutex
	cache map[string]cachedPolicy
}

// cachedPolicy is a parsed file. It is reused while size and mtime match.
type cachedPolicy struct {
	size    int64
	modTime time.Time
	policy  Policy
}

// NewLoader creates a new policy loader.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{
		logger: logger.With().Str("component", "policy-loader").Logger(),
		cache:  make(map[string]cachedPolicy),
	}
}

// LoadFromPaths loads every policy file named by paths. Directories are
// walked recursively in lexical order and files other than .rego and .json
// are ignored. Any file that fails to load fails the whole call, as does a
// policy name defined by two files.
func (l *Loader) LoadFromPaths(ctx context.Context, paths []string) ([]Policy, error) {
	files, err := policyFiles(paths)
	if err != nil {
		return nil, err
	}

	policies := make([]Policy, 0, len(files))
	sources := make(map[string]string, len(files))
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, err := l.loadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load policy file %s: %w", path, err)
		}
		if prev, dup := sources[p.Name]; dup {
			return nil, fmt.Errorf("policy %q is defined by both %s and %s", p.Name, prev, path)
		}
		sources[p.Name] = path
		policies = append(policies, p)
	}

	l.logger.Info().
		Int("total", len(policies)).
		Int("sources", len(paths)).
		Msg("Policies loaded from paths")

	return policies, nil
}

// policyFiles expands paths into policy file names. Explicitly named files
// are kept whatever their extension so that loadFile can reject them.
func policyFiles(paths []string) ([]string, error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat policy path: %w", err)
		}
		if !info.IsDir() {
			files = append(files, path)
			continue
		}
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && isPolicyFile(p) {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", path, err)
		}
	}
	return files, nil
}

func isPolicyFile(path string) bool {
	switch filepath.Ext(path) {
	case ".rego", ".json":
		return true
	}
	return false
}

// loadFile parses one policy file, reusing the cached parse when the file
// is unchanged.
func (l *Loader) loadFile(path string) (Policy, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Policy{}, err
	}

	l.mu.Lock()
	c, ok := l.cache[path]
	l.mu.Unlock()
	if ok && c.size == info.Size() && c.modTime.Equal(info.ModTime()) {
		return c.policy, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, err
	}
	p, err := parsePolicyFile(path, data)
	if err != nil {
		return Policy{}, err
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = info.ModTime()
	}
	p.UpdatedAt = info.ModTime()
	if p.Metadata == nil {
		p.Metadata = map[string]interface{}{}
	}
	p.Metadata["source"] = path

	l.mu.Lock()
	l.cache[path] = cachedPolicy{size: info.Size(), modTime: info.ModTime(), policy: p}
	l.mu.Unlock()

	l.logger.Debug().
		Str("path", path).
		Str("policy", p.Name).
		Str("severity", string(p.Severity)).
		Msg("Policy loaded from file")

	return p, nil
}

func (l *Loader) forget(path string) {
	l.mu.Lock()
	delete(l.cache, path)
	l.mu.Unlock()
}

// parsePolicyFile builds a Policy from file content and checks its module.
func parsePolicyFile(path string, data []byte) (Policy, error) {
	var p Policy
	switch filepath.Ext(path) {
	case ".rego":
		p = Policy{
			Name:    strings.TrimSuffix(filepath.Base(path), ".rego"),
			Rego:    string(data),
			Enabled: true,
		}
	case ".json":
		if err := json.Unmarshal(data, &p); err != nil {
			return Policy{}, fmt.Errorf("failed to parse JSON policy: %w", err)
		}
		if p.Name == "" || p.Rego == "" {
			return Policy{}, errors.New("JSON policy needs a name and rego")
		}
		p.Builtin = false
	default:
		return Policy{}, fmt.Errorf("unsupported policy file type %q", filepath.Ext(path))
	}

	if err := inspectModule(&p); err != nil {
		return Policy{}, fmt.Errorf("policy %s: %w", p.Name, err)
	}
	return p, nil
}

// inspectModule parses the policy's Rego, requires a deny rule and fills
// description, severity and tags from package annotations where the policy
// leaves them empty.
func inspectModule(p *Policy) error {
	module, err := ast.ParseModuleWithOpts(p.Name, p.Rego, ast.ParserOptions{ProcessAnnotation: true})
	if err != nil {
		return err
	}
	if !definesDeny(module) {
		return fmt.Errorf("package %s defines no deny rule", packageName(module))
	}

	for _, a := range module.Annotations {
		if a.Scope != "package" {
			continue
		}
		if p.Description == "" {
			p.Description = strings.TrimSpace(a.Description)
		}
		if sev, ok := a.Custom["severity"].(string); ok && p.Severity == "" {
			p.Severity = Severity(sev)
		}
		if tags, ok := a.Custom["tags"].([]interface{}); ok && len(p.Tags) == 0 {
			for _, t := range tags {
				if s, ok := t.(string); ok {
					p.Tags = append(p.Tags, s)
				}
			}
		}
	}
	if p.Description == "" && len(module.Annotations) == 0 {
		p.Description = commentDescription(module)
	}

	if p.Severity == "" {
		p.Severity = SeverityWarning
	}
	if !p.Severity.Valid() {
		return fmt.Errorf("unknown severity %q", p.Severity)
	}
	return nil
}

func definesDeny(module *ast.Module) bool {
	return slices.ContainsFunc(module.Rules, func(r *ast.Rule) bool {
		ref := r.Head.Ref()
		return len(ref) > 0 && ref[0].Value.Compare(ast.Var("deny")) == 0
	})
}

// commentDescription joins the first block of consecutive comment lines.
func commentDescription(module *ast.Module) string {
	var parts []string
	row := 0
	for _, c := range module.Comments {
		if row != 0 && c.Location.Row != row+1 {
			break
		}
		row = c.Location.Row
		text := strings.TrimSpace(strings.TrimPrefix(string(c.Text), "#"))
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// Watch calls reload with the freshly loaded policies whenever a policy
// file under paths changes, until ctx is done. A change that fails to load
// is logged and reload is not called, so the previous policies stay.
func (l *Loader) Watch(ctx context.Context, paths []string, reload func([]Policy) error) error {
	dirs, err := watchDirs(paths)
	if err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	go l.watch(ctx, watcher, paths, reload)

	l.logger.Info().
		Strs("dirs", dirs).
		Msg("Started watching policy paths")
	return nil
}

// watchDirs lists the directories to watch: every directory under a
// directory path, and the parent of a file path.
func watchDirs(paths []string) ([]string, error) {
	var dirs []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat policy path: %w", err)
		}
		if !info.IsDir() {
			dirs = append(dirs, filepath.Dir(path))
			continue
		}
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err == nil && d.IsDir() {
				dirs = append(dirs, p)
			}
			return err
		})
		if err != nil {
			return nil, err
		}
	}
	slices.Sort(dirs)
	return slices.Compact(dirs), nil
}

func (l *Loader) watch(ctx context.Context, watcher *fsnotify.Watcher, paths []string, reload func([]Policy) error) {
	defer func() { _ = watcher.Close() }()

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := watcher.Add(event.Name); err != nil {
						l.logger.Warn().Err(err).Str("dir", event.Name).Msg("Failed to watch new directory")
					}
					continue
				}
			}
			if !isPolicyFile(event.Name) || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)) {
				continue
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				l.forget(event.Name)
			}
			l.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Policy file changed")
			pending = time.After(reloadDelay)

		case <-pending:
			pending = nil
			policies, err := l.LoadFromPaths(ctx, paths)
			if err != nil {
				l.logger.Error().Err(err).Msg("Policy reload failed, keeping the previous policies")
				continue
			}
			if err := reload(policies); err != nil {
				l.logger.Error().Err(err).Msg("Failed to apply reloaded policies")
				continue
			}
			l.logger.Info().Int("count", len(policies)).Msg("Policies reloaded")

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}
