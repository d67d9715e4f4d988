package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const (
	activePointerFile = "ACTIVE"
	versionPrefix     = "v"
	versionExt        = ".json"
)

// RuleStore persists ScoringRule versions as immutable snapshots and tracks
// the active one through a small pointer file.
//
// Versions are written once with an exclusive create and never rewritten.
// The pointer swap goes through a temp file and an atomic rename, so readers
// always resolve to one fully-committed version, never a torn intermediate.
// Only the aggregator writes; arbitrarily many routing calls read.
type RuleStore struct {
	dir    string
	logger *zap.Logger

	mu     sync.RWMutex
	active *ScoringRule
}

// NewRuleStore opens (creating if needed) the rule directory and resolves
// the active version. With no published versions the built-in default rule
// is active in memory.
func NewRuleStore(dir string, logger *zap.Logger) (*RuleStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create rule dir: %w", err)
	}

	s := &RuleStore{dir: dir, logger: logger}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Active returns the currently active rule snapshot. The returned rule is
// immutable; callers must not modify it.
func (s *RuleStore) Active() *ScoringRule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Versions lists published version IDs in ascending order.
func (s *RuleStore) Versions() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read rule dir: %w", err)
	}
	var versions []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, versionPrefix) && strings.HasSuffix(name, versionExt) {
			versions = append(versions, strings.TrimSuffix(name, versionExt))
		}
	}
	sort.Strings(versions)
	return versions, nil
}

// Load reads one published version.
func (s *RuleStore) Load(version string) (*ScoringRule, error) {
	data, err := os.ReadFile(s.versionPath(version))
	if err != nil {
		return nil, fmt.Errorf("load rule %s: %w", version, err)
	}
	var rule ScoringRule
	if err := json.Unmarshal(data, &rule); err != nil {
		return nil, fmt.Errorf("parse rule %s: %w", version, err)
	}
	return &rule, nil
}

// Publish assigns the next monotonic version ID and writes the snapshot.
// The rule's Version field is set to the assigned ID. Publishing does not
// activate; the caller decides whether to repoint.
func (s *RuleStore) Publish(rule *ScoringRule) (string, error) {
	versions, err := s.Versions()
	if err != nil {
		return "", err
	}
	next := 1
	if len(versions) > 0 {
		last := versions[len(versions)-1]
		n, err := strconv.Atoi(strings.TrimPrefix(last, versionPrefix))
		if err != nil {
			return "", fmt.Errorf("malformed version id %q: %w", last, err)
		}
		next = n + 1
	}
	rule.Version = fmt.Sprintf("%s%04d", versionPrefix, next)

	if err := rule.Validate(); err != nil {
		return "", fmt.Errorf("refusing to publish invalid rule: %w", err)
	}

	data, err := json.MarshalIndent(rule, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode rule: %w", err)
	}

	// O_EXCL enforces immutability: an existing version is never rewritten.
	f, err := os.OpenFile(s.versionPath(rule.Version), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create rule version %s: %w", rule.Version, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", fmt.Errorf("write rule version %s: %w", rule.Version, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close rule version %s: %w", rule.Version, err)
	}

	s.logger.Info("published scoring rule version", zap.String("version", rule.Version))
	return rule.Version, nil
}

// Activate repoints the active pointer to a published version. The pointer
// write is temp-file + rename so concurrent readers never observe a partial
// pointer.
func (s *RuleStore) Activate(version string) error {
	rule, err := s.Load(version)
	if err != nil {
		return err
	}
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("refusing to activate invalid rule %s: %w", version, err)
	}

	tmp, err := os.CreateTemp(s.dir, activePointerFile+".tmp-*")
	if err != nil {
		return fmt.Errorf("create pointer temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(version + "\n"); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write pointer temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close pointer temp: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, activePointerFile)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("swap pointer: %w", err)
	}

	s.mu.Lock()
	s.active = rule
	s.mu.Unlock()

	s.logger.Info("activated scoring rule version", zap.String("version", version))
	return nil
}

// Watch reloads the active rule when the pointer file changes, so a
// long-running daemon picks up versions committed by an out-of-band
// aggregator run. Blocks until ctx is done.
func (s *RuleStore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.dir); err != nil {
		return fmt.Errorf("watch rule dir: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// The pointer swap lands as a rename or create of ACTIVE.
			if filepath.Base(event.Name) != activePointerFile {
				continue
			}
			if err := s.reload(); err != nil {
				s.logger.Warn("rule reload failed, keeping previous version", zap.Error(err))
				continue
			}
			s.logger.Info("reloaded active scoring rule", zap.String("version", s.Active().Version))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("rule watcher error", zap.Error(err))
		}
	}
}

// reload resolves the pointer file and swaps the in-memory active rule.
func (s *RuleStore) reload() error {
	data, err := os.ReadFile(filepath.Join(s.dir, activePointerFile))
	if os.IsNotExist(err) {
		s.mu.Lock()
		s.active = DefaultRule()
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("read active pointer: %w", err)
	}

	version := strings.TrimSpace(string(data))
	rule, err := s.Load(version)
	if err != nil {
		return fmt.Errorf("resolve active version %q: %w", version, err)
	}

	s.mu.Lock()
	s.active = rule
	s.mu.Unlock()
	return nil
}

func (s *RuleStore) versionPath(version string) string {
	return filepath.Join(s.dir, version+versionExt)
}
