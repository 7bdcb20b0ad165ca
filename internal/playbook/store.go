package playbook

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/playbookd/internal/atomicfile"
	"github.com/fyrsmithlabs/playbookd/internal/lock"
)

// RepoPlaybookRelPath is the per-repo overlay location (spec.md §6).
const RepoPlaybookRelPath = ".cass/playbook.yaml"

// RepoToxicLogRelPath is the per-repo toxic log location (spec.md §6).
const RepoToxicLogRelPath = ".cass/toxic.log"

// GlobalToxicLogName is the global toxic log filename, sibling to the
// global playbook file.
const GlobalToxicLogName = "toxic_bullets.log"

// Store loads, cascades, filters, and persists playbooks under the
// locking and atomic-write disciplines from spec.md §4.A/§4.B.
type Store struct {
	GlobalPath string
	logger     *zap.Logger
}

// NewStore constructs a Store rooted at the given global playbook path.
func NewStore(globalPath string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{GlobalPath: globalPath, logger: logger}
}

// Load reads a single playbook file, applying spec.md §4.D load
// semantics: missing file or empty file yields an empty playbook with
// no error; parse/schema failures quarantine the file and return an
// empty playbook plus a warning (never silently drop user data).
func Load(path string, logger *zap.Logger) (*Playbook, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Empty(defaultNameFor(path)), nil
		}
		return nil, fmt.Errorf("playbook: read %s: %w", path, err)
	}

	if len(data) == 0 {
		return Empty(defaultNameFor(path)), nil
	}

	var pb Playbook
	if err := yaml.Unmarshal(data, &pb); err != nil {
		quarantine(path, logger, err)
		return Empty(defaultNameFor(path)), nil
	}

	if err := validateSchema(&pb); err != nil {
		quarantine(path, logger, err)
		return Empty(defaultNameFor(path)), nil
	}

	normalize(&pb)
	return &pb, nil
}

func defaultNameFor(path string) string {
	return filepath.Base(filepath.Dir(path))
}

// validateSchema performs the minimal schema validation spec.md §4.D
// requires before accepting a parsed playbook: every bullet needs a
// non-empty ID and content, and the schema version must be supported.
func validateSchema(pb *Playbook) error {
	if pb.SchemaVersion > SchemaVersion {
		return fmt.Errorf("unsupported schema version %d", pb.SchemaVersion)
	}
	seen := make(map[string]struct{}, len(pb.Bullets))
	for i, b := range pb.Bullets {
		if b == nil {
			return fmt.Errorf("bullet at index %d is nil", i)
		}
		if b.ID == "" {
			return fmt.Errorf("bullet at index %d has empty id", i)
		}
		if b.Content == "" {
			return fmt.Errorf("bullet %s has empty content", b.ID)
		}
		if _, dup := seen[b.ID]; dup {
			return fmt.Errorf("duplicate bullet id %s", b.ID)
		}
		seen[b.ID] = struct{}{}
	}
	return nil
}

// normalize regenerates denormalized counters from events so a
// manually-edited file can never drift (spec.md §3 invariant 2).
func normalize(pb *Playbook) {
	for _, b := range pb.Bullets {
		helpful, harmful := 0, 0
		for _, e := range b.FeedbackEvents {
			switch e.Type {
			case FeedbackHelpful:
				helpful++
			case FeedbackHarmful:
				harmful++
			}
		}
		b.HelpfulCount = helpful
		b.HarmfulCount = harmful
	}
	if pb.SchemaVersion == 0 {
		pb.SchemaVersion = SchemaVersion
	}
}

func quarantine(path string, logger *zap.Logger, cause error) {
	backup := fmt.Sprintf("%s.backup.%d", path, time.Now().Unix())
	if err := os.Rename(path, backup); err != nil {
		logger.Warn("playbook: failed to quarantine corrupt file",
			zap.String("path", path), zap.Error(err), zap.NamedError("parse_error", cause))
		return
	}
	logger.Warn("playbook: quarantined corrupt playbook file",
		zap.String("path", path), zap.String("backup", backup), zap.NamedError("parse_error", cause))
}

// Load loads the store's global playbook.
func (s *Store) Load(ctx context.Context) (*Playbook, error) {
	return Load(s.GlobalPath, s.logger)
}

// LoadCascaded loads the global playbook and, if repoPath is non-empty
// and a repo-level overlay exists, merges it in: repo entries override
// global entries by id; deprecatedPatterns are concatenated (global
// first); the merged metadata is the global's (spec.md §4.D).
func (s *Store) LoadCascaded(ctx context.Context, repoPath string) (*Playbook, error) {
	global, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}

	if repoPath == "" {
		return global, nil
	}

	repoFile := filepath.Join(repoPath, RepoPlaybookRelPath)
	if _, err := os.Stat(repoFile); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return global, nil
		}
		return nil, fmt.Errorf("playbook: stat repo overlay %s: %w", repoFile, err)
	}

	repo, err := Load(repoFile, s.logger)
	if err != nil {
		return nil, err
	}

	return mergeCascade(global, repo), nil
}

// mergeCascade merges repo over global by bullet id; repo wins ties.
func mergeCascade(global, repo *Playbook) *Playbook {
	merged := &Playbook{
		SchemaVersion:      global.SchemaVersion,
		Name:               global.Name,
		Description:        global.Description,
		Metadata:           global.Metadata,
		DeprecatedPatterns: append(append([]DeprecatedPattern{}, global.DeprecatedPatterns...), repo.DeprecatedPatterns...),
	}

	byID := make(map[string]*Bullet, len(global.Bullets)+len(repo.Bullets))
	order := make([]string, 0, len(global.Bullets)+len(repo.Bullets))

	for _, b := range global.Bullets {
		if _, ok := byID[b.ID]; !ok {
			order = append(order, b.ID)
		}
		byID[b.ID] = b
	}
	for _, b := range repo.Bullets {
		if _, ok := byID[b.ID]; !ok {
			order = append(order, b.ID)
		}
		byID[b.ID] = b
	}

	merged.Bullets = make([]*Bullet, 0, len(order))
	for _, id := range order {
		merged.Bullets = append(merged.Bullets, byID[id])
	}

	return merged
}

// Save persists pb to the store's global path under lock, stamping
// metadata.lastReflection first (spec.md §4.D Save semantics).
func (s *Store) Save(ctx context.Context, pb *Playbook) error {
	return SaveTo(ctx, s.GlobalPath, pb)
}

// SaveTo persists pb to an explicit path, for cascaded writes where
// the caller has already resolved which file owns the mutated id
// (spec.md §9 "Cascaded writes").
func SaveTo(ctx context.Context, path string, pb *Playbook) error {
	_, err := lock.WithLock(ctx, path, func(ctx context.Context) (struct{}, error) {
		now := time.Now().UTC()
		pb.Metadata.LastReflection = &now

		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return struct{}{}, fmt.Errorf("playbook: create dir for %s: %w", path, err)
		}

		data, err := yaml.Marshal(pb)
		if err != nil {
			return struct{}{}, fmt.Errorf("playbook: marshal %s: %w", path, err)
		}

		return struct{}{}, atomicfile.Write(path, data, 0o600)
	})
	return err
}
