package playbook

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/playbookd/internal/atomicfile"
	"github.com/fyrsmithlabs/playbookd/internal/similarity"
)

// LoadToxicLog reads an NDJSON toxic log, tolerating a missing file
// (returns an empty slice, no error).
func LoadToxicLog(path string) ([]ToxicEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("playbook: open toxic log %s: %w", path, err)
	}
	defer f.Close()

	var entries []ToxicEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		var e ToxicEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue // malformed lines are skipped, never fatal
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}

// Forget appends a bullet's content to the toxic log at path, marking
// it as never to be resurrected by reflection.
func Forget(path string, content, reason string) error {
	entry := ToxicEntry{
		ID:          uuid.NewString(),
		Content:     content,
		Reason:      reason,
		ForgottenAt: time.Now().UTC(),
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("playbook: marshal toxic entry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("playbook: create dir for toxic log %s: %w", path, err)
	}
	return atomicfile.AppendLine(path, string(line)+"\n", 0o600)
}

// FilterToxic returns a new Playbook whose Bullets exclude any entry
// suppressed by a toxic log along the cascade (spec.md §4.D). The
// on-disk playbook is untouched — only the merged view is filtered.
func FilterToxic(pb *Playbook, toxic []ToxicEntry) *Playbook {
	if len(toxic) == 0 {
		return pb
	}

	filtered := &Playbook{
		SchemaVersion:      pb.SchemaVersion,
		Name:               pb.Name,
		Description:        pb.Description,
		Metadata:           pb.Metadata,
		DeprecatedPatterns: pb.DeprecatedPatterns,
	}

	for _, b := range pb.Bullets {
		if isToxic(b, toxic) {
			continue
		}
		filtered.Bullets = append(filtered.Bullets, b)
	}
	return filtered
}

func isToxic(b *Bullet, toxic []ToxicEntry) bool {
	bh := similarity.HashContent(b.Content)
	for _, t := range toxic {
		if bh == similarity.HashContent(t.Content) {
			return true
		}
		if similarity.Jaccard(b.Content, t.Content) > 0.85 {
			return true
		}
	}
	return false
}
