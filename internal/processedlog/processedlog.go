// Package processedlog implements the per-scope processed-session log
// from spec.md §4.I: a tab-separated append-only log of sessions that
// have already been through reflection, with an O(1) in-memory
// membership set.
package processedlog

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fyrsmithlabs/playbookd/internal/atomicfile"
	"github.com/fyrsmithlabs/playbookd/internal/lock"
)

// Entry is one row of the processed log (spec.md §6 format).
type Entry struct {
	ID             string
	SessionPath    string
	ProcessedAt    time.Time
	DeltasProposed int
	DeltasApplied  int
}

// Log holds loaded entries plus an O(1) membership index keyed by
// sessionPath.
type Log struct {
	Entries []Entry
	index   map[string]struct{}
}

// Contains reports whether sessionPath has already been processed.
func (l *Log) Contains(sessionPath string) bool {
	if l == nil {
		return false
	}
	_, ok := l.index[sessionPath]
	return ok
}

const header = "# id\tsessionPath\tprocessedAt\tdeltasProposed\tdeltasApplied"

// Load reads the TSV log at path, tolerating malformed lines by
// skipping them (spec.md §4.I). A missing file yields an empty Log.
func Load(path string) (*Log, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Log{index: make(map[string]struct{})}, nil
		}
		return nil, fmt.Errorf("open processed log: %w", err)
	}
	defer f.Close()

	l := &Log{index: make(map[string]struct{})}

	scanner := bufio.NewScanner(f)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entry, ok := parseLine(line)
		if !ok {
			continue
		}
		l.Entries = append(l.Entries, entry)
		l.index[entry.SessionPath] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan processed log: %w", err)
	}

	return l, nil
}

func parseLine(line string) (Entry, bool) {
	fields := strings.Split(line, "\t")
	if len(fields) != 5 {
		return Entry{}, false
	}

	processedAt, err := time.Parse(time.RFC3339, fields[2])
	if err != nil {
		return Entry{}, false
	}
	proposed, err := strconv.Atoi(fields[3])
	if err != nil {
		return Entry{}, false
	}
	applied, err := strconv.Atoi(fields[4])
	if err != nil {
		return Entry{}, false
	}
	if fields[1] == "" {
		return Entry{}, false
	}

	id := fields[0]
	if id == "-" {
		id = ""
	}

	return Entry{
		ID:             id,
		SessionPath:    fields[1],
		ProcessedAt:    processedAt,
		DeltasProposed: proposed,
		DeltasApplied:  applied,
	}, true
}

func formatLine(e Entry) string {
	id := e.ID
	if id == "" {
		id = "-"
	}
	return fmt.Sprintf("%s\t%s\t%s\t%d\t%d\n",
		id, e.SessionPath, e.ProcessedAt.UTC().Format(time.RFC3339), e.DeltasProposed, e.DeltasApplied)
}

// Append records a new entry under lock and appends it to the on-disk
// log atomically, writing the header line first if the file is new.
func Append(ctx context.Context, path string, e Entry) error {
	_, err := lock.WithLock(ctx, path, func(context.Context) (struct{}, error) {
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			if err := atomicfile.AppendLine(path, header+"\n", 0o600); err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, atomicfile.AppendLine(path, formatLine(e), 0o600)
	})
	return err
}

// Save rewrites the entire log from a Log's entries, used when
// compacting or rebuilding from another source of truth.
func Save(path string, l *Log) error {
	var sb strings.Builder
	sb.WriteString(header + "\n")
	for _, e := range l.Entries {
		sb.WriteString(formatLine(e))
	}
	return atomicfile.Write(path, []byte(sb.String()), 0o600)
}
