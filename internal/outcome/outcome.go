// Package outcome implements the Outcome Log & Applier from spec.md
// §4.J: it records observed results of using playbook rules and
// translates those signals into feedback events.
package outcome

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fyrsmithlabs/playbookd/internal/atomicfile"
	"github.com/fyrsmithlabs/playbookd/internal/lock"
	"github.com/fyrsmithlabs/playbookd/internal/playbook"
)

// Status is the observed result of applying one or more rules.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusMixed   Status = "mixed"
)

// Sentiment is an optional qualitative signal about the outcome.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// Record is one outcome event (spec.md §3/§6).
type Record struct {
	RuleIDs         []string  `json:"ruleIds"`
	Status          Status    `json:"status"`
	DurationSeconds float64   `json:"durationSeconds,omitempty"`
	ErrorCount      int       `json:"errorCount,omitempty"`
	HadRetries      bool      `json:"hadRetries,omitempty"`
	Sentiment       Sentiment `json:"sentiment,omitempty"`
	SessionPath     string    `json:"sessionPath,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

const (
	fastThresholdSeconds = 600
	slowThresholdSeconds = 3600
)

// Append records r to the NDJSON outcome log at path, under lock.
func Append(ctx context.Context, path string, r Record) error {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal outcome record: %w", err)
	}

	_, err = lock.WithLock(ctx, path, func(context.Context) (struct{}, error) {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return struct{}{}, fmt.Errorf("create outcome log dir: %w", err)
		}
		return struct{}{}, atomicfile.AppendLine(path, string(body)+"\n", 0o600)
	})
	return err
}

// Load reads every record from the NDJSON outcome log, tolerating
// malformed lines by skipping them.
func Load(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open outcome log: %w", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(line, &r); err != nil {
			continue
		}
		records = append(records, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan outcome log: %w", err)
	}
	return records, nil
}

// weightedSignal accumulates helpful/harmful weight for one record.
type weightedSignal struct {
	helpful, harmful float64
}

// computeSignal translates one outcome record into weighted
// helpful/harmful totals per spec.md §4.J's rule table.
func computeSignal(r Record) weightedSignal {
	var s weightedSignal

	switch r.Status {
	case StatusSuccess:
		s.helpful += 1
	case StatusFailure:
		s.harmful += 1
	case StatusMixed:
		s.helpful += 0.1
		s.harmful += 0.1
	}

	if r.DurationSeconds > 0 {
		if r.DurationSeconds < fastThresholdSeconds && r.Status != StatusFailure {
			s.helpful += 0.5
		}
		if r.DurationSeconds > slowThresholdSeconds {
			s.harmful += 0.3
		}
	}

	switch {
	case r.ErrorCount >= 2:
		s.harmful += 0.7
	case r.ErrorCount == 1:
		s.harmful += 0.3
	}

	if r.HadRetries {
		s.harmful += 0.5
	}

	switch r.Sentiment {
	case SentimentPositive:
		s.helpful += 0.3
	case SentimentNegative:
		s.harmful += 0.5
	}

	return s
}

// clamp bounds v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// decide picks the feedback type and decayedValue for one record,
// clamping the value to [0.1, 2.0] and breaking ties to helpful
// (spec.md §4.J).
func decide(r Record) (playbook.FeedbackType, float64) {
	s := computeSignal(r)
	if s.harmful > s.helpful {
		return playbook.FeedbackHarmful, clamp(s.harmful, 0.1, 2.0)
	}
	return playbook.FeedbackHelpful, clamp(s.helpful, 0.1, 2.0)
}

// ApplyOne translates one outcome record into a feedback event per
// cited rule and records it against pb via the feedback API. Resolving
// which playbook file a rule id lives in, and grouping/locking by file,
// is the caller's responsibility (spec.md §4.J: "grouped by file and
// applied under one lock per file").
func ApplyOne(pb *playbook.Playbook, r Record) int {
	feedbackType, value := decide(r)
	reason := fmt.Sprintf("outcome status=%s duration=%.0fs errors=%d retries=%t sentiment=%s",
		r.Status, r.DurationSeconds, r.ErrorCount, r.HadRetries, r.Sentiment)

	applied := 0
	for _, id := range r.RuleIDs {
		ok := playbook.RecordFeedbackEvent(pb, id, feedbackType, playbook.FeedbackOptions{
			Timestamp:   r.Timestamp,
			SessionPath: r.SessionPath,
			Reason:      reason,
			Weight:      value,
		})
		if ok {
			applied++
		}
	}
	return applied
}

// FileResolver maps a rule id to the playbook file path that owns it,
// preferring a repo overlay over the global file (spec.md §4.J: "Rules
// are resolved first to a playbook file (repo preferred over global)").
type FileResolver func(ruleID string) (path string, ok bool)

// LoadFunc loads the playbook at path, e.g. playbook.Load with a bound
// logger.
type LoadFunc func(ctx context.Context, path string) (*playbook.Playbook, error)

// ApplyBatch resolves every cited rule id to its owning file, groups
// records by that file, and applies each file's records under a single
// lock-load-save cycle (spec.md §4.J). Rule ids that do not resolve are
// skipped; they contribute nothing and are not an error, since a
// dangling citation is user input the gate already let through earlier.
func ApplyBatch(ctx context.Context, resolve FileResolver, load LoadFunc, records []Record) (applied int, err error) {
	byFile := make(map[string][]Record)

	for _, r := range records {
		byPath := make(map[string][]string)
		for _, id := range r.RuleIDs {
			path, ok := resolve(id)
			if !ok {
				continue
			}
			byPath[path] = append(byPath[path], id)
		}
		for path, ids := range byPath {
			split := r
			split.RuleIDs = ids
			byFile[path] = append(byFile[path], split)
		}
	}

	paths := make([]string, 0, len(byFile))
	for p := range byFile {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, path := range paths {
		fileRecords := byFile[path]
		n, lockErr := lock.WithLock(ctx, path, func(ctx context.Context) (int, error) {
			pb, loadErr := load(ctx, path)
			if loadErr != nil {
				return 0, loadErr
			}

			count := 0
			for _, r := range fileRecords {
				count += ApplyOne(pb, r)
			}

			if saveErr := playbook.SaveTo(ctx, path, pb); saveErr != nil {
				return 0, saveErr
			}
			return count, nil
		})
		if lockErr != nil {
			return applied, fmt.Errorf("apply outcomes for %s: %w", path, lockErr)
		}
		applied += n
	}

	return applied, nil
}
