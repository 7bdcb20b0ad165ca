package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"

	"go.uber.org/zap"
)

// exitIndexMissing is the exit code the external cass binary returns
// when its search index has not been built yet (spec.md §6: "exit code
// INDEX_MISSING triggers a rebuild-and-retry once").
const exitIndexMissing = 2

// CASSClient implements Searcher by shelling out to the external
// "cass" binary, following the teacher's pattern of wrapping an
// external tool behind a narrow Go interface (internal/extraction).
type CASSClient struct {
	binPath string
	logger  *zap.Logger
	runner  func(ctx context.Context, name string, args ...string) ([]byte, int, error)
}

// NewCASSClient constructs a CASSClient. binPath is the path to (or
// name of, if on $PATH) the cass executable.
func NewCASSClient(binPath string, logger *zap.Logger) *CASSClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CASSClient{
		binPath: binPath,
		logger:  logger,
		runner:  runCommand,
	}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	} else if err != nil {
		return nil, -1, fmt.Errorf("exec %s: %w: %s", name, err, stderr.String())
	}
	return stdout.Bytes(), exitCode, nil
}

type cassSearchHit struct {
	SourcePath string  `json:"source_path"`
	LineNumber int     `json:"line_number"`
	Agent      string  `json:"agent"`
	Snippet    string  `json:"snippet"`
	Score      float64 `json:"score"`
}

// Search shells out to `cass search --json`. On a missing index it
// rebuilds once via `cass index` and retries; any other failure is
// wrapped in Unavailable so callers degrade gracefully.
func (c *CASSClient) Search(ctx context.Context, query string, opts SearchOptions) ([]Snippet, error) {
	args := []string{"search", "--json", "--query", query}
	if opts.Limit > 0 {
		args = append(args, "--limit", strconv.Itoa(opts.Limit))
	}
	if opts.Days > 0 {
		args = append(args, "--days", strconv.Itoa(opts.Days))
	}
	if opts.Agent != "" {
		args = append(args, "--agent", opts.Agent)
	}
	if opts.Workspace != "" {
		args = append(args, "--workspace", opts.Workspace)
	}

	out, code, err := c.runner(ctx, c.binPath, args...)
	if err != nil {
		return nil, &Unavailable{Err: err}
	}

	if code == exitIndexMissing {
		c.logger.Info("cass index missing, rebuilding", zap.String("query", query))
		if _, _, rebuildErr := c.runner(ctx, c.binPath, "index"); rebuildErr != nil {
			return nil, &Unavailable{Err: fmt.Errorf("rebuild failed: %w", rebuildErr)}
		}
		out, code, err = c.runner(ctx, c.binPath, args...)
		if err != nil {
			return nil, &Unavailable{Err: err}
		}
	}

	if code != 0 {
		return nil, &Unavailable{Err: fmt.Errorf("cass search exited %d", code)}
	}

	var hits []cassSearchHit
	if err := json.Unmarshal(out, &hits); err != nil {
		return nil, &Unavailable{Err: fmt.Errorf("parse cass output: %w", err)}
	}

	snippets := make([]Snippet, len(hits))
	for i, h := range hits {
		snippets[i] = Snippet(h)
	}
	return snippets, nil
}

// Export shells out to `cass export --format <format>`.
func (c *CASSClient) Export(ctx context.Context, sessionPath, format string) (string, error) {
	out, code, err := c.runner(ctx, c.binPath, "export", "--session", sessionPath, "--format", format)
	if err != nil {
		return "", &Unavailable{Err: err}
	}
	if code != 0 {
		return "", nil
	}
	return string(out), nil
}

type cassTimelineEntry struct {
	Date     string    `json:"date"`
	Sessions []Session `json:"sessions"`
}

// Timeline shells out to `cass timeline --days N --json`.
func (c *CASSClient) Timeline(ctx context.Context, days int) ([]TimelineGroup, error) {
	out, code, err := c.runner(ctx, c.binPath, "timeline", "--days", strconv.Itoa(days), "--json")
	if err != nil {
		return nil, &Unavailable{Err: err}
	}
	if code != 0 {
		return nil, &Unavailable{Err: fmt.Errorf("cass timeline exited %d", code)}
	}

	var entries []cassTimelineEntry
	if err := json.Unmarshal(out, &entries); err != nil {
		return nil, &Unavailable{Err: fmt.Errorf("parse cass timeline output: %w", err)}
	}

	groups := make([]TimelineGroup, len(entries))
	for i, e := range entries {
		groups[i] = TimelineGroup(e)
	}
	return groups, nil
}
