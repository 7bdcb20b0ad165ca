package outcome

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/playbookd/internal/playbook"
)

func TestComputeSignal_SuccessIsHelpful(t *testing.T) {
	s := computeSignal(Record{Status: StatusSuccess})
	assert.Equal(t, 1.0, s.helpful)
	assert.Equal(t, 0.0, s.harmful)
}

func TestComputeSignal_FailureIsHarmful(t *testing.T) {
	s := computeSignal(Record{Status: StatusFailure})
	assert.Equal(t, 0.0, s.helpful)
	assert.Equal(t, 1.0, s.harmful)
}

func TestComputeSignal_AccumulatesAllFactors(t *testing.T) {
	s := computeSignal(Record{
		Status:          StatusSuccess,
		DurationSeconds: 60,
		ErrorCount:      0,
		HadRetries:      false,
		Sentiment:       SentimentPositive,
	})
	assert.InDelta(t, 1.8, s.helpful, 1e-9) // 1 + 0.5 (fast) + 0.3 (positive)
	assert.Equal(t, 0.0, s.harmful)
}

func TestComputeSignal_SlowAndErrorsAndRetriesAccumulateHarm(t *testing.T) {
	s := computeSignal(Record{
		Status:          StatusFailure,
		DurationSeconds: 4000,
		ErrorCount:      2,
		HadRetries:      true,
		Sentiment:       SentimentNegative,
	})
	assert.InDelta(t, 3.0, s.harmful, 1e-9) // 1 + 0.3 (slow) + 0.7 (errors>=2) + 0.5 (retries) + 0.5 (negative)
}

func TestDecide_TieBreaksToHelpful(t *testing.T) {
	feedbackType, value := decide(Record{Status: StatusMixed})
	assert.Equal(t, playbook.FeedbackHelpful, feedbackType)
	assert.InDelta(t, 0.1, value, 1e-9) // clamped up from 0.1 signal
}

func TestDecide_ClampsToUpperBound(t *testing.T) {
	_, value := decide(Record{
		Status:          StatusFailure,
		DurationSeconds: 4000,
		ErrorCount:      5,
		HadRetries:      true,
		Sentiment:       SentimentNegative,
	})
	assert.Equal(t, 2.0, value)
}

func TestDecide_HarmfulWinsWhenLarger(t *testing.T) {
	feedbackType, _ := decide(Record{Status: StatusFailure, ErrorCount: 2})
	assert.Equal(t, playbook.FeedbackHarmful, feedbackType)
}

func TestAppendThenLoad_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "outcomes.ndjson")

	r1 := Record{RuleIDs: []string{"rule-a"}, Status: StatusSuccess, Timestamp: time.Now().UTC().Truncate(time.Second)}
	r2 := Record{RuleIDs: []string{"rule-b"}, Status: StatusFailure, Timestamp: time.Now().UTC().Truncate(time.Second)}

	require.NoError(t, Append(context.Background(), path, r1))
	require.NoError(t, Append(context.Background(), path, r2))

	records, err := Load(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, StatusSuccess, records[0].Status)
	assert.Equal(t, StatusFailure, records[1].Status)
}

func TestLoad_MissingFileYieldsEmpty(t *testing.T) {
	records, err := Load(filepath.Join(t.TempDir(), "missing.ndjson"))
	require.NoError(t, err)
	assert.Nil(t, records)
}

func TestLoad_SkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "outcomes.ndjson")
	content := `{"ruleIds":["rule-a"],"status":"success","timestamp":"2026-01-01T00:00:00Z"}` + "\n" +
		"not json at all\n" +
		`{"ruleIds":["rule-b"],"status":"failure","timestamp":"2026-01-02T00:00:00Z"}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	records, err := Load(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "rule-a", records[0].RuleIDs[0])
	assert.Equal(t, "rule-b", records[1].RuleIDs[0])
}

func newBullet(id string) *playbook.Bullet {
	now := time.Now().UTC()
	return &playbook.Bullet{
		ID:        id,
		Content:   "content for " + id,
		Category:  "testing",
		Type:      playbook.TypeRule,
		Scope:     playbook.ScopeGlobal,
		State:     playbook.StateActive,
		Maturity:  playbook.MaturityEstablished,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestApplyOne_RecordsFeedbackForEveryCitedRule(t *testing.T) {
	pb := &playbook.Playbook{Bullets: []*playbook.Bullet{newBullet("rule-a"), newBullet("rule-b")}}
	r := Record{RuleIDs: []string{"rule-a", "rule-b"}, Status: StatusSuccess, Timestamp: time.Now().UTC()}

	n := ApplyOne(pb, r)
	assert.Equal(t, 2, n)
	assert.Len(t, pb.Bullets[0].FeedbackEvents, 1)
	assert.Equal(t, playbook.FeedbackHelpful, pb.Bullets[0].FeedbackEvents[0].Type)
	assert.Len(t, pb.Bullets[1].FeedbackEvents, 1)
}

func TestApplyOne_SkipsUnknownRuleIDs(t *testing.T) {
	pb := &playbook.Playbook{Bullets: []*playbook.Bullet{newBullet("rule-a")}}
	r := Record{RuleIDs: []string{"rule-a", "does-not-exist"}, Status: StatusSuccess}

	n := ApplyOne(pb, r)
	assert.Equal(t, 1, n)
}

func TestApplyOne_SetsWeightFromDecidedValue(t *testing.T) {
	pb := &playbook.Playbook{Bullets: []*playbook.Bullet{newBullet("rule-a")}}
	r := Record{RuleIDs: []string{"rule-a"}, Status: StatusFailure, ErrorCount: 5, HadRetries: true, Sentiment: SentimentNegative}

	ApplyOne(pb, r)
	event := pb.Bullets[0].FeedbackEvents[0]
	assert.Equal(t, playbook.FeedbackHarmful, event.Type)
	assert.Equal(t, 2.0, event.Weight)
}

func TestApplyBatch_GroupsByResolvedFileAndLocksEach(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.yaml")
	pathB := filepath.Join(dir, "b.yaml")

	pbA := &playbook.Playbook{SchemaVersion: playbook.SchemaVersion, Bullets: []*playbook.Bullet{newBullet("rule-a")}}
	pbB := &playbook.Playbook{SchemaVersion: playbook.SchemaVersion, Bullets: []*playbook.Bullet{newBullet("rule-b")}}
	require.NoError(t, playbook.SaveTo(context.Background(), pathA, pbA))
	require.NoError(t, playbook.SaveTo(context.Background(), pathB, pbB))

	resolve := func(ruleID string) (string, bool) {
		switch ruleID {
		case "rule-a":
			return pathA, true
		case "rule-b":
			return pathB, true
		default:
			return "", false
		}
	}
	load := func(ctx context.Context, path string) (*playbook.Playbook, error) {
		return playbook.Load(path, nil)
	}

	records := []Record{
		{RuleIDs: []string{"rule-a", "rule-b"}, Status: StatusSuccess, Timestamp: time.Now().UTC()},
		{RuleIDs: []string{"rule-a"}, Status: StatusFailure, ErrorCount: 2, Timestamp: time.Now().UTC()},
	}

	applied, err := ApplyBatch(context.Background(), resolve, load, records)
	require.NoError(t, err)
	assert.Equal(t, 3, applied)

	reloadedA, err := playbook.Load(pathA, nil)
	require.NoError(t, err)
	assert.Len(t, reloadedA.Bullets[0].FeedbackEvents, 2)

	reloadedB, err := playbook.Load(pathB, nil)
	require.NoError(t, err)
	assert.Len(t, reloadedB.Bullets[0].FeedbackEvents, 1)
}

func TestApplyBatch_SkipsUnresolvableRuleIDs(t *testing.T) {
	resolve := func(ruleID string) (string, bool) { return "", false }
	load := func(ctx context.Context, path string) (*playbook.Playbook, error) { return nil, nil }

	applied, err := ApplyBatch(context.Background(), resolve, load, []Record{{RuleIDs: []string{"ghost"}, Status: StatusSuccess}})
	require.NoError(t, err)
	assert.Equal(t, 0, applied)
}
