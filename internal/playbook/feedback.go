package playbook

import "time"

// FeedbackOptions carries the optional fields of a feedback event.
type FeedbackOptions struct {
	Timestamp   time.Time
	SessionPath string
	Reason      string
	Context     string
	// Weight scales the event's contribution to decayed scoring; zero
	// defaults to 1.0 (see FeedbackEvent.Weight).
	Weight float64
}

// RecordFeedbackEvent appends the event to the bullet's feedback
// history, increments the matching denormalized counter, updates
// updatedAt, and for helpful events sets lastValidatedAt (spec.md
// §4.L). A missing id returns false with no mutation.
func RecordFeedbackEvent(pb *Playbook, id string, feedbackType FeedbackType, opts FeedbackOptions) bool {
	b := FindBullet(pb, id)
	if b == nil {
		return false
	}

	ts := opts.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	event := FeedbackEvent{
		Type:        feedbackType,
		Timestamp:   ts,
		SessionPath: opts.SessionPath,
		Reason:      opts.Reason,
		Context:     opts.Context,
		Weight:      opts.Weight,
	}
	b.FeedbackEvents = append(b.FeedbackEvents, event)

	switch feedbackType {
	case FeedbackHelpful:
		b.HelpfulCount++
		now := time.Now().UTC()
		b.LastValidatedAt = &now
	case FeedbackHarmful:
		b.HarmfulCount++
	}

	b.UpdatedAt = time.Now().UTC()
	return true
}
