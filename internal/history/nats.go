package history

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Default NATS request-reply subjects for the session-search service.
const (
	SubjectSearch   = "cass.search"
	SubjectExport   = "cass.export"
	SubjectTimeline = "cass.timeline"

	defaultRequestTimeout = 5 * time.Second
)

// NATSClient implements Searcher by making request-reply calls to a
// session-search service over NATS, for deployments where history
// search runs as its own process rather than a local binary.
type NATSClient struct {
	conn    *nats.Conn
	logger  *zap.Logger
	timeout time.Duration
}

// NewNATSClient wraps an existing NATS connection. The caller owns the
// connection's lifecycle.
func NewNATSClient(conn *nats.Conn, logger *zap.Logger) *NATSClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSClient{conn: conn, logger: logger, timeout: defaultRequestTimeout}
}

type natsSearchRequest struct {
	Query     string `json:"query"`
	Limit     int    `json:"limit,omitempty"`
	Days      int    `json:"days,omitempty"`
	Agent     string `json:"agent,omitempty"`
	Workspace string `json:"workspace,omitempty"`
}

func (c *NATSClient) request(ctx context.Context, subject string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &Unavailable{Err: fmt.Errorf("marshal request: %w", err)}
	}

	msg, err := c.conn.RequestWithContext(ctx, subject, body)
	if err != nil {
		return &Unavailable{Err: fmt.Errorf("nats request to %s: %w", subject, err)}
	}

	if err := json.Unmarshal(msg.Data, out); err != nil {
		return &Unavailable{Err: fmt.Errorf("unmarshal reply from %s: %w", subject, err)}
	}
	return nil
}

// Search publishes a request on SubjectSearch and waits for a reply
// carrying the snippet list.
func (c *NATSClient) Search(ctx context.Context, query string, opts SearchOptions) ([]Snippet, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var snippets []Snippet
	err := c.request(ctx, SubjectSearch, natsSearchRequest{
		Query:     query,
		Limit:     opts.Limit,
		Days:      opts.Days,
		Agent:     opts.Agent,
		Workspace: opts.Workspace,
	}, &snippets)
	if err != nil {
		c.logger.Debug("history search unavailable", zap.Error(err))
		return nil, err
	}
	return snippets, nil
}

// Export requests a rendered session over SubjectExport.
func (c *NATSClient) Export(ctx context.Context, sessionPath, format string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reply struct {
		Text string `json:"text"`
	}
	if err := c.request(ctx, SubjectExport, map[string]string{"sessionPath": sessionPath, "format": format}, &reply); err != nil {
		return "", err
	}
	return reply.Text, nil
}

// Timeline requests day-grouped sessions over SubjectTimeline.
func (c *NATSClient) Timeline(ctx context.Context, days int) ([]TimelineGroup, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var groups []TimelineGroup
	if err := c.request(ctx, SubjectTimeline, map[string]string{"days": strconv.Itoa(days)}, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}
