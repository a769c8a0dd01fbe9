// Package analysis sends finished-session activity to the advisory
// analysis service. Its verdicts are stored for operators and never feed
// back into gameplay.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mcoot/arenaengine/internal/dependencies/clock"
	"github.com/mcoot/arenaengine/internal/model"
)

// DefaultTimeout bounds a single analysis request
const DefaultTimeout = 10 * time.Second

// Request describes one player's part in a finished session
type Request struct {
	PlayerID  model.PlayerID  `json:"playerId"`
	SessionID model.SessionID `json:"sessionId"`
	GameType  model.GameType  `json:"gameType"`
	Reason    model.EndReason `json:"reason"`
	Score     int64           `json:"score"`
	Stake     int64           `json:"stake"`
	Events    []model.Event   `json:"events"`
}

// Analyzer produces an advisory verdict for a request
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (*model.Analysis, error)
}

// Noop is used when no analysis service is configured
type Noop struct{}

func (Noop) Analyze(context.Context, Request) (*model.Analysis, error) {
	return nil, nil
}

type verdict struct {
	RiskScore      *float64 `json:"riskScore"`
	Recommendation string   `json:"recommendation"`
}

// Webhook posts requests as JSON to an HTTP endpoint
type Webhook struct {
	url        string
	httpClient *http.Client
	clock      clock.Clock
}

// NewWebhook creates a webhook analyzer. A zero timeout uses DefaultTimeout.
func NewWebhook(url string, timeout time.Duration, clock clock.Clock) *Webhook {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Webhook{
		url:   url,
		clock: clock,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Analyze posts the request and decodes the verdict
func (w *Webhook) Analyze(ctx context.Context, req Request) (*model.Analysis, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := w.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var v verdict
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if v.RiskScore == nil || *v.RiskScore < 0 || *v.RiskScore > 1 {
		return nil, fmt.Errorf("analysis response has no risk score in [0,1]")
	}

	return &model.Analysis{
		PlayerID:       req.PlayerID,
		SessionID:      req.SessionID,
		RiskScore:      *v.RiskScore,
		Recommendation: v.Recommendation,
		AnalyzedAt:     w.clock.Now(),
	}, nil
}
