package signalsource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/vigialabs/vigia/internal/retry"
	"github.com/vigialabs/vigia/internal/security"
)

// HTTPSource queries a remote registry over HTTP. The registry receives
// the entity reference and requested checks as JSON and answers with its
// facts. Endpoint URLs are validated against SSRF at construction.
type HTTPSource struct {
	name     string
	endpoint string
	checks   CheckSet
	client   *http.Client
}

// NewHTTPSource creates a source for a remote registry endpoint.
func NewHTTPSource(name, endpoint string, checks CheckSet) (*HTTPSource, error) {
	if err := security.ValidateEndpointURL(endpoint); err != nil {
		return nil, fmt.Errorf("source %s: %w", name, err)
	}
	return &HTTPSource{
		name:     name,
		endpoint: endpoint,
		checks:   checks,
		client:   &http.Client{Timeout: 5 * time.Second},
	}, nil
}

func (s *HTTPSource) Name() string     { return s.name }
func (s *HTTPSource) Checks() CheckSet { return s.checks }

type httpQuery struct {
	EntityID   string   `json:"entityId"`
	EntityType string   `json:"entityType"`
	Checks     []string `json:"checks"`
}

type httpAnswer struct {
	Facts map[string]struct {
		Found       bool     `json:"found"`
		Severity    Severity `json:"severity"`
		Weight      float64  `json:"weight"`
		Description string   `json:"description"`
	} `json:"facts"`
}

// Query implements Source.
func (s *HTTPSource) Query(ctx context.Context, ref EntityRef, checks CheckSet) (map[string]Fact, error) {
	if len(checks) == 0 {
		checks = s.checks
	}
	body, err := json.Marshal(httpQuery{
		EntityID:   ref.EntityID,
		EntityType: ref.EntityType,
		Checks:     checks,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// The registry rejected the request; retrying the same input
		// cannot help.
		return nil, retry.Permanent(fmt.Errorf("source %s: status %d", s.name, resp.StatusCode))
	default:
		return nil, fmt.Errorf("source %s: status %d", s.name, resp.StatusCode)
	}

	var answer httpAnswer
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return nil, fmt.Errorf("source %s: decode answer: %w", s.name, err)
	}

	facts := make(map[string]Fact, len(answer.Facts))
	for check, f := range answer.Facts {
		if !s.checks.Contains(check) {
			continue // Only answers for advertised checks count
		}
		facts[check] = Fact{
			Check:       check,
			Found:       f.Found,
			Severity:    f.Severity,
			Weight:      f.Weight,
			Description: f.Description,
		}
	}
	return facts, nil
}

var _ Source = (*HTTPSource)(nil)
