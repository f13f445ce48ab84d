package agent

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vigialabs/vigia/internal/analyzer"
)

var (
	// ErrInvalidEntity is returned for requests without a usable entity ID.
	ErrInvalidEntity = errors.New("invalid entity")
	// ErrEmptyPayload is returned when no behavioral category is present.
	ErrEmptyPayload = errors.New("empty payload: no behavioral data to analyze")
	// ErrTimedOut is returned when the analysis deadline expires before
	// the local analyzers finish.
	ErrTimedOut = errors.New("analysis timed out")
)

// Payload carries the behavioral data for one analysis. Every category is
// optional; absent categories are simply not scored.
type Payload struct {
	Account     *analyzer.AccountData     `json:"account,omitempty"`
	Transaction *analyzer.TransactionData `json:"transaction,omitempty"`
	Location    *analyzer.LocationData    `json:"location,omitempty"`
	Device      *analyzer.DeviceData      `json:"device,omitempty"`
	Session     *analyzer.SessionData     `json:"session,omitempty"`
}

// Empty reports whether no category carries data.
func (p *Payload) Empty() bool {
	if p == nil {
		return true
	}
	return p.Account == nil && p.Transaction == nil && p.Location == nil &&
		p.Device == nil && p.Session == nil
}

// Request is one analysis request.
type Request struct {
	EntityID   string   `json:"entityId"`
	EntityType string   `json:"entityType"`
	Payload    *Payload `json:"payload"`
	// Context distinguishes otherwise-identical analyses in the cache:
	// channel, app version, request origin. It must contain everything
	// that should produce a distinct cached result.
	Context   map[string]string `json:"context,omitempty"`
	SkipCache bool              `json:"skipCache,omitempty"`
}

func (r *Request) validate() error {
	if r.EntityID == "" {
		return fmt.Errorf("%w: entity ID is required", ErrInvalidEntity)
	}
	if len(r.EntityID) > 255 {
		return fmt.Errorf("%w: entity ID exceeds 255 characters", ErrInvalidEntity)
	}
	if r.Payload.Empty() {
		return ErrEmptyPayload
	}
	return nil
}

// cacheKey derives the deterministic cache key for a request within a
// region. The context map marshals with sorted keys, so equal maps always
// hash equal.
func cacheKey(regionCode string, r *Request) string {
	ctxJSON, _ := json.Marshal(r.Context)
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|behavior|", regionCode, r.EntityID, r.EntityType)
	h.Write(ctxJSON)
	return hex.EncodeToString(h.Sum(nil))
}
