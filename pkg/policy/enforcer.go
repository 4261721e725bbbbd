package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/third-eye/overseer/pkg/envelope"
	"github.com/third-eye/overseer/pkg/store"
)

// DeniedError is a policy rejection carrying the HTTP status the API layer
// must emit.
type DeniedError struct {
	Status int
	Detail string
}

func (e *DeniedError) Error() string {
	return e.Detail
}

func denied(status int, detail string) *DeniedError {
	return &DeniedError{Status: status, Detail: detail}
}

// Limits holds the deployment-wide defaults applied when a key carries no
// explicit limit of its own.
type Limits struct {
	PerMinute     int
	WindowSeconds int
	MaxPerRequest int
	DailyBudget   int64
}

// DefaultLimits returns the built-in limit defaults.
func DefaultLimits() Limits {
	return Limits{
		PerMinute:     60,
		WindowSeconds: 60,
		MaxPerRequest: 100000,
		DailyBudget:   1000000,
	}
}

// Enforcer runs the policy admission chain. Check order is fixed: key
// lookup with the rate limit counted at the attempt, then tenant guard,
// tool/branch allow-list, and budget reservation. Counting the attempt
// inside Authenticate means requests rejected by a later guard still burn
// rate budget.
type Enforcer struct {
	keys     store.APIKeyStore
	counters CounterStore
	defaults Limits
	now      func() time.Time
}

// NewEnforcer builds an Enforcer over the given key store and counters.
func NewEnforcer(keys store.APIKeyStore, counters CounterStore, defaults Limits) *Enforcer {
	return &Enforcer{keys: keys, counters: counters, defaults: defaults, now: time.Now}
}

// Authenticate resolves the API key and applies the rate limit. The secret
// is hashed immediately; the raw value never travels further.
func (e *Enforcer) Authenticate(ctx context.Context, secret string) (*store.APIKey, error) {
	if secret == "" {
		return nil, denied(http.StatusUnauthorized, "Missing API key")
	}

	key, err := e.keys.GetKeyByHash(ctx, HashKey(secret))
	if errors.Is(err, store.ErrNotFound) {
		return nil, denied(http.StatusForbidden, "Invalid API key")
	}
	if err != nil {
		return nil, err
	}

	now := e.now()
	if key.RevokedAt != nil && !key.RevokedAt.After(now) {
		return nil, denied(http.StatusForbidden, "API key revoked")
	}
	if key.ExpiresAt != nil && !key.ExpiresAt.After(now) {
		return nil, denied(http.StatusForbidden, "API key expired")
	}

	if err := e.checkRate(ctx, key); err != nil {
		return nil, err
	}

	// last_used_at is informational; a failed touch never blocks the call.
	if err := e.keys.TouchKey(ctx, key.ID, now); err != nil {
		slog.Warn("failed to touch api key", "key_id", key.ID, "error", err)
	} else {
		key.LastUsedAt = &now
	}
	return key, nil
}

func (e *Enforcer) checkRate(ctx context.Context, key *store.APIKey) error {
	perMinute := key.Limits.PerMinute
	if perMinute <= 0 {
		perMinute = e.defaults.PerMinute
	}
	windowSec := key.Limits.WindowSeconds
	if windowSec <= 0 {
		windowSec = e.defaults.WindowSeconds
	}
	window := time.Duration(windowSec) * time.Second

	windowStart := e.now().UTC().Truncate(window).Unix()
	counterKey := fmt.Sprintf("overseer:rate:%s:%d", key.ID, windowStart)

	count, err := e.counters.Incr(ctx, counterKey, 2*window)
	if err != nil {
		return err
	}
	if count > int64(perMinute) {
		return denied(http.StatusTooManyRequests, "Rate limit exceeded")
	}
	return nil
}

// CheckTenant enforces tenant isolation. Admin keys see every tenant, and
// an operator key with no tenant binding does too. Consumer keys are
// confined to their bound tenant plus any extra allow-listed ones; an
// unbound consumer key only reaches untenanted sessions.
func (e *Enforcer) CheckTenant(key *store.APIKey, tenant string) error {
	if key.Role == store.RoleAdmin {
		return nil
	}
	if key.Role == store.RoleOperator && key.Tenant == "" && len(key.Limits.Tenants) == 0 {
		return nil
	}
	if tenant == key.Tenant {
		return nil
	}
	for _, t := range key.Limits.Tenants {
		if t == tenant {
			return nil
		}
	}
	return denied(http.StatusForbidden, "Tenant mismatch")
}

// CheckTool enforces the per-key tool and branch allow-lists. Empty lists
// mean no restriction.
func (e *Enforcer) CheckTool(key *store.APIKey, tool envelope.Tool) error {
	if len(key.Limits.Branches) > 0 {
		allowed := false
		for _, b := range key.Limits.Branches {
			if b == tool.Branch() {
				allowed = true
				break
			}
		}
		if !allowed {
			return denied(http.StatusForbidden, "Branch not permitted for this key")
		}
	}
	if len(key.Limits.Tools) > 0 {
		for _, t := range key.Limits.Tools {
			if t == tool {
				return nil
			}
		}
		return denied(http.StatusForbidden, "Tool not permitted for this key")
	}
	return nil
}

// budgetTTL outlives the UTC day the counter key embeds.
const budgetTTL = 48 * time.Hour

// ReserveBudget rejects a request whose budget_tokens exceeds the per-request
// cap, then reserves the spend against the key's rolling UTC-day allowance.
// The reservation is a single atomic Add so two concurrent requests cannot
// both slip under the cap on a stale read; an over-cap reservation is
// refunded before the denial. Callers that reject the request after
// admission must return the reservation via RefundBudget.
func (e *Enforcer) ReserveBudget(ctx context.Context, key *store.APIKey, budgetTokens int) error {
	maxPerRequest := key.Limits.Budget.MaxPerRequest
	if maxPerRequest <= 0 {
		maxPerRequest = e.defaults.MaxPerRequest
	}
	if budgetTokens > maxPerRequest {
		return denied(http.StatusForbidden, "Per-request budget exceeded")
	}
	if budgetTokens <= 0 {
		return nil
	}

	daily := key.Limits.Budget.Daily
	if daily <= 0 {
		daily = e.defaults.DailyBudget
	}
	total, err := e.counters.Add(ctx, e.budgetKey(key.ID), int64(budgetTokens), budgetTTL)
	if err != nil {
		return err
	}
	if total > daily {
		if _, err := e.counters.Add(ctx, e.budgetKey(key.ID), -int64(budgetTokens), budgetTTL); err != nil {
			slog.Warn("failed to refund over-cap budget reservation", "key_id", key.ID, "error", err)
		}
		return denied(http.StatusForbidden, "Daily budget exceeded")
	}
	return nil
}

// RefundBudget returns a reservation made by ReserveBudget. Rejected calls
// must not consume budget.
func (e *Enforcer) RefundBudget(ctx context.Context, keyID string, budgetTokens int) error {
	if budgetTokens <= 0 {
		return nil
	}
	_, err := e.counters.Add(ctx, e.budgetKey(keyID), -int64(budgetTokens), budgetTTL)
	return err
}

func (e *Enforcer) budgetKey(keyID string) string {
	return fmt.Sprintf("overseer:budget:%s:%s", keyID, e.now().UTC().Format("2006-01-02"))
}
