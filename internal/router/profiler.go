// In file: internal/router/profiler.go
package router

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/dileep-u-k/mcp-gateway/internal/api"
)

// ErrProfilerDisabled is returned by reads when no Redis client is configured.
var ErrProfilerDisabled = errors.New("profiler disabled")

// ProviderProfile tracks reliability and latency for one provider.
type ProviderProfile struct {
	Provider              string    `json:"provider" redis:"provider"`
	AvgLatencyMS          int64     `json:"avg_latency_ms" redis:"avg_latency_ms"`
	Status                string    `json:"status" redis:"status"`
	ErrorRate             float64   `json:"error_rate" redis:"error_rate"`
	TotalSuccesses        int64     `json:"total_successes" redis:"total_successes"`
	TotalFailures         int64     `json:"total_failures" redis:"total_failures"`
	TotalPromptTokens     int64     `json:"total_prompt_tokens" redis:"total_prompt_tokens"`
	TotalCompletionTokens int64     `json:"total_completion_tokens" redis:"total_completion_tokens"`
	LastConnect           time.Time `json:"last_connect" redis:"last_connect"`
}

// Profiler persists provider performance profiles in Redis. A nil Profiler
// is valid and turns every method into a no-op, so the router works without
// Redis configured.
type Profiler struct {
	rdb *redis.Client
}

// NewProfiler wraps a Redis client. A nil client yields a disabled profiler.
func NewProfiler(rdb *redis.Client) *Profiler {
	if rdb == nil {
		return nil
	}
	return &Profiler{rdb: rdb}
}

func (p *Profiler) enabled() bool {
	return p != nil && p.rdb != nil
}

func (p *Profiler) profileKey(provider string) string {
	return fmt.Sprintf("profile:%s", provider)
}

// GetProfile retrieves a provider's profile, creating a default one if it
// doesn't exist yet.
func (p *Profiler) GetProfile(ctx context.Context, provider string) (*ProviderProfile, error) {
	if !p.enabled() {
		return nil, ErrProfilerDisabled
	}
	key := p.profileKey(provider)
	data, err := p.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return p.createDefaultProfile(ctx, provider)
	}

	profile := &ProviderProfile{Provider: provider}
	profile.AvgLatencyMS, _ = strconv.ParseInt(data["avg_latency_ms"], 10, 64)
	profile.Status = data["status"]
	profile.ErrorRate, _ = strconv.ParseFloat(data["error_rate"], 64)
	profile.TotalSuccesses, _ = strconv.ParseInt(data["total_successes"], 10, 64)
	profile.TotalFailures, _ = strconv.ParseInt(data["total_failures"], 10, 64)
	profile.TotalPromptTokens, _ = strconv.ParseInt(data["total_prompt_tokens"], 10, 64)
	profile.TotalCompletionTokens, _ = strconv.ParseInt(data["total_completion_tokens"], 10, 64)
	profile.LastConnect, _ = time.Parse(time.RFC3339Nano, data["last_connect"])
	return profile, nil
}

func (p *Profiler) createDefaultProfile(ctx context.Context, provider string) (*ProviderProfile, error) {
	profile := &ProviderProfile{
		Provider:     provider,
		AvgLatencyMS: 2000,
		Status:       "online",
		LastConnect:  time.Now(),
	}

	key := p.profileKey(provider)
	pipe := p.rdb.Pipeline()
	pipe.HSet(ctx, key, "provider", profile.Provider)
	pipe.HSet(ctx, key, "avg_latency_ms", profile.AvgLatencyMS)
	pipe.HSet(ctx, key, "status", profile.Status)
	pipe.HSet(ctx, key, "error_rate", profile.ErrorRate)
	pipe.HSet(ctx, key, "total_successes", profile.TotalSuccesses)
	pipe.HSet(ctx, key, "total_failures", profile.TotalFailures)
	pipe.HSet(ctx, key, "total_prompt_tokens", profile.TotalPromptTokens)
	pipe.HSet(ctx, key, "total_completion_tokens", profile.TotalCompletionTokens)
	pipe.HSet(ctx, key, "last_connect", profile.LastConnect.Format(time.RFC3339Nano))
	_, err := pipe.Exec(ctx)

	log.Debug().Str("provider", provider).Msg("Created default provider profile")
	return profile, err
}

// RecordSuccess folds one handled route into the provider's profile. Latency
// uses an exponential moving average so a single slow call doesn't swamp the
// history.
func (p *Profiler) RecordSuccess(ctx context.Context, provider string, latency time.Duration, usage api.Usage) {
	if !p.enabled() {
		return
	}
	key := p.profileKey(provider)
	const alpha = 0.1

	err := p.rdb.Watch(ctx, func(tx *redis.Tx) error {
		currentStr, err := tx.HGet(ctx, key, "avg_latency_ms").Result()
		if err != nil && err != redis.Nil {
			return err
		}
		current, _ := strconv.ParseInt(currentStr, 10, 64)
		updated := int64((alpha * float64(latency.Milliseconds())) + ((1.0 - alpha) * float64(current)))
		_, err = tx.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "avg_latency_ms", updated)
			return nil
		})
		return err
	}, key)
	if err != nil {
		log.Warn().Err(err).Str("provider", provider).Msg("Failed to update latency profile")
	}

	pipe := p.rdb.Pipeline()
	successes := pipe.HIncrBy(ctx, key, "total_successes", 1)
	failures := pipe.HGet(ctx, key, "total_failures")
	pipe.HIncrBy(ctx, key, "total_prompt_tokens", int64(usage.PromptTokens))
	pipe.HIncrBy(ctx, key, "total_completion_tokens", int64(usage.CompletionTokens))
	pipe.HSet(ctx, key, "status", "online")
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warn().Err(err).Str("provider", provider).Msg("Failed to record route success")
		return
	}

	totalFailures, _ := strconv.ParseInt(failures.Val(), 10, 64)
	p.updateErrorRate(ctx, key, successes.Val(), totalFailures)
}

// RecordFailure folds one declined or failed attempt into the profile.
func (p *Profiler) RecordFailure(ctx context.Context, provider string) {
	if !p.enabled() {
		return
	}
	key := p.profileKey(provider)
	pipe := p.rdb.Pipeline()
	failures := pipe.HIncrBy(ctx, key, "total_failures", 1)
	successes := pipe.HGet(ctx, key, "total_successes")
	pipe.HSet(ctx, key, "status", "degraded")
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warn().Err(err).Str("provider", provider).Msg("Failed to record route failure")
		return
	}

	totalSuccesses, _ := strconv.ParseInt(successes.Val(), 10, 64)
	p.updateErrorRate(ctx, key, totalSuccesses, failures.Val())
}

// RecordConnect updates the profile after a connection attempt. The full
// profile is ensured first so connection events never create partial hashes.
func (p *Profiler) RecordConnect(ctx context.Context, provider string, ok bool) {
	if !p.enabled() {
		return
	}
	if _, err := p.GetProfile(ctx, provider); err != nil {
		log.Warn().Err(err).Str("provider", provider).Msg("Failed to ensure provider profile")
	}

	status := "offline"
	if ok {
		status = "online"
	}
	key := p.profileKey(provider)
	pipe := p.rdb.Pipeline()
	pipe.HSet(ctx, key, "status", status)
	pipe.HSet(ctx, key, "last_connect", time.Now().Format(time.RFC3339Nano))
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warn().Err(err).Str("provider", provider).Msg("Failed to record connection attempt")
	}
}

func (p *Profiler) updateErrorRate(ctx context.Context, key string, successes, failures int64) {
	total := successes + failures
	if total <= 0 {
		return
	}
	rate := float64(failures) / float64(total)
	if err := p.rdb.HSet(ctx, key, "error_rate", rate).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to update error rate")
	}
}
