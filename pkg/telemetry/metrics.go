package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Dispatch / relay counters exported on /metrics. Registered via promauto
// on the default registry, served by promhttp in internal/app.
var (
	// DispatchAttempts counts upstream call attempts by outcome:
	// success, rate_limited, failed.
	DispatchAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "branchchat_dispatch_attempts_total",
		Help: "Upstream completion attempts by outcome.",
	}, []string{"outcome"})

	// DispatchExhausted counts requests that found no usable credential.
	DispatchExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "branchchat_dispatch_exhausted_total",
		Help: "Chat requests that exhausted the credential pool.",
	})

	// CredentialCooldowns counts credentials parked after a 429.
	CredentialCooldowns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "branchchat_credential_cooldowns_total",
		Help: "Credentials placed in cool-down after a rate-limit response.",
	})

	// RelayChunks counts text chunks forwarded to clients.
	RelayChunks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "branchchat_relay_chunks_total",
		Help: "Plain-text chunks relayed to chat clients.",
	})

	// RelayParseSkips counts malformed upstream event lines that were
	// logged and skipped without aborting the stream.
	RelayParseSkips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "branchchat_relay_parse_skips_total",
		Help: "Malformed upstream stream events skipped.",
	})

	// CommitFailures counts conversation persistence failures after a
	// delivered stream (the known stream-then-persist window).
	CommitFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "branchchat_commit_failures_total",
		Help: "Conversation commits that failed after streaming.",
	})
)
