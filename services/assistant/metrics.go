// Copyright (C) 2026 Desa Digital Nusantara (dev@desadigital.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package assistant

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Orchestrator Metrics
// =============================================================================

var (
	handleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "wargabot",
		Subsystem: "assistant",
		Name:      "handle_duration_seconds",
		Help:      "End-to-end message handling latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"intent"})

	handledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wargabot",
		Subsystem: "assistant",
		Name:      "handled_total",
		Help:      "Messages handled, by intent and outcome.",
	}, []string{"intent", "outcome"})

	gateRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wargabot",
		Subsystem: "assistant",
		Name:      "gate_retries_total",
		Help:      "Hallucination-gate interventions, by action taken.",
	}, []string{"action"})

	budgetRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "wargabot",
		Subsystem: "assistant",
		Name:      "budget_rejected_total",
		Help:      "Messages answered without a model call because the user budget ran out.",
	})
)
