// Copyright (C) 2026 Desa Digital Nusantara (dev@desadigital.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for router behavior. Registered once at package init;
// all operations are thread-safe via the client library.
var (
	attemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wargabot",
		Subsystem: "routing",
		Name:      "attempts_total",
		Help:      "Plan attempts by credential tier and outcome",
	}, []string{"tier", "outcome"})

	cooldownsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wargabot",
		Subsystem: "routing",
		Name:      "cooldowns_total",
		Help:      "Cooldowns applied by reason",
	}, []string{"reason"})

	planExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "wargabot",
		Subsystem: "routing",
		Name:      "plan_exhausted_total",
		Help:      "Calls where every plan entry failed",
	})

	planSizeHistogram = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "wargabot",
		Subsystem: "routing",
		Name:      "plan_size",
		Help:      "Number of candidate pairs per generated plan",
		Buckets:   []float64{0, 1, 2, 4, 8, 16, 32},
	})

	tokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wargabot",
		Subsystem: "routing",
		Name:      "tokens_total",
		Help:      "Token usage by direction and model",
	}, []string{"direction", "model"})
)
