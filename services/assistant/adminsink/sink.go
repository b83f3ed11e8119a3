// Copyright (C) 2026 Desa Digital Nusantara (dev@desadigital.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package adminsink reports knowledge conflicts and gaps to operators.
//
// Reporting is fire-and-forget over a bounded queue: the message path
// enqueues and moves on, a single worker drains the queue, and a full
// queue drops the report. A slow or dead admin endpoint must never slow
// down or fail a user reply.
package adminsink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/desadigital/wargabot/services/assistant/datatypes"
)

// =============================================================================
// Metrics
// =============================================================================

var (
	reportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wargabot",
		Subsystem: "adminsink",
		Name:      "reports_total",
		Help:      "Admin reports by kind and outcome.",
	}, []string{"kind", "outcome"})

	droppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "wargabot",
		Subsystem: "adminsink",
		Name:      "dropped_total",
		Help:      "Admin reports dropped because the queue was full.",
	})
)

// =============================================================================
// Report Types
// =============================================================================

// ReportKind labels what an admin report is about.
type ReportKind string

const (
	ReportConflict     ReportKind = "knowledge_conflict"
	ReportKnowledgeGap ReportKind = "knowledge_gap"
)

// Report is one admin-visibility event.
type Report struct {
	Kind      ReportKind                   `json:"kind"`
	TenantId  string                       `json:"tenant_id"`
	Query     string                       `json:"query,omitempty"`
	Conflicts []datatypes.KnowledgeConflict `json:"conflicts,omitempty"`
	Note      string                       `json:"note,omitempty"`
	CreatedAt time.Time                    `json:"created_at"`
}

// =============================================================================
// Sink
// =============================================================================

// Sink is the reporting surface the orchestrator uses.
type Sink interface {
	Report(report Report)
}

// defaultQueueSize bounds buffered reports awaiting delivery.
const defaultQueueSize = 256

// HTTPSink posts reports to an admin endpoint from a background worker.
//
// # Thread Safety
//
// Report is safe to call from any goroutine, including after Stop; reports
// arriving after shutdown are dropped.
type HTTPSink struct {
	url   string
	http  *http.Client
	queue chan Report

	mu      sync.Mutex
	running bool
	done    chan struct{}
	drained chan struct{}
}

// NewHTTPSink creates a sink posting to the given URL. queueSize of zero or
// less uses the default.
func NewHTTPSink(url string, queueSize int) *HTTPSink {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &HTTPSink{
		url:   url,
		http:  &http.Client{Timeout: 10 * time.Second},
		queue: make(chan Report, queueSize),
	}
}

// Start launches the delivery worker.
func (s *HTTPSink) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("admin sink is already running")
	}
	s.running = true
	s.done = make(chan struct{})
	s.drained = make(chan struct{})
	s.mu.Unlock()

	slog.Info("admin sink starting", "queue_size", cap(s.queue))
	go s.runLoop(ctx)
	return nil
}

// Stop signals the worker to exit after draining queued reports. Safe to
// call multiple times.
func (s *HTTPSink) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.done)
	drained := s.drained
	s.mu.Unlock()

	<-drained
	slog.Info("admin sink stopped")
	return nil
}

// Report enqueues one report. Never blocks; a full queue drops the report
// and counts the drop.
func (s *HTTPSink) Report(report Report) {
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now()
	}
	select {
	case s.queue <- report:
	default:
		droppedTotal.Inc()
		slog.Warn("admin report dropped, queue full",
			"kind", report.Kind, "tenant_id", report.TenantId)
	}
}

func (s *HTTPSink) runLoop(ctx context.Context) {
	defer close(s.drained)
	for {
		select {
		case report := <-s.queue:
			s.deliver(ctx, report)
		case <-s.done:
			// Drain whatever is already queued, then exit.
			for {
				select {
				case report := <-s.queue:
					s.deliver(ctx, report)
				default:
					return
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *HTTPSink) deliver(ctx context.Context, report Report) {
	body, err := json.Marshal(report)
	if err != nil {
		reportsTotal.WithLabelValues(string(report.Kind), "error").Inc()
		slog.Error("failed to marshal admin report", "error", err)
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		reportsTotal.WithLabelValues(string(report.Kind), "error").Inc()
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		reportsTotal.WithLabelValues(string(report.Kind), "error").Inc()
		slog.Warn("admin report delivery failed", "kind", report.Kind, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		reportsTotal.WithLabelValues(string(report.Kind), "error").Inc()
		slog.Warn("admin endpoint rejected report",
			"kind", report.Kind, "status", resp.StatusCode)
		return
	}
	reportsTotal.WithLabelValues(string(report.Kind), "ok").Inc()
}

// =============================================================================
// Nop Sink
// =============================================================================

// NopSink discards every report. Used when no admin endpoint is configured.
type NopSink struct{}

func (NopSink) Report(Report) {}
