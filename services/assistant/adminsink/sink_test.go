// Copyright (C) 2026 Desa Digital Nusantara (dev@desadigital.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package adminsink

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSink_DeliversReports(t *testing.T) {
	var mu sync.Mutex
	var received []Report
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var report Report
		require.NoError(t, json.NewDecoder(r.Body).Decode(&report))
		mu.Lock()
		received = append(received, report)
		mu.Unlock()
	}))
	defer server.Close()

	sink := NewHTTPSink(server.URL, 16)
	require.NoError(t, sink.Start(context.Background()))

	sink.Report(Report{Kind: ReportConflict, TenantId: "desa-01"})
	sink.Report(Report{Kind: ReportKnowledgeGap, TenantId: "desa-01", Query: "jam buka"})

	require.NoError(t, sink.Stop())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 2)
	assert.Equal(t, ReportConflict, received[0].Kind)
	assert.False(t, received[0].CreatedAt.IsZero(), "CreatedAt must be stamped")
}

func TestHTTPSink_FullQueueDropsWithoutBlocking(t *testing.T) {
	// Sink never started, so nothing drains the queue.
	sink := NewHTTPSink("http://localhost:0", 2)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			sink.Report(Report{Kind: ReportKnowledgeGap, TenantId: "desa-01"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Report must never block, even with a full queue")
	}
}

func TestHTTPSink_FailedDeliveryDoesNotPanic(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	sink := NewHTTPSink(server.URL, 4)
	require.NoError(t, sink.Start(context.Background()))
	sink.Report(Report{Kind: ReportConflict, TenantId: "desa-01"})
	require.NoError(t, sink.Stop())
}

func TestHTTPSink_StopIsIdempotent(t *testing.T) {
	sink := NewHTTPSink("http://localhost:0", 4)
	require.NoError(t, sink.Start(context.Background()))
	require.NoError(t, sink.Stop())
	assert.NoError(t, sink.Stop())
}

func TestHTTPSink_DoubleStartFails(t *testing.T) {
	sink := NewHTTPSink("http://localhost:0", 4)
	require.NoError(t, sink.Start(context.Background()))
	assert.Error(t, sink.Start(context.Background()))
	require.NoError(t, sink.Stop())
}
