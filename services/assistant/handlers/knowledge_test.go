// Copyright (C) 2026 Desa Digital Nusantara (dev@desadigital.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/desadigital/wargabot/services/assistant/grounding"
)

type fakeKnowledgeStore struct {
	upsertErr error
	deleteErr error
	deleted   []string
}

func (f *fakeKnowledgeStore) Upsert(_ context.Context, req grounding.UpsertRequest) (*grounding.UpsertResult, error) {
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	return &grounding.UpsertResult{ObjectsWritten: 1, Class: "VillageKnowledge"}, nil
}

func (f *fakeKnowledgeStore) DeleteBySource(_ context.Context, tenantID, source string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, tenantID+"/"+source)
	return nil
}

func TestCreateKnowledge_Success(t *testing.T) {
	router := gin.New()
	router.POST("/v1/knowledge", CreateKnowledge(&fakeKnowledgeStore{}))

	w := postJSON(router, "/v1/knowledge", grounding.UpsertRequest{
		TenantId: "desa-01",
		Source:   "profil_desa",
		Content:  "Jam pelayanan 08.00-15.00",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "objects_written")
}

func TestCreateKnowledge_MissingFields(t *testing.T) {
	router := gin.New()
	router.POST("/v1/knowledge", CreateKnowledge(&fakeKnowledgeStore{}))

	w := postJSON(router, "/v1/knowledge", map[string]string{"tenant_id": "desa-01"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateKnowledge_StoreError(t *testing.T) {
	store := &fakeKnowledgeStore{upsertErr: fmt.Errorf("embedding service unavailable")}
	router := gin.New()
	router.POST("/v1/knowledge", CreateKnowledge(store))

	w := postJSON(router, "/v1/knowledge", grounding.UpsertRequest{
		TenantId: "desa-01",
		Source:   "profil_desa",
		Content:  "x",
	})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "embedding service",
		"internal error detail must not leak to the caller")
}

func TestDeleteKnowledge_Success(t *testing.T) {
	store := &fakeKnowledgeStore{}
	router := gin.New()
	router.DELETE("/v1/knowledge", DeleteKnowledge(store))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("DELETE", "/v1/knowledge?tenant_id=desa-01&source=profil_desa", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"desa-01/profil_desa"}, store.deleted)
}

func TestDeleteKnowledge_MissingParams(t *testing.T) {
	router := gin.New()
	router.DELETE("/v1/knowledge", DeleteKnowledge(&fakeKnowledgeStore{}))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("DELETE", "/v1/knowledge?tenant_id=desa-01", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
