// Copyright (C) 2025 InnerShift AI (engineering@innershift.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

// =============================================================================
// Test Setup
// =============================================================================

func init() {
	gin.SetMode(gin.TestMode)
}

// newAuthRouter wires APIKeyAuth in front of a probe handler.
func newAuthRouter(key string) *gin.Engine {
	router := gin.New()
	router.GET("/probe", APIKeyAuth(key), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router
}

// =============================================================================
// APIKeyAuth Tests
// =============================================================================

func TestAPIKeyAuth_OpenModeWithoutKey(t *testing.T) {
	router := newAuthRouter("")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/probe", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPIKeyAuth_AcceptsMatchingKey(t *testing.T) {
	router := newAuthRouter("sekret")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/probe", nil)
	req.Header.Set(HeaderAPIKey, "sekret")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPIKeyAuth_RejectsBadKey(t *testing.T) {
	router := newAuthRouter("sekret")

	tests := []struct {
		name string
		key  string
	}{
		{"missing header", ""},
		{"wrong key", "not-the-key"},
		{"prefix of key", "sek"},
		{"key plus suffix", "sekret2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/probe", nil)
			if tt.key != "" {
				req.Header.Set(HeaderAPIKey, tt.key)
			}
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), "invalid api key")
		})
	}
}

// =============================================================================
// TenantRequired Tests
// =============================================================================

func TestTenantRequired_ExtractsHeader(t *testing.T) {
	router := gin.New()
	var seen string
	router.GET("/probe", TenantRequired(), func(c *gin.Context) {
		seen = TenantID(c)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/probe", nil)
	req.Header.Set(HeaderTenantID, "  acme  ")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "acme", seen, "header value should be trimmed")
}

func TestTenantRequired_RejectsMissingHeader(t *testing.T) {
	router := gin.New()
	router.GET("/probe", TenantRequired(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	for _, header := range []string{"", "   "} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/probe", nil)
		if header != "" {
			req.Header.Set(HeaderTenantID, header)
		}
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), HeaderTenantID)
	}
}

func TestTenantID_EmptyWithoutMiddleware(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/", nil)

	assert.Empty(t, TenantID(c))
}
