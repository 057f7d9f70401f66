// Copyright (C) 2025 InnerShift AI (engineering@innershift.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the engine service.
//
// # Authentication
//
// The service authenticates with a single shared API key carried in the
// X-API-Key header. When no key is configured the gate is open: every
// request passes, which is how local development and the CLI run against
// a scratch instance. This mirrors the deployment model of the sibling
// transcription service.
//
// # Tenant Scoping
//
// Every session route is scoped to the tenant named by the X-Tenant-ID
// header. The middleware only extracts and stores the value; format
// validation happens in the request datatypes so the rules live in one
// place.
package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// =============================================================================
// Headers and Context Keys
// =============================================================================

const (
	// HeaderAPIKey is the request header carrying the shared API key.
	HeaderAPIKey = "X-API-Key"

	// HeaderTenantID is the request header naming the tenant scope.
	HeaderTenantID = "X-Tenant-ID"
)

// tenantIDKey is the gin context key for the extracted tenant id.
// Using a package-prefixed key prevents collisions with other context values.
const tenantIDKey = "innershift_tenant_id"

// =============================================================================
// API Key Middleware
// =============================================================================

// APIKeyAuth creates a middleware that checks the X-API-Key header against
// the configured key.
//
// # Description
//
// An empty configured key disables the check entirely (open mode). With a
// key configured, requests must present the exact key; the comparison runs
// over SHA-256 digests with subtle.ConstantTimeCompare so neither content
// nor length differences leak through timing.
//
// # Inputs
//
//   - key: The configured API key. Empty string means open mode.
//
// # Outputs
//
//   - gin.HandlerFunc: Middleware that aborts with 401 on mismatch.
//
// # Examples
//
//	v1 := router.Group("/v1")
//	v1.Use(middleware.APIKeyAuth(cfg.APIKey))
func APIKeyAuth(key string) gin.HandlerFunc {
	if key == "" {
		return func(c *gin.Context) { c.Next() }
	}

	want := sha256.Sum256([]byte(key))
	return func(c *gin.Context) {
		got := sha256.Sum256([]byte(c.GetHeader(HeaderAPIKey)))
		if subtle.ConstantTimeCompare(want[:], got[:]) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid api key",
			})
			return
		}
		c.Next()
	}
}

// =============================================================================
// Tenant Middleware
// =============================================================================

// TenantRequired creates a middleware that extracts the X-Tenant-ID header
// and aborts with 400 when it is missing.
//
// # Description
//
// Handlers downstream read the value with TenantID(c). The header is
// trimmed but otherwise passed through; charset and length rules are
// enforced by the datatypes validators.
func TenantRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant := strings.TrimSpace(c.GetHeader(HeaderTenantID))
		if tenant == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "missing " + HeaderTenantID + " header",
			})
			return
		}
		c.Set(tenantIDKey, tenant)
		c.Next()
	}
}

// TenantID returns the tenant id extracted by TenantRequired, or "" when
// the middleware did not run for this request.
func TenantID(c *gin.Context) string {
	if v, exists := c.Get(tenantIDKey); exists {
		if tenant, ok := v.(string); ok {
			return tenant
		}
	}
	return ""
}
