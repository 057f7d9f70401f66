// Copyright (C) 2025 InnerShift AI (engineering@innershift.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// serviceVersion is reported by /health and bumped on release.
const serviceVersion = "0.4.0"

// startTime anchors the uptime reported by HealthCheck.
var startTime = time.Now()

// HealthCheck reports liveness. The payload shape matches the other
// InnerShift services so probes and dashboards stay uniform.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"service":  "innershift-engine",
		"version":  serviceVersion,
		"uptime_s": int64(time.Since(startTime).Seconds()),
	})
}
