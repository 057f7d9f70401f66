// Copyright (C) 2025 InnerShift AI (engineering@innershift.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for identifiers that end up in storage
// keys, structured log fields, or file lookups. Using these validators
// keeps injection-shaped junk (path separators, newlines, control
// characters) out of keys and logs before it can do any damage.
package validation

import (
	"fmt"
	"regexp"
)

// sessionIDPattern matches the UUID form the engine issues for sessions.
// Session ids become storage key segments and URL path elements, so
// anything outside this shape is garbage by construction.
var sessionIDPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// modalityNamePattern matches script modality names: lowercase snake_case,
// max 40 characters. Modality names key catalog maps, metrics labels, and
// override merges.
var modalityNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,39}$`)

// ValidateSessionID validates a session identifier before it reaches the
// store or a log line.
//
// Valid session ids are lowercase UUIDs as issued by the engine. The
// caller decides how to respond; handlers treat a malformed id exactly
// like a miss so the id format stays an implementation detail.
//
// Example:
//
//	if err := validation.ValidateSessionID(id); err != nil {
//	    // respond as if the session does not exist
//	}
func ValidateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("session id cannot be empty")
	}
	if !sessionIDPattern.MatchString(id) {
		return fmt.Errorf("invalid session id format: %q", id)
	}
	return nil
}

// ValidateModalityName validates a script modality name from an override
// file before it participates in a catalog merge.
//
// Valid names are lowercase snake_case, 1-40 characters, starting with a
// letter.
func ValidateModalityName(name string) error {
	if name == "" {
		return fmt.Errorf("modality name cannot be empty")
	}
	if !modalityNamePattern.MatchString(name) {
		return fmt.Errorf("invalid modality name: %q (must be lowercase snake_case, max 40 chars)", name)
	}
	return nil
}
