// Copyright (C) 2025 InnerShift AI (engineering@innershift.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package protocol

import "errors"

// Sentinel errors returned by the protocol engine. Callers are expected to
// match with errors.Is; the HTTP layer maps these to status codes.
var (
	// ErrUnknownStep reports a transition target that does not exist in the
	// active modality's registry. This is a programming-invariant violation:
	// the turn is aborted and the session marked errored. The engine never
	// substitutes a plausible-looking step; guessing here is how misrouted
	// prompts reached users in the first place.
	ErrUnknownStep = errors.New("protocol: unknown step id")

	// ErrUnknownMethod reports a session whose selected method has no
	// registered modality driver. Same fatal class as ErrUnknownStep.
	ErrUnknownMethod = errors.New("protocol: unknown method")

	// ErrSessionErrored reports an advance attempt on a session already
	// marked errored by a previous fatal failure.
	ErrSessionErrored = errors.New("protocol: session is errored")

	// ErrEmptyInput reports a turn with no usable input after trimming.
	ErrEmptyInput = errors.New("protocol: empty input")

	// ErrScriptInvalid reports a modality script that failed catalog
	// validation (missing step, dangling substitution source, bad expect).
	ErrScriptInvalid = errors.New("protocol: invalid modality script")
)
