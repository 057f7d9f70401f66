// Copyright (C) 2025 InnerShift AI (engineering@innershift.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// generate_script_docs generates a markdown reference of the embedded
// protocol scripts, one section per modality.
//
// Usage:
//
//	go run scripts/generate_script_docs.go > docs/script_reference.md
//
// The generated reference includes:
//   - Every step id with its expected input shape
//   - Menu tokens and their display labels
//   - Validator assignments and terminal steps
//   - Bridge variants and substitution sources
//
// Wording authors use the step ids from this reference to key their
// override files; the engine rejects overrides that name unknown steps.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/InnerShiftAI/InnerShiftCore/services/protocol/scripts"
)

func main() {
	set, err := scripts.LoadEmbedded()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading embedded scripts: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("# Protocol Script Reference")
	fmt.Println()
	fmt.Println("Generated from the embedded script set. Do not edit by hand;")
	fmt.Println("run `go run scripts/generate_script_docs.go` after changing the YAML.")
	fmt.Println()

	totalSteps := 0
	shapeCounts := map[string]int{}

	for _, name := range set.Names() {
		script := set.Modality(name)
		fmt.Printf("## %s\n\n", name)
		fmt.Printf("Entry step: `%s` (%d steps)\n\n", script.Entry, len(script.Steps))
		fmt.Println("| Step | Expects | Buttons | Validator | Notes |")
		fmt.Println("|------|---------|---------|-----------|-------|")

		for i := range script.Steps {
			step := &script.Steps[i]
			totalSteps++
			shapeCounts[expectLabel(step)]++
			fmt.Printf("| `%s` | %s | %s | %s | %s |\n",
				step.ID,
				expectLabel(step),
				buttonsColumn(step),
				orDash(step.Validator),
				notesColumn(step),
			)
		}
		fmt.Println()
	}

	fmt.Println("## Summary")
	fmt.Println()
	fmt.Printf("- Modalities: %d\n", len(set.Names()))
	fmt.Printf("- Steps: %d\n", totalSteps)
	for _, shape := range []string{"button", "yes_no", "free_text", "terminal"} {
		if n := shapeCounts[shape]; n > 0 {
			fmt.Printf("  - %s: %d\n", shape, n)
		}
	}
	fmt.Println()
	fmt.Printf("_Generated %s_\n", time.Now().UTC().Format(time.RFC3339))
}

func expectLabel(step *scripts.StepSpec) string {
	if step.Terminal {
		return "terminal"
	}
	return step.Expect
}

// buttonsColumn pairs tokens with labels the way clients display them.
func buttonsColumn(step *scripts.StepSpec) string {
	if len(step.Buttons) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(step.Buttons))
	for i, b := range step.Buttons {
		if i < len(step.Labels) && step.Labels[i] != "" {
			parts = append(parts, fmt.Sprintf("`%s` %s", b, step.Labels[i]))
		} else {
			parts = append(parts, fmt.Sprintf("`%s`", b))
		}
	}
	return strings.Join(parts, ", ")
}

func notesColumn(step *scripts.StepSpec) string {
	var notes []string
	if step.Intro != "" {
		notes = append(notes, "intro variant")
	}
	if len(step.Bridges) > 0 {
		notes = append(notes, fmt.Sprintf("%d bridge(s)", len(step.Bridges)))
	}
	if step.Source != "" && step.Source != "none" {
		notes = append(notes, "substitutes {"+step.Source+"}")
	}
	if len(notes) == 0 {
		return "-"
	}
	return strings.Join(notes, "; ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return "`" + s + "`"
}
