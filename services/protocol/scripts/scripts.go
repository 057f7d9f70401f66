// Copyright (C) 2025 InnerShift AI (engineering@innershift.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scripts holds the modality step wording as data.
//
// The engine prescribes mechanics (substitution sources, cycles, bridges)
// while the clinical wording is supplied by modality authors as YAML. The
// default scripts are baked into the binary with go:embed so a deployment
// always has a complete, validated set; an optional override directory lets
// authors adjust wording without a rebuild (see the catalog watcher).
//
// A script never controls routing. Transition logic lives in the modality
// drivers, and validator names resolve to Go implementations, so a wording
// change cannot alter gate or graph behavior.
package scripts

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/InnerShiftAI/InnerShiftCore/pkg/validation"
)

// Substitution sources a step template may draw from. Each step names
// exactly one; the renderer resolves it against the session context.
const (
	SourceNone            = "none"             // template has no placeholder
	SourceProblem         = "problem"          // problem of record (working restatement, else original)
	SourceProblemOriginal = "problem_original" // always the original intake statement
	SourceResponse        = "response"         // the answer recorded at SourceStep
	SourceIdentity        = "identity"         // the named identity
	SourceBelief          = "belief"           // the named belief
	SourceGoal            = "goal"             // the goal statement
	SourceEvent           = "event"            // the trauma event description
)

// Expected input shapes, used by clients to pick an input surface and by
// the catalog to assign default validators.
const (
	ExpectFreeText = "free_text"
	ExpectYesNo    = "yes_no"
	ExpectButton   = "button"
)

// Token returns the template placeholder a substitution source fills, or
// "" for SourceNone. The original statement and the working restatement
// share {problem}: which value fills it is the source's concern, not the
// template's.
func Token(source string) string {
	switch source {
	case SourceProblem, SourceProblemOriginal:
		return "{problem}"
	case SourceResponse:
		return "{response}"
	case SourceIdentity:
		return "{identity}"
	case SourceBelief:
		return "{belief}"
	case SourceGoal:
		return "{goal}"
	case SourceEvent:
		return "{event}"
	}
	return ""
}

// StepSpec is the authored wording and input contract of one step.
type StepSpec struct {
	ID string `yaml:"id"`

	// Template is the step's prompt. It may reference its substitution
	// source once or more as {problem}, {response}, {identity}, {belief},
	// {goal} or {event}.
	Template string `yaml:"template"`

	// Intro, when set on a cycle entry step, is rendered instead of
	// Template on the very first visit (before any lap, with no pending
	// return target). Later laps render Template.
	Intro string `yaml:"intro,omitempty"`

	// Bridges maps a checking-question id to the one-time variant rendered
	// when the cycle re-enters after that check failed. The "default" key
	// applies to checks without their own entry.
	Bridges map[string]string `yaml:"bridges,omitempty"`

	Source     string `yaml:"source"`
	SourceStep string `yaml:"source_step,omitempty"`

	Expect string `yaml:"expect"`

	// Buttons are the literal menu tokens accepted at this step; Labels
	// are the parallel display strings shown by clients.
	Buttons []string `yaml:"buttons,omitempty"`
	Labels  []string `yaml:"labels,omitempty"`

	// Validator names the free-text validator for this step. Empty picks
	// the default for Expect.
	Validator string `yaml:"validator,omitempty"`

	Terminal bool `yaml:"terminal,omitempty"`
}

// ModalityScript is one modality's full wording set.
type ModalityScript struct {
	Modality string     `yaml:"modality"`
	Entry    string     `yaml:"entry"`
	Steps    []StepSpec `yaml:"steps"`
}

// Step returns the spec for id, or nil.
func (m *ModalityScript) Step(id string) *StepSpec {
	for i := range m.Steps {
		if m.Steps[i].ID == id {
			return &m.Steps[i]
		}
	}
	return nil
}

// Set is a complete script collection keyed by modality name. The key
// "intake" holds the shared pre-method graph.
type Set struct {
	Modalities map[string]*ModalityScript
}

// Modality returns the script for name, or nil.
func (s *Set) Modality(name string) *ModalityScript {
	return s.Modalities[name]
}

// Names returns the modality names in sorted order.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.Modalities))
	for name := range s.Modalities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// The default wording shipped with the engine. Baked in at compile time so
// the binary always carries a complete, validated script set.
//
//go:embed embedded/*.yaml
var embeddedFS embed.FS

// LoadEmbedded parses and validates the built-in script set.
func LoadEmbedded() (*Set, error) {
	set := &Set{Modalities: make(map[string]*ModalityScript)}

	entries, err := fs.ReadDir(embeddedFS, "embedded")
	if err != nil {
		return nil, fmt.Errorf("read embedded scripts: %w", err)
	}
	for _, entry := range entries {
		data, err := embeddedFS.ReadFile("embedded/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read embedded script %s: %w", entry.Name(), err)
		}
		ms, err := parseScript(data)
		if err != nil {
			return nil, fmt.Errorf("embedded script %s: %w", entry.Name(), err)
		}
		if _, dup := set.Modalities[ms.Modality]; dup {
			return nil, fmt.Errorf("embedded script %s: duplicate modality %q", entry.Name(), ms.Modality)
		}
		set.Modalities[ms.Modality] = ms
	}
	return set, nil
}

// LoadDir parses override scripts from dir (non-recursive, *.yaml only).
// Each file replaces the whole modality it names. A missing dir is not an
// error; overrides are optional.
func LoadDir(dir string) (map[string]*ModalityScript, error) {
	overrides := make(map[string]*ModalityScript)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return overrides, nil
		}
		return nil, fmt.Errorf("read script dir %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read script %s: %w", entry.Name(), err)
		}
		ms, err := parseScript(data)
		if err != nil {
			return nil, fmt.Errorf("script %s: %w", entry.Name(), err)
		}
		overrides[ms.Modality] = ms
	}
	return overrides, nil
}

// Merge returns a new Set with overrides replacing same-named modalities.
// The receiver is not modified; catalogs built from earlier sets keep
// serving their snapshot.
func (s *Set) Merge(overrides map[string]*ModalityScript) *Set {
	merged := &Set{Modalities: make(map[string]*ModalityScript, len(s.Modalities))}
	for name, ms := range s.Modalities {
		merged.Modalities[name] = ms
	}
	for name, ms := range overrides {
		merged.Modalities[name] = ms
	}
	return merged
}

// parseScript unmarshals and structurally validates one script document.
func parseScript(data []byte) (*ModalityScript, error) {
	var ms ModalityScript
	if err := yaml.Unmarshal(data, &ms); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if err := ms.validate(); err != nil {
		return nil, err
	}
	return &ms, nil
}

// validate checks the script's internal consistency. Cross-references into
// transition tables are checked later at catalog build.
func (m *ModalityScript) validate() error {
	if err := validation.ValidateModalityName(m.Modality); err != nil {
		return err
	}
	if m.Entry == "" {
		return fmt.Errorf("modality %s: entry is empty", m.Modality)
	}
	if len(m.Steps) == 0 {
		return fmt.Errorf("modality %s: no steps", m.Modality)
	}

	seen := make(map[string]struct{}, len(m.Steps))
	for i := range m.Steps {
		step := &m.Steps[i]
		if step.ID == "" {
			return fmt.Errorf("modality %s: step %d has no id", m.Modality, i)
		}
		if _, dup := seen[step.ID]; dup {
			return fmt.Errorf("modality %s: duplicate step id %q", m.Modality, step.ID)
		}
		seen[step.ID] = struct{}{}

		if step.Template == "" && !step.Terminal {
			return fmt.Errorf("modality %s: step %s has no template", m.Modality, step.ID)
		}

		switch step.Source {
		case SourceNone, SourceProblem, SourceProblemOriginal, SourceIdentity,
			SourceBelief, SourceGoal, SourceEvent:
			if step.SourceStep != "" {
				return fmt.Errorf("modality %s: step %s sets source_step with source %q", m.Modality, step.ID, step.Source)
			}
		case SourceResponse:
			if step.SourceStep == "" {
				return fmt.Errorf("modality %s: step %s needs source_step for source response", m.Modality, step.ID)
			}
		default:
			return fmt.Errorf("modality %s: step %s has unknown source %q", m.Modality, step.ID, step.Source)
		}

		// A declared source that the template never references is authoring
		// drift: the step would silently render without its substitution.
		if tok := Token(step.Source); tok != "" && step.Template != "" && !strings.Contains(step.Template, tok) {
			return fmt.Errorf("modality %s: step %s names source %q but its template never uses %s", m.Modality, step.ID, step.Source, tok)
		}

		switch step.Expect {
		case ExpectFreeText, ExpectYesNo:
			if len(step.Buttons) > 0 {
				return fmt.Errorf("modality %s: step %s sets buttons with expect %q", m.Modality, step.ID, step.Expect)
			}
		case ExpectButton:
			if len(step.Buttons) == 0 {
				return fmt.Errorf("modality %s: step %s expects buttons but configures none", m.Modality, step.ID)
			}
			if len(step.Labels) > 0 && len(step.Labels) != len(step.Buttons) {
				return fmt.Errorf("modality %s: step %s has %d labels for %d buttons", m.Modality, step.ID, len(step.Labels), len(step.Buttons))
			}
		case "":
			if step.Terminal {
				break // terminal steps take no input
			}
			return fmt.Errorf("modality %s: step %s has no expect", m.Modality, step.ID)
		default:
			return fmt.Errorf("modality %s: step %s has unknown expect %q", m.Modality, step.ID, step.Expect)
		}
	}

	if _, ok := seen[m.Entry]; !ok {
		return fmt.Errorf("modality %s: entry %q is not a defined step", m.Modality, m.Entry)
	}

	// source_step targets must exist within the modality.
	for i := range m.Steps {
		step := &m.Steps[i]
		if step.Source == SourceResponse {
			if _, ok := seen[step.SourceStep]; !ok {
				return fmt.Errorf("modality %s: step %s sources response at undefined step %q", m.Modality, step.ID, step.SourceStep)
			}
		}
	}
	return nil
}
