// Package artifact extracts generated-file bundles from a session
// message log.
package artifact

import (
	"github.com/agentdeck/agentdeck/internal/session"
)

// DefaultSlug is used when a generated message carries no slug.
const DefaultSlug = "agent"

// Validation summarizes the generator's own checks on a bundle.
type Validation struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Bundle is the most recent set of generated files found in a log,
// derived on demand and never stored; the message log stays the single
// source of truth.
type Bundle struct {
	Files      map[string]string `json:"files"`
	Slug       string            `json:"slug"`
	Validation Validation        `json:"validation"`
}

// Latest scans the log newest-first and returns the bundle carried by
// the most recent assistant message in the generated phase with a
// non-empty file map. It returns nil when no such message exists. The
// scan is pure: the same log always yields the same bundle.
func Latest(messages []session.Message) *Bundle {
	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		if msg.Role != session.RoleAssistant || msg.Metadata == nil {
			continue
		}
		phase, _ := msg.Metadata[session.MetaKeyPhase].(string)
		if phase != session.PhaseGenerated {
			continue
		}
		files := fileMap(msg.Metadata[session.MetaKeyFiles])
		if len(files) == 0 {
			continue
		}

		bundle := &Bundle{
			Files: files,
			Slug:  DefaultSlug,
		}
		if slug, ok := msg.Metadata[session.MetaKeySlug].(string); ok && slug != "" {
			bundle.Slug = slug
		}
		bundle.Validation = validation(msg.Metadata[session.MetaKeyValidation])
		return bundle
	}
	return nil
}

// fileMap coerces the metadata files value. Messages appended locally
// hold map[string]string; messages decoded from JSON hold
// map[string]any. Anything else yields no bundle.
func fileMap(v any) map[string]string {
	switch m := v.(type) {
	case map[string]string:
		out := make(map[string]string, len(m))
		for k, val := range m {
			out[k] = val
		}
		return out
	case map[string]any:
		out := make(map[string]string, len(m))
		for k, val := range m {
			if s, ok := val.(string); ok {
				out[k] = s
			}
		}
		return out
	default:
		return nil
	}
}

func validation(v any) Validation {
	switch val := v.(type) {
	case Validation:
		return val
	case map[string]any:
		out := Validation{}
		out.Valid, _ = val["valid"].(bool)
		out.Errors = stringSlice(val["errors"])
		out.Warnings = stringSlice(val["warnings"])
		return out
	default:
		return Validation{}
	}
}

func stringSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		var out []string
		for _, item := range s {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}
