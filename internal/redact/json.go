package redact

import "github.com/boshu2/recall/internal/types"

// RedactJSON recursively redacts string leaves of v, preserving the overall
// structure (maps, slices, scalars). Each redacted leaf contributes its own
// matches to the returned manifest; Start/End in each match are relative to
// that leaf's own original string, not to a reserialized document, since
// there is no single linear offset space once a JSON tree is involved.
func RedactJSON(v any) (any, types.RedactionManifest) {
	var manifest types.RedactionManifest
	out := redactValue(v, &manifest)
	return out, manifest
}

func redactValue(v any, manifest *types.RedactionManifest) any {
	switch val := v.(type) {
	case string:
		r := Redact(val)
		manifest.Redactions = append(manifest.Redactions, r.Manifest.Redactions...)
		return r.Text
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = redactValue(child, manifest)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = redactValue(child, manifest)
		}
		return out
	default:
		return v
	}
}
