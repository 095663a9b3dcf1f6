// Package redact scrubs secrets from text and JSON before it is persisted,
// producing a manifest of every span removed so later verification is
// possible (spec.md §4.2, §8 "Redaction purity").
//
// Detection is layered exactly the way therealtimex-entire-cli/redact does
// it: an explicit, typed pattern set runs first (closed taxonomy, stable
// type tags, see patterns.go), then a secondary pass via gitleaks's
// detect.Detector catches anything the explicit set misses and tags it
// "secret". A span already claimed by the first pass is never reclaimed by
// the second, so the explicit patterns' type tags are what callers see for
// every one of the spec's worked examples.
package redact

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"

	"github.com/boshu2/recall/internal/types"
)

var (
	gitleaksDetector     *detect.Detector
	gitleaksDetectorOnce sync.Once
)

func getDetector() *detect.Detector {
	gitleaksDetectorOnce.Do(func() {
		d, err := detect.NewDetectorDefaultConfig()
		if err != nil {
			return
		}
		gitleaksDetector = d
	})
	return gitleaksDetector
}

// span is a half-open byte range in the original (pre-redaction) text.
type span struct {
	start, end int
	typ        string
}

// Result is the outcome of redacting one piece of text.
type Result struct {
	Text           string
	Manifest       types.RedactionManifest
	HadRedactions  bool
}

// Redact scans text for secrets and returns the redacted text plus a
// manifest of every span removed. Redaction never fails: input with no
// matches comes back unchanged with an empty manifest.
func Redact(text string) Result {
	spans := findSpans(text)
	if len(spans) == 0 {
		return Result{Text: text}
	}

	manifest := types.RedactionManifest{Redactions: make([]types.RedactionMatch, 0, len(spans))}
	for _, s := range spans {
		sum := sha256.Sum256([]byte(text[s.start:s.end]))
		manifest.Redactions = append(manifest.Redactions, types.RedactionMatch{
			Type:         s.typ,
			Start:        s.start,
			End:          s.end,
			OriginalHash: hex.EncodeToString(sum[:])[:16],
		})
	}
	sort.Slice(manifest.Redactions, func(i, j int) bool {
		return manifest.Redactions[i].Start < manifest.Redactions[j].Start
	})

	// Replace rightmost-first so earlier indices stay valid as the string
	// shrinks/grows, matching spec.md §4.2.
	sortedByStartDesc := append([]span(nil), spans...)
	sort.Slice(sortedByStartDesc, func(i, j int) bool {
		return sortedByStartDesc[i].start > sortedByStartDesc[j].start
	})

	out := text
	for _, s := range sortedByStartDesc {
		out = out[:s.start] + "[REDACTED:" + s.typ + "]" + out[s.end:]
	}

	return Result{Text: out, Manifest: manifest, HadRedactions: true}
}

// findSpans returns every non-overlapping secret span in text, explicit
// typed patterns first, then gitleaks-detected spans for anything left.
func findSpans(text string) []span {
	var spans []span
	claimed := func(start, end int) bool {
		for _, s := range spans {
			if start < s.end && end > s.start {
				return true
			}
		}
		return false
	}

	for _, p := range patterns {
		if p.typ == "key_value_secret" {
			for _, m := range p.re.FindAllStringSubmatchIndex(text, -1) {
				start, end := m[2*keyValueGroup], m[2*keyValueGroup+1]
				if start < 0 || claimed(start, end) {
					continue
				}
				spans = append(spans, span{start: start, end: end, typ: p.typ})
			}
			continue
		}
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			if claimed(loc[0], loc[1]) {
				continue
			}
			spans = append(spans, span{start: loc[0], end: loc[1], typ: p.typ})
		}
	}

	if d := getDetector(); d != nil {
		for _, f := range d.DetectString(text) {
			if f.Secret == "" {
				continue
			}
			searchFrom := 0
			for {
				idx := strings.Index(text[searchFrom:], f.Secret)
				if idx < 0 {
					break
				}
				start := searchFrom + idx
				end := start + len(f.Secret)
				searchFrom = end
				if claimed(start, end) {
					continue
				}
				spans = append(spans, span{start: start, end: end, typ: "secret"})
			}
		}
	}

	return spans
}
