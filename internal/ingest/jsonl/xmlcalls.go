package jsonl

import "regexp"

// Some legacy assistant turns embed tool invocations as an XML-like block
// within plain text rather than as a structured content-block array
// (spec.md §4.4.1): <function_calls><invoke name="T"><parameter
// name="k">v</parameter>…</invoke></function_calls>, possibly followed by
// a <result>…</result>.
var (
	functionCallsRe = regexp.MustCompile(`(?s)<function_calls>(.*?)</function_calls>\s*(?:<result>(.*?)</result>)?`)
	invokeRe        = regexp.MustCompile(`(?s)<invoke name="([^"]+)">(.*?)</invoke>`)
	parameterRe     = regexp.MustCompile(`(?s)<parameter name="([^"]+)">(.*?)</parameter>`)
)

// xmlInvocation is one parsed <invoke> element plus its matched <result>,
// if any.
type xmlInvocation struct {
	ToolName string
	Args     map[string]string
	Result   string
}

// parseXMLInvocations finds every <function_calls> block in text and
// returns each <invoke> within it as an xmlInvocation.
func parseXMLInvocations(text string) []xmlInvocation {
	var out []xmlInvocation
	for _, fc := range functionCallsRe.FindAllStringSubmatch(text, -1) {
		invokeBlock, result := fc[1], fc[2]
		for _, inv := range invokeRe.FindAllStringSubmatch(invokeBlock, -1) {
			name, body := inv[1], inv[2]
			args := map[string]string{}
			for _, p := range parameterRe.FindAllStringSubmatch(body, -1) {
				args[p[1]] = p[2]
			}
			out = append(out, xmlInvocation{ToolName: name, Args: args, Result: result})
		}
	}
	return out
}
