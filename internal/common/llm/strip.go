package llm

import "strings"

// StripCodeFences removes a surrounding markdown code fence from an LLM
// response, tolerating a language tag like ```json or ```sql.
func StripCodeFences(s string) string {
	out := strings.TrimSpace(s)
	if !strings.HasPrefix(out, "```") {
		return out
	}

	out = strings.TrimPrefix(out, "```")
	if idx := strings.IndexByte(out, '\n'); idx >= 0 {
		first := strings.TrimSpace(out[:idx])
		// Drop the language tag line if it is a single word
		if first == "" || !strings.ContainsAny(first, " \t") {
			out = out[idx+1:]
		}
	}
	out = strings.TrimSuffix(strings.TrimSpace(out), "```")
	return strings.TrimSpace(out)
}
