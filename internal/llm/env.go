package llm

import "strings"

// FilterEnv returns a copy of environ without entries matching any of the
// given prefixes. Each prefix should include the trailing "=".
func FilterEnv(environ []string, excludePrefixes ...string) []string {
	result := make([]string, 0, len(environ))
	for _, e := range environ {
		filtered := false
		for _, prefix := range excludePrefixes {
			if strings.HasPrefix(e, prefix) {
				filtered = true
				break
			}
		}
		if !filtered {
			result = append(result, e)
		}
	}
	return result
}
