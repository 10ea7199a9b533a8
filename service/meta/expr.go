// Package meta expands ${env.KEY} references in configuration text.
package meta

import (
	"os"
	"strings"
	"unicode"
)

const envPrefix = "${env."

// Lookup resolves a variable name.
type Lookup func(key string) (string, bool)

// ExpandEnv replaces every ${env.KEY} in value with the environment variable
// KEY; unset variables expand to "".
func ExpandEnv(value string) string {
	return Expand(value, os.LookupEnv)
}

// Expand replaces every ${env.KEY} in value using lookup. A reference whose
// key is not made of letters, digits and '_' is kept verbatim; a reference
// without closing brace ends the expansion.
func Expand(value string, lookup Lookup) string {
	if !strings.Contains(value, envPrefix) {
		return value
	}
	var b strings.Builder
	b.Grow(len(value))
	i := 0
	for {
		idx := strings.Index(value[i:], envPrefix)
		if idx < 0 {
			b.WriteString(value[i:])
			break
		}
		b.WriteString(value[i : i+idx])
		keyStart := i + idx + len(envPrefix)
		keyLen := strings.IndexByte(value[keyStart:], '}')
		if keyLen < 0 {
			b.WriteString(value[i+idx:])
			break
		}
		key := value[keyStart : keyStart+keyLen]
		if !isKey(key) {
			// rescan after the prefix so nested references still expand
			b.WriteString(envPrefix)
			i = keyStart
			continue
		}
		if resolved, ok := lookup(key); ok {
			b.WriteString(resolved)
		}
		i = keyStart + keyLen + 1
	}
	return b.String()
}

func isKey(key string) bool {
	for _, r := range key {
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_') {
			return false
		}
	}
	return true
}
