package impact

import (
	"strings"
	"unicode"

	"github.com/viant/fluxgate/model"
)

// ConfirmationText derives the phrase an approver must retype:
// "<VERB>-<TARGET>" uppercased, any run of characters other than letters
// and digits collapsed to a single dash. The result never equals one of the
// required checks.
func ConfirmationText(op *model.Operation, checks []string) string {
	kind := op.Kind
	verb := kind
	subject := kind
	if index := strings.LastIndex(kind, "."); index != -1 {
		verb = kind[index+1:]
		subject = kind[:index]
	}
	target := op.Target
	if target == "" {
		target = subject
	}
	text := normalize(verb + "-" + target)
	if text == "" {
		text = "CONFIRM"
	}
	for _, check := range checks {
		if check == text {
			return text + "-CONFIRM"
		}
	}
	return text
}

func normalize(value string) string {
	var builder strings.Builder
	dash := false
	for _, r := range strings.ToUpper(value) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			builder.WriteRune(r)
			dash = false
			continue
		}
		if !dash && builder.Len() > 0 {
			builder.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(builder.String(), "-")
}
