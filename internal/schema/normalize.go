package schema

import (
	"math/big"
	"strings"
)

// NormalizeTypedValue normalizes an extracted value based on the field's
// typing metadata. Values equal to the sentinel (or blank) come back as the
// sentinel unchanged.
func NormalizeTypedValue(value string, field Field, nullSentinel string) string {
	stripped := strings.TrimSpace(value)
	if stripped == "" || stripped == nullSentinel {
		return nullSentinel
	}

	switch {
	case field.SemanticType == SemanticPhone:
		return normalizePhone(stripped)
	case field.SemanticType == SemanticAmount || field.Kind == KindNumber:
		return normalizeDecimal(stripped)
	case field.SemanticType == SemanticPercentage:
		return normalizePercentage(stripped)
	case field.SemanticType == SemanticAddress:
		return strings.Join(strings.Fields(stripped), " ")
	case field.SemanticType == SemanticEmail:
		return strings.ToLower(stripped)
	case field.SemanticType == SemanticIBAN:
		return strings.ToUpper(strings.ReplaceAll(stripped, " ", ""))
	}
	return stripped
}

func normalizePhone(value string) string {
	var b strings.Builder
	for _, ch := range value {
		if (ch >= '0' && ch <= '9') || ch == '+' {
			b.WriteRune(ch)
		}
	}
	compact := b.String()
	if strings.HasPrefix(compact, "00") {
		return "+" + compact[2:]
	}
	if strings.Count(compact, "+") > 1 {
		return strings.ReplaceAll(compact, "+", "")
	}
	return compact
}

// normalizeDecimal rewrites "1 234,50" style numbers as "1234.5". Values that
// do not parse are returned untouched.
func normalizeDecimal(value string) string {
	compact := strings.ReplaceAll(strings.ReplaceAll(value, " ", ""), ",", ".")
	rat, ok := new(big.Rat).SetString(compact)
	if !ok {
		return value
	}
	out := rat.FloatString(6)
	if strings.Contains(out, ".") {
		out = strings.TrimRight(out, "0")
		out = strings.TrimSuffix(out, ".")
	}
	return out
}

func normalizePercentage(value string) string {
	compact := strings.TrimSpace(strings.ReplaceAll(value, "%", ""))
	return normalizeDecimal(compact) + "%"
}
