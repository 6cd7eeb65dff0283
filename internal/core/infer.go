package core

import (
	"regexp"
	"strings"
)

var (
	// Decimal literal grammar: "12", "-3.5", "1.", ".5", "6e-3".
	numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

	// Unsigned integer literals with a radix prefix: 0x1F, 0b101, 0o17.
	radixRegex = regexp.MustCompile(`^0([xX][0-9a-fA-F]+|[bB][01]+|[oO][0-7]+)$`)

	// Day/month/year in any order with - or / separators, or an ISO-8601
	// timestamp prefix.
	dateRegex = regexp.MustCompile(`^\d{1,4}[-/]\d{1,2}[-/]\d{1,4}$|^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}`)
)

var booleanValues = map[string]struct{}{
	"true": {}, "false": {},
	"yes": {}, "no": {},
	"0": {}, "1": {},
	"y": {}, "n": {},
}

// InferDataType classifies a column from its sampled values. Rules are
// checked in order and the first that holds for every value wins:
// number, date, boolean. Empty input and anything else yield string.
//
// Only the sampled distinct values are inspected, so a mixed column whose
// odd values fall outside the sample is misclassified.
func InferDataType(values []string) DataType {
	if len(values) == 0 {
		return TypeString
	}
	if all(values, isNumeric) {
		return TypeNumber
	}
	if all(values, dateRegex.MatchString) {
		return TypeDate
	}
	if all(values, isBoolean) {
		return TypeBoolean
	}
	return TypeString
}

func all(values []string, pred func(string) bool) bool {
	for _, v := range values {
		if !pred(v) {
			return false
		}
	}
	return true
}

// isNumeric reports whether v is a numeric literal once surrounding
// whitespace is removed. Blank values are never numeric.
func isNumeric(v string) bool {
	s := strings.TrimSpace(v)
	if s == "" {
		return false
	}
	switch s {
	case "Infinity", "+Infinity", "-Infinity":
		return true
	}
	return numericRegex.MatchString(s) || radixRegex.MatchString(s)
}

func isBoolean(v string) bool {
	_, ok := booleanValues[strings.ToLower(v)]
	return ok
}
