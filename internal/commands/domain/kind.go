package domain

import (
	"strings"

	"carebot-cloud/internal/apperr"
)

// Kind names what the robot should do.
type Kind string

const (
	KindMoveTo             Kind = "MOVE_TO"
	KindSpeak              Kind = "SPEAK"
	KindChangeLCDMode      Kind = "CHANGE_LCD_MODE"
	KindSetVolume          Kind = "SET_VOLUME"
	KindDispenseMedication Kind = "DISPENSE_MEDICATION"
	KindStartPatrol        Kind = "START_PATROL"
	KindReturnToDock       Kind = "RETURN_TO_DOCK"
	KindStop               Kind = "STOP"
)

// NormalizeKind upper-cases and trims k.
func NormalizeKind(k string) Kind {
	return Kind(strings.ToUpper(strings.TrimSpace(k)))
}

type paramRule struct {
	key   string
	shape string
	check func(any) bool
}

var requiredParams = map[Kind][]paramRule{
	KindMoveTo:             {{key: "location", shape: "non-empty string", check: nonEmptyString}},
	KindSpeak:              {{key: "text", shape: "non-empty string", check: nonEmptyString}},
	KindChangeLCDMode:      {{key: "mode", shape: "non-empty string", check: nonEmptyString}},
	KindSetVolume:          {{key: "volume", shape: "number between 0 and 100", check: percent}},
	KindDispenseMedication: {{key: "medicationId", shape: "non-empty string", check: nonEmptyString}},
}

// ValidateParams checks params against the required keys of kind. Unknown kinds require nothing.
func ValidateParams(kind Kind, params map[string]any) error {
	for _, rule := range requiredParams[kind] {
		value, ok := params[rule.key]
		if !ok {
			return apperr.Invalid("command %s: missing param %q", kind, rule.key)
		}
		if !rule.check(value) {
			return apperr.Invalid("command %s: param %q must be a %s", kind, rule.key, rule.shape)
		}
	}
	return nil
}

func nonEmptyString(v any) bool {
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) != ""
}

func percent(v any) bool {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	default:
		return false
	}
	return f >= 0 && f <= 100
}
