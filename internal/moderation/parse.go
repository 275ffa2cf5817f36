package moderation

import (
	"encoding/json"
	"strconv"
	"strings"
)

// wireVerdict mirrors the reply shape requested from the model. Fields are
// decoded loosely because models do not reliably honour JSON types.
type wireVerdict struct {
	IsAnomaly json.RawMessage `json:"is_anomaly"`
	Reason    json.RawMessage `json:"reason"`
	Analysis  json.RawMessage `json:"analysis"`
	Responses json.RawMessage `json:"responses"`
}

// ParseVerdict turns a raw model reply into a normalized Verdict. It never
// fails: undecodable replies yield ParseFailureVerdict, and every
// non-anomalous verdict is forced to the clean shape whatever else the
// model returned.
func ParseVerdict(reply string) Verdict {
	raw, ok := ExtractJSON(strings.TrimSpace(reply))
	if !ok {
		return ParseFailureVerdict()
	}

	var wire wireVerdict
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return ParseFailureVerdict()
	}

	if !coerceBool(wire.IsAnomaly) {
		return CleanVerdict()
	}

	analysis := coerceObject(wire.Analysis)
	responses := coerceObject(wire.Responses)
	return Verdict{
		IsAnomaly: true,
		Reason:    coerceString(wire.Reason),
		Analysis: Analysis{
			Attacker: coerceString(analysis["attacker"]),
			Victim:   coerceString(analysis["victim"]),
		},
		Responses: Responses{
			ToAttacker: coerceString(responses["to_attacker"]),
			ToVictim:   coerceString(responses["to_victim"]),
			ToOthers:   coerceString(responses["to_others"]),
		},
		Outcome: OutcomeAnomaly,
	}
}

// coerceBool accepts JSON booleans, numbers and boolean-looking strings.
// Anything else, including an absent field, is false.
func coerceBool(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return err == nil && b
	default:
		return false
	}
}

// coerceObject decodes a nested object; any other JSON value yields an
// empty map so its fields read as absent.
func coerceObject(raw json.RawMessage) map[string]json.RawMessage {
	var m map[string]json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &m) != nil {
		return nil
	}
	return m
}

// coerceString renders scalars as text; null, objects and arrays become "".
func coerceString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}
