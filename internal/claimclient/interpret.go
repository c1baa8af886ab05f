package claimclient

import (
	"encoding/json"
	"math"

	"github.com/and161185/awclaim/internal/model"
)

// Interpret classifies a decoded claim response. Branch order matters:
// status=="claimed" beats error, and anything else is Unexpected.
func Interpret(raw []byte, decoded any) model.ClaimResult {
	obj, ok := decoded.(map[string]any)
	if !ok {
		return model.Unexpected(json.RawMessage(raw))
	}
	if s, _ := obj["status"].(string); s == "claimed" {
		return model.Claimed(truthy(obj["user_verified"]))
	}
	if e, ok := obj["error"]; ok && truthy(e) {
		return model.Failed(reasonText(e))
	}
	return model.Unexpected(json.RawMessage(raw))
}

// truthy mirrors loose JSON truthiness: false, 0, NaN, "" and null are falsy.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0 && !math.IsNaN(x)
	case string:
		return x != ""
	default:
		return true
	}
}

func reasonText(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "unknown error"
	}
	return string(b)
}
