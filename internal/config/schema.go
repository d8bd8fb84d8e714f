package config

import (
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// rawSchema rejects unknown top-level sections and obviously mistyped
// values before mapstructure gets a chance to weakly coerce them.
const rawSchema = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "app":      {"type": "object"},
    "exchange": {"type": "object"},
    "admin":    {"type": "object"},
    "notify":   {"type": "object"},
    "store":    {"type": "object"},
    "signals":  {"type": "object"},
    "trading": {
      "type": "object",
      "properties": {
        "symbols":  {"type": "array", "items": {"type": "string"}},
        "dry_run":  {"type": "boolean"},
        "cooldown_sec": {"type": "integer", "minimum": 0}
      }
    },
    "risk": {
      "type": "object",
      "properties": {
        "risk_per_trade_pct":  {"type": "number"},
        "leverage":            {"type": "integer"},
        "sl_fixed_pct":        {"type": "number"},
        "min_notional_usdt":   {"type": "number"},
        "max_daily_loss":      {"type": "number"},
        "min_account_balance": {"type": "number"},
        "max_drawdown":        {"type": "number"}
      }
    },
    "exits": {
      "type": "object",
      "properties": {
        "place_exits_on_exchange": {"type": "boolean"},
        "working_type": {"enum": ["MARK_PRICE", "CONTRACT_PRICE"]},
        "tp_levels": {"type": "array", "items": {"type": "number"}},
        "tp_shares": {"type": "array", "items": {"type": "number"}}
      }
    }
  }
}`

var compiledSchema = jsonschema.MustCompileString("config.schema.json", rawSchema)

// validateSchema checks the raw settings map read from the YAML file.
// The settings round-trip through encoding/json so the validator sees
// plain JSON types.
func validateSchema(settings map[string]any) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return compiledSchema.Validate(doc)
}
