package models

import "time"

// Credential is an upstream API secret with usage and cool-down metadata.
// The dispatcher mutates LastUsedTS on every selection and CooldownUntilTS
// on a rate-limit response; deletion is an administrative action only.
type Credential struct {
	ID     string `json:"id"`
	Secret string `json:"secret"`
	// Last used timestamp (ns)
	LastUsedTS int64 `json:"last_used_ts"`
	// Cool-down expiry (ns); zero means no active cool-down
	CooldownUntilTS int64 `json:"cooldown_until_ts,omitempty"`
}

// Available reports whether the credential may be selected at the given
// time: no cool-down, or a cool-down that has already expired.
func (c Credential) Available(now time.Time) bool {
	return c.CooldownUntilTS == 0 || c.CooldownUntilTS < now.UTC().UnixNano()
}

// Setting is a key/value pair from the settings collection (used for the
// system prompt default).
type Setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}
