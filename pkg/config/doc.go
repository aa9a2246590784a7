// Package config loads, defaults, and validates the relay's YAML
// configuration. Precedence is defaults, then the file, then
// RELAY_SECTION_FIELD environment overrides; the merged result is
// validated before any component sees it.
package config
