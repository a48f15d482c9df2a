// Package config handles configuration loading, parsing, and validation
// from defaults, an optional YAML file and VKWATCH_ environment variables.
package config
