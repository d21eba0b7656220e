// Package config defines the updater settings and provides helpers to load,
// validate and save them in YAML format.
//
// Values from the file can be overridden by AGENT_UPDATER_* environment
// variables, and Validate fills the defaults every stage relies on.
package config
