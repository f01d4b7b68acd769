// Package config defines the updater settings and provides helpers to load,
// validate and save them in YAML format.
//
// Load fills defaults, expands "~" in paths and falls back to the
// RELEASE_UPDATER_TOKEN variable (from the environment or a .env file next to
// the settings file) when no token is configured.
package config
