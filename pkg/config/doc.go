// Package config loads gateway configuration from CAREGATE_* environment
// variables and validates it before anything starts listening.
//
// The rate-limit policy file is the one piece of configuration that can
// change at runtime; WatchPolicyFile re-reads it on filesystem events so
// operators can tighten a limit without a restart.
package config
