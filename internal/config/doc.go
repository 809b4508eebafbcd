// Package config provides configuration loading and validation for the
// smart-glass bridge service. It handles YAML-based configuration with
// struct validation covering the transport, session lifecycle, buffering
// limits, transcript gate tuning, Recognizer client and logging.
package config
