package config

import (
	"encoding/json"
	"os"

	"github.com/outletpos/syncengine/internal/flagx"
	"github.com/outletpos/syncengine/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify intervals either as strings like "30s"
// or as integer nanoseconds. After parsing, values are copied into the
// runtime Config (which uses time.Duration).
type JsonConfig struct {
	ServerBaseURL     string         `json:"server_base_url"`
	OutletID          string         `json:"outlet_id"`
	DatabasePath      string         `json:"database_path"`
	SyncInterval      timex.Duration `json:"sync_interval"`
	ProbeInterval     timex.Duration `json:"probe_interval"`
	RequestTimeout    timex.Duration `json:"request_timeout"`
	MaxRetries        *int           `json:"max_retries"`
	InitialRetryDelay timex.Duration `json:"initial_retry_delay"`
	BackoffFactor     *float64       `json:"backoff_factor"`
	MaxBackoff        timex.Duration `json:"max_backoff"`
	ConflictStrategy  string         `json:"conflict_strategy"`
}

// parseJson overlays Config with values loaded from a JSON file.
//
// Lookup order for the JSON file path:
//  1. Command-line flags (-c or -config) via flagx.JsonConfigFlags().
//  2. If empty, no JSON is loaded and the function returns.
//
// Only fields present in the file override the config; zero values from
// missing keys are ignored. Panics on read or unmarshal errors (caller
// should recover if desired).
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerBaseURL != "" {
		cfg.ServerBaseURL = jc.ServerBaseURL
	}
	if jc.OutletID != "" {
		cfg.OutletID = jc.OutletID
	}
	if jc.DatabasePath != "" {
		cfg.DatabasePath = jc.DatabasePath
	}
	if jc.SyncInterval.Duration != 0 {
		cfg.SyncInterval = jc.SyncInterval.Duration
	}
	if jc.ProbeInterval.Duration != 0 {
		cfg.ProbeInterval = jc.ProbeInterval.Duration
	}
	if jc.RequestTimeout.Duration != 0 {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.MaxRetries != nil {
		cfg.MaxRetries = *jc.MaxRetries
	}
	if jc.InitialRetryDelay.Duration != 0 {
		cfg.InitialRetryDelay = jc.InitialRetryDelay.Duration
	}
	if jc.BackoffFactor != nil {
		cfg.BackoffFactor = *jc.BackoffFactor
	}
	if jc.MaxBackoff.Duration != 0 {
		cfg.MaxBackoff = jc.MaxBackoff.Duration
	}
	if jc.ConflictStrategy != "" {
		cfg.ConflictStrategy = jc.ConflictStrategy
	}
}
