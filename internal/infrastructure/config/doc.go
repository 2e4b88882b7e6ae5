// Package config handles loading and validating Haunt Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Structural checks against an embedded JSON schema
//   - Overriding with environment variables
//   - Validation of thresholds, pin assignments and optional services
//
// Distance values are centimetres. Durations accept either a number of
// seconds or a Go duration string, so "cooldown_duration: 30" and
// "cooldown_duration: 30s" are equivalent.
//
// Sequence steps are kept in their raw ActionConfig form. Unknown action
// types pass validation here; the sequence engine reports and skips them at
// run time so a typo in one step does not stop the whole installation.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Detection.Trigger)
package config
