package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Top-level YAML config key names used for shallow merge.
const (
	keyAPI           = "api"
	keyCache         = "cache"
	keyAuth          = "auth"
	keyStorage       = "storage"
	keyLogging       = "logging"
	keyNotifications = "notifications"
)

// knownTopLevelKeys lists the YAML keys that correspond to exported Config fields.
// Keys not in this list are silently ignored during merge.
//
//nolint:gochecknoglobals // Compile-time constant lookup table.
var knownTopLevelKeys = map[string]bool{
	keyAPI:           true,
	keyCache:         true,
	keyAuth:          true,
	keyStorage:       true,
	keyLogging:       true,
	keyNotifications: true,
}

// ShallowMergeYAML loads a YAML file and merges its top-level keys onto
// the target Config. Keys present in the overlay replace entire sections
// in the target. Keys absent in the overlay are left unchanged.
func ShallowMergeYAML(target *Config, overlayPath string) error {
	if target == nil {
		return errors.New("nil target *Config in ShallowMergeYAML")
	}

	data, err := os.ReadFile(overlayPath)
	if err != nil {
		return fmt.Errorf("reading overlay file %s: %w", overlayPath, err)
	}

	var overlay map[string]any
	if err = yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parsing overlay YAML from %s: %w", overlayPath, err)
	}

	// Empty or comment-only file: nothing to merge.
	if len(overlay) == 0 {
		return nil
	}

	for key, value := range overlay {
		if !knownTopLevelKeys[key] {
			continue
		}

		sectionBytes, marshalErr := yaml.Marshal(value)
		if marshalErr != nil {
			return fmt.Errorf("re-marshalling overlay section %q: %w", key, marshalErr)
		}

		if err = unmarshalSection(target, key, sectionBytes); err != nil {
			return fmt.Errorf("applying overlay section %q: %w", key, err)
		}
	}

	return nil
}

// unmarshalSection decodes one section into a fresh zero value and assigns it,
// so an overlay section fully replaces the target's.
func unmarshalSection(target *Config, key string, data []byte) error {
	switch key {
	case keyAPI:
		return replace(data, &target.API)
	case keyCache:
		return replace(data, &target.Cache)
	case keyAuth:
		return replace(data, &target.Auth)
	case keyStorage:
		return replace(data, &target.Storage)
	case keyLogging:
		return replace(data, &target.Logging)
	case keyNotifications:
		return replace(data, &target.Notifications)
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
}

func replace[T any](data []byte, dst *T) error {
	var v T
	if err := yaml.Unmarshal(data, &v); err != nil {
		return err
	}
	*dst = v
	return nil
}
