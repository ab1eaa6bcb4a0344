// Package cfg decodes raw TOML maps into typed service and interceptor configs.
package cfg

import (
	"fmt"
	"sort"

	"github.com/mitchellh/mapstructure"
)

// Setter is implemented by config structs that fill in their own defaults.
type Setter interface {
	ApplyDefaults()
}

func decode(input map[string]any, c any, md *mapstructure.Metadata) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Metadata:         md,
		Result:           c,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(input); err != nil {
		return err
	}
	if s, ok := c.(Setter); ok {
		s.ApplyDefaults()
	}
	return nil
}

// Decode decodes input into the pointer c. Durations may be given as
// strings such as "30s". If c implements Setter, ApplyDefaults runs after.
func Decode(input map[string]any, c any) error {
	return decode(input, c, nil)
}

// DecodeWithUnused is Decode that also reports keys c did not consume, sorted.
func DecodeWithUnused(input map[string]any, c any) ([]string, error) {
	var md mapstructure.Metadata
	if err := decode(input, c, &md); err != nil {
		return nil, err
	}
	unused := md.Unused
	sort.Strings(unused)
	return unused, nil
}

// MustDecodeStrict fails when input carries keys c does not know.
func MustDecodeStrict(input map[string]any, c any) error {
	unused, err := DecodeWithUnused(input, c)
	if err != nil {
		return err
	}
	if len(unused) > 0 {
		return fmt.Errorf("unused config keys: %v", unused)
	}
	return nil
}
