// Package flags implements interfaces.FeatureFlags against the settings
// store, so flags can be toggled administratively without a redeploy.
package flags

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/domainpress/pipeline/internal/interfaces"
)

const keyPrefix = "flag:"

// SettingsFlags resolves a flag name to a settings-store key of the form
// "flag:<name>", parsed as a bool. A missing key defaults to disabled.
type SettingsFlags struct {
	settings interfaces.SettingsStore
}

// NewSettingsFlags builds a SettingsFlags over settings.
func NewSettingsFlags(settings interfaces.SettingsStore) *SettingsFlags {
	return &SettingsFlags{settings: settings}
}

func (f *SettingsFlags) IsEnabled(ctx context.Context, flagName string) (bool, error) {
	raw, err := f.settings.Get(ctx, keyPrefix+flagName)
	if err != nil {
		return false, fmt.Errorf("resolve flag %s: %w", flagName, err)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, nil
	}
	enabled, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("flag %s has non-boolean value %q: %w", flagName, raw, err)
	}
	return enabled, nil
}
