package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/viper"

	"github.com/agenda_os/backend/internal/models"
)

// LoadPolicies reads the subject and sector tables once at start. A missing
// file yields empty tables, which fall back to the built-in defaults.
func LoadPolicies(path string) (models.Policies, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			return models.Policies{}, nil
		}
		return models.Policies{}, fmt.Errorf("read policies %s: %w", path, err)
	}

	var p models.Policies
	if err := v.Unmarshal(&p); err != nil {
		return models.Policies{}, fmt.Errorf("decode policies %s: %w", path, err)
	}
	return p, validatePolicies(p)
}

func validatePolicies(p models.Policies) error {
	for code, sp := range p.Subjects {
		if sp.MaxLeadDays < 0 || sp.MinLeadDays < 0 {
			return fmt.Errorf("subject %s: lead days must not be negative", code)
		}
		if sp.MaxLeadDays > 0 && sp.MinLeadDays > sp.MaxLeadDays {
			return fmt.Errorf("subject %s: min lead %d exceeds max lead %d", code, sp.MinLeadDays, sp.MaxLeadDays)
		}
	}
	for id, sp := range p.Sectors {
		switch sp.Mode {
		case models.ModeInstallation:
			if sp.DailyLimit <= 0 {
				return fmt.Errorf("sector %s: installation mode needs daily_limit", id)
			}
		case models.ModeMaintenance:
			if sp.PeriodLimit.M <= 0 && sp.PeriodLimit.T <= 0 {
				return fmt.Errorf("sector %s: maintenance mode needs period_limit", id)
			}
		default:
			return fmt.Errorf("sector %s: unknown mode %q", id, sp.Mode)
		}
	}
	return nil
}
