package hardware

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

var validGovernors = map[string]bool{
	"ondemand":     true,
	"powersave":    true,
	"performance":  true,
	"conservative": true,
	"userspace":    true,
	"schedutil":    true,
}

// GovernorManager handles CPU governor management
type GovernorManager struct {
	logger  zerolog.Logger
	dryRun  bool
	cpuPath string
	current string
}

// NewGovernorManager creates a new CPU governor manager
func NewGovernorManager(logger zerolog.Logger, dryRun bool) *GovernorManager {
	return &GovernorManager{
		logger:  logger,
		dryRun:  dryRun,
		cpuPath: "/sys/devices/system/cpu/cpu0/cpufreq/scaling_governor",
	}
}

// SetGovernor sets the CPU governor
func (gm *GovernorManager) SetGovernor(governor string) error {
	if !validGovernors[governor] {
		return fmt.Errorf("invalid governor: %s", governor)
	}

	if gm.dryRun {
		gm.logger.Info().Str("governor", governor).Msg("DRY RUN: Would set CPU governor")
		gm.current = governor
		return nil
	}

	if err := os.WriteFile(gm.cpuPath, []byte(governor), 0644); err != nil {
		return fmt.Errorf("failed to set CPU governor to %s: %w", governor, err)
	}

	gm.current = governor
	gm.logger.Info().Str("governor", governor).Msg("Set CPU governor")
	return nil
}

// GetGovernor returns the current CPU governor
func (gm *GovernorManager) GetGovernor() (string, error) {
	if gm.dryRun {
		return gm.current, nil
	}

	data, err := os.ReadFile(gm.cpuPath)
	if err != nil {
		return "", fmt.Errorf("failed to read CPU governor: %w", err)
	}

	gm.current = strings.TrimSpace(string(data))
	return gm.current, nil
}
