package hardware

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Redis keys mirrored by the manager
const (
	IndicatorsKey = "ble-ota:indicators"
	SystemKey     = "system"
)

// Parker parks the platform until a wake source fires.
type Parker interface {
	Park(ctx context.Context) error
}

// ParkFunc adapts a function to Parker.
type ParkFunc func(ctx context.Context) error

func (f ParkFunc) Park(ctx context.Context) error { return f(ctx) }

// Manager coordinates indicator and governor control and mirrors their
// state into Redis
type Manager struct {
	gpio     *GPIOManager
	governor *GovernorManager
	redis    *redis.Client
	logger   zerolog.Logger
	ctx      context.Context
}

// NewManager creates a new hardware manager
func NewManager(ctx context.Context, redisClient *redis.Client, cfg LineConfig, logger zerolog.Logger, dryRun bool, onWake func()) (*Manager, error) {
	gpio, err := NewGPIOManager(cfg, logger, dryRun, onWake)
	if err != nil {
		return nil, fmt.Errorf("failed to create GPIO manager: %w", err)
	}

	return &Manager{
		gpio:     gpio,
		governor: NewGovernorManager(logger, dryRun),
		redis:    redisClient,
		logger:   logger,
		ctx:      ctx,
	}, nil
}

// Set drives an indicator output and updates its Redis state
func (m *Manager) Set(name string, on bool) error {
	if err := m.gpio.Set(name, on); err != nil {
		return err
	}

	value := "off"
	if on {
		value = "on"
	}

	pipe := m.redis.Pipeline()
	pipe.HSet(m.ctx, IndicatorsKey, name, value)
	pipe.Publish(m.ctx, IndicatorsKey, name)
	if _, err := pipe.Exec(m.ctx); err != nil {
		m.logger.Warn().Err(err).Str("indicator", name).Msg("Failed to update indicator state in Redis")
	}

	return nil
}

// ArmWake re-arms the wake input line.
func (m *Manager) ArmWake() error {
	return m.gpio.ArmWake()
}

// SetCPUGovernor sets the CPU governor and updates Redis state
func (m *Manager) SetCPUGovernor(governor string) error {
	if err := m.governor.SetGovernor(governor); err != nil {
		return err
	}

	pipe := m.redis.Pipeline()
	pipe.HSet(m.ctx, SystemKey, "cpu:governor", governor)
	pipe.Publish(m.ctx, SystemKey, "cpu:governor")
	if _, err := pipe.Exec(m.ctx); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to update CPU governor state in Redis")
	}

	return nil
}

// ParkWith returns a Parker running inner under the powersave governor and
// restoring the previous governor afterwards.
func (m *Manager) ParkWith(inner Parker) Parker {
	return ParkFunc(func(ctx context.Context) error {
		previous, err := m.governor.GetGovernor()
		if err != nil {
			m.logger.Warn().Err(err).Msg("Could not read current CPU governor")
		}

		if err := m.SetCPUGovernor("powersave"); err != nil {
			m.logger.Warn().Err(err).Msg("Failed to switch to powersave governor")
		}

		parkErr := inner.Park(ctx)

		if previous != "" && previous != "powersave" {
			if err := m.SetCPUGovernor(previous); err != nil {
				m.logger.Warn().Err(err).Str("governor", previous).Msg("Failed to restore CPU governor")
			}
		}
		return parkErr
	})
}

// InitializeRedisState sets initial Redis state, all indicators off
func (m *Manager) InitializeRedisState(names []string) error {
	pipe := m.redis.Pipeline()
	for _, name := range names {
		pipe.HSet(m.ctx, IndicatorsKey, name, "off")
	}
	pipe.Publish(m.ctx, IndicatorsKey, "all")

	if _, err := pipe.Exec(m.ctx); err != nil {
		return fmt.Errorf("failed to initialize Redis indicator state: %w", err)
	}

	m.logger.Info().Strs("indicators", names).Msg("Initialized Redis indicator state")
	return nil
}

// Close releases all hardware resources
func (m *Manager) Close() error {
	return m.gpio.Close()
}
