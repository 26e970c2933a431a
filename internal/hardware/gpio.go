package hardware

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/warthog618/go-gpiocdev"
)

// LineConfig maps indicator names and the wake input to line offsets on a
// GPIO chip.
type LineConfig struct {
	Chip    string
	Outputs map[string]int
	// Wake is the offset of the active-low wake button, or -1 for none.
	Wake int
}

// GPIOManager handles the indicator output lines and the wake input line
type GPIOManager struct {
	chip   *gpiocdev.Chip
	lines  map[string]*gpiocdev.Line
	wake   *gpiocdev.Line
	onWake func()
	logger zerolog.Logger
	dryRun bool
}

// NewGPIOManager opens the chip and requests every configured line. onWake
// runs on the line's event goroutine for each falling edge.
func NewGPIOManager(cfg LineConfig, logger zerolog.Logger, dryRun bool, onWake func()) (*GPIOManager, error) {
	gm := &GPIOManager{
		lines:  make(map[string]*gpiocdev.Line),
		onWake: onWake,
		logger: logger,
		dryRun: dryRun,
	}

	if dryRun {
		return gm, nil
	}

	chip, err := gpiocdev.NewChip(cfg.Chip)
	if err != nil {
		return nil, fmt.Errorf("failed to open GPIO chip %s: %w", cfg.Chip, err)
	}
	gm.chip = chip

	if err := gm.initializeLines(cfg); err != nil {
		gm.Close()
		return nil, fmt.Errorf("failed to initialize GPIO lines: %w", err)
	}

	return gm, nil
}

func (gm *GPIOManager) initializeLines(cfg LineConfig) error {
	for name, offset := range cfg.Outputs {
		line, err := gm.chip.RequestLine(offset, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("ble-ota"))
		if err != nil {
			return fmt.Errorf("failed to request %s GPIO %d: %w", name, offset, err)
		}
		gm.lines[name] = line
		gm.logger.Debug().Str("line", name).Int("offset", offset).Msg("Requested indicator line")
	}

	if cfg.Wake < 0 {
		return nil
	}

	wake, err := gm.chip.RequestLine(cfg.Wake,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithConsumer("ble-ota-wake"),
		gpiocdev.WithEventHandler(gm.handleWakeEdge),
	)
	if err != nil {
		return fmt.Errorf("failed to request wake GPIO %d: %w", cfg.Wake, err)
	}
	gm.wake = wake

	gm.logger.Info().
		Str("chip", cfg.Chip).
		Int("outputs", len(gm.lines)).
		Int("wake", cfg.Wake).
		Msg("Initialized GPIO lines")
	return nil
}

func (gm *GPIOManager) handleWakeEdge(evt gpiocdev.LineEvent) {
	gm.logger.Debug().Int("offset", evt.Offset).Uint32("seqno", evt.Seqno).Msg("Wake edge")
	if gm.onWake != nil {
		gm.onWake()
	}
}

// Set drives the named output line.
func (gm *GPIOManager) Set(name string, on bool) error {
	value := 0
	if on {
		value = 1
	}

	if gm.dryRun {
		gm.logger.Debug().Str("line", name).Int("value", value).Msg("DRY RUN: Would set GPIO")
		return nil
	}

	line, exists := gm.lines[name]
	if !exists {
		return fmt.Errorf("%s GPIO line not initialized", name)
	}

	if err := line.SetValue(value); err != nil {
		return fmt.Errorf("failed to set %s GPIO: %w", name, err)
	}
	return nil
}

// ArmWake re-enables edge detection on the wake line, dropping edges seen
// while it was disabled.
func (gm *GPIOManager) ArmWake() error {
	if gm.dryRun || gm.wake == nil {
		return nil
	}

	if err := gm.wake.Reconfigure(gpiocdev.WithoutEdges); err != nil {
		return fmt.Errorf("failed to disable wake edge detection: %w", err)
	}
	if err := gm.wake.Reconfigure(gpiocdev.WithFallingEdge); err != nil {
		return fmt.Errorf("failed to enable wake edge detection: %w", err)
	}
	return nil
}

// Close releases all GPIO resources
func (gm *GPIOManager) Close() error {
	if gm.dryRun {
		return nil
	}

	var errs []error
	for name, line := range gm.lines {
		if err := line.Close(); err != nil {
			gm.logger.Warn().Err(err).Str("line", name).Msg("Failed to close GPIO line")
			errs = append(errs, err)
		}
	}
	if gm.wake != nil {
		if err := gm.wake.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if gm.chip != nil {
		if err := gm.chip.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	gm.logger.Info().Msg("Closed GPIO manager")
	return errors.Join(errs...)
}
