package device

import (
	"encoding/json"
	"os"

	"spigot/core"
)

// Config describes one simulated device instance.
type Config struct {
	// MCU is the name reported in the dictionary.
	MCU string `json:"mcu"`

	// FifoDepth sets both word buffer depths. Must be a power of two.
	FifoDepth int `json:"fifo_depth"`

	// TraceDepth sets the waveform ring size.
	TraceDepth int `json:"trace_depth"`

	// Peripheral names the model wired to the serial lines: "null",
	// "echo" or "shiftreg".
	Peripheral string `json:"peripheral"`

	// ShiftLine is the select line index a shiftreg peripheral listens
	// on; ShiftPreload is the byte it drives out first.
	ShiftLine    uint8 `json:"shift_line"`
	ShiftPreload uint8 `json:"shift_preload"`

	// TickHz paces free-running mode; FreeRun starts it with the
	// server. StatusEvery broadcasts a status frame every N free-run
	// ticks (0 disables the broadcast).
	TickHz      int    `json:"tick_hz"`
	FreeRun     bool   `json:"free_run"`
	StatusEvery uint32 `json:"status_every"`
}

// DefaultConfig returns the configuration the simulator starts with
// when no file is given.
func DefaultConfig() Config {
	cfg := Config{}
	applyDefaults(&cfg)
	return cfg
}

// LoadConfig parses a JSON configuration and fills in defaults.
func LoadConfig(jsonData []byte) (Config, error) {
	var cfg Config
	if err := json.Unmarshal(jsonData, &cfg); err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)
	return cfg, nil
}

// LoadConfigFile reads and parses a configuration file.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return LoadConfig(data)
}

// applyDefaults fills missing values with the simulator defaults.
func applyDefaults(cfg *Config) {
	if cfg.MCU == "" {
		cfg.MCU = "spigot-sim"
	}
	if cfg.FifoDepth == 0 {
		cfg.FifoDepth = core.DefaultDepth
	}
	if cfg.TraceDepth == 0 {
		cfg.TraceDepth = 64
	}
	if cfg.Peripheral == "" {
		cfg.Peripheral = "null"
	}
	if cfg.TickHz == 0 {
		cfg.TickHz = 10000
	}
}
