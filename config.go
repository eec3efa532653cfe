package mantis_arm

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.viam.com/rdk/logging"

	"mantis_arm/kinematics"
)

// Defaults filled in by Validate.
const (
	DefaultBaudrate   = 57600
	DefaultSpeed      = 2.0
	DefaultCycleRate  = 30
	DefaultTimeout    = 5 * time.Second
	DefaultUIDTimeout = 10 * time.Second
	DefaultUIDRetries = 3
)

type MantisConfig struct {
	// Serial communication settings
	Port     string        `json:"port" toml:"port"`                             // Required: serial port path (e.g. "/dev/ttyACM0")
	Baudrate int           `json:"baudrate,omitempty" toml:"baudrate"`           // default: 57600
	Timeout  time.Duration `json:"timeout,omitempty" toml:"timeout"`             // serial read timeout (default: 5s)

	// Arm model
	Model    string                 `json:"model,omitempty" toml:"model"`       // "mantis" or "mantis-gripper"
	Geometry *kinematics.Geometry   `json:"geometry,omitempty" toml:"geometry"` // replaces the model's link lengths
	Limits   map[string]LimitConfig `json:"limits,omitempty" toml:"limits"`     // per joint letter overrides

	// Motion parameters
	Speed     float64 `json:"speed,omitempty" toml:"speed"`           // jog step scale (default: 2)
	CycleRate int     `json:"cycle_rate_hz,omitempty" toml:"cycle_rate_hz"` // update loop rate (default: 30)

	// Robot ID issuance
	UIDServiceURL string        `json:"uid_service_url,omitempty" toml:"uid_service_url"`
	UIDTimeout    time.Duration `json:"uid_timeout,omitempty" toml:"uid_timeout"`
	UIDRetries    uint64        `json:"uid_retries,omitempty" toml:"uid_retries"`

	// Not serialized
	Logger logging.Logger `json:"-" toml:"-"`
}

// LimitConfig overrides the limit of one joint. Free joints wrap instead of
// stopping; hard limits reject moves instead of clamping them.
type LimitConfig struct {
	Min  float64 `json:"min" toml:"min"`
	Max  float64 `json:"max" toml:"max"`
	Hard bool    `json:"hard,omitempty" toml:"hard"`
	Free bool    `json:"free,omitempty" toml:"free"`
}

// Validate ensures all parts of the config are valid
func (cfg *MantisConfig) Validate(path string) ([]string, []string, error) {
	if cfg.Port == "" {
		return nil, nil, fmt.Errorf("%s: must specify port for serial communication", path)
	}

	// Set defaults
	if cfg.Baudrate == 0 {
		cfg.Baudrate = DefaultBaudrate
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Model == "" {
		cfg.Model = kinematics.ModelMantis
	}
	if cfg.Speed == 0 {
		cfg.Speed = DefaultSpeed
	}
	if cfg.CycleRate == 0 {
		cfg.CycleRate = DefaultCycleRate
	}
	if cfg.UIDServiceURL == "" {
		cfg.UIDServiceURL = DefaultUIDServiceURL
	}
	if cfg.UIDTimeout == 0 {
		cfg.UIDTimeout = DefaultUIDTimeout
	}
	if cfg.UIDRetries == 0 {
		cfg.UIDRetries = DefaultUIDRetries
	}

	// Validate ranges
	if cfg.Baudrate < 0 {
		return nil, nil, fmt.Errorf("%s: baudrate must be positive, got %d", path, cfg.Baudrate)
	}
	if cfg.Speed < 0 {
		return nil, nil, fmt.Errorf("%s: speed must be positive, got %v", path, cfg.Speed)
	}
	if cfg.CycleRate < 1 || cfg.CycleRate > 1000 {
		return nil, nil, fmt.Errorf("%s: cycle_rate_hz must be between 1 and 1000, got %d", path, cfg.CycleRate)
	}
	if _, err := cfg.JointLimits(); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	if _, err := cfg.ArmModel(); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}

	return nil, nil, nil
}

// JointLimits returns the default limits with the configured overrides
// applied, or nil when nothing is overridden.
func (cfg *MantisConfig) JointLimits() (*kinematics.Limits, error) {
	if len(cfg.Limits) == 0 {
		return nil, nil
	}
	limits := kinematics.DefaultMantisLimits()
	for name, lc := range cfg.Limits {
		upper := strings.ToUpper(name)
		if len(upper) != 1 {
			return nil, fmt.Errorf("limits: %q is not a joint letter", name)
		}
		j, ok := kinematics.ParseJoint(upper[0])
		if !ok {
			return nil, fmt.Errorf("limits: unknown joint %q", name)
		}
		switch {
		case lc.Free:
			limits[j] = kinematics.Unbounded()
		case lc.Hard:
			limits[j] = kinematics.HardLimit(lc.Min, lc.Max)
		default:
			limits[j] = kinematics.SoftLimit(lc.Min, lc.Max)
		}
	}
	if err := limits.Validate(); err != nil {
		return nil, fmt.Errorf("limits: %w", err)
	}
	return &limits, nil
}

// ArmModel builds the configured kinematic model.
func (cfg *MantisConfig) ArmModel() (kinematics.Model, error) {
	limits, err := cfg.JointLimits()
	if err != nil {
		return nil, err
	}
	name := cfg.Model
	if name == "" {
		name = kinematics.ModelMantis
	}
	var geometry *kinematics.Geometry
	if cfg.Geometry != nil {
		g := *cfg.Geometry
		geometry = &g
	}
	return kinematics.NewModel(name, geometry, limits)
}

// LoadConfig reads a JSON or TOML config file, picked by extension, and
// validates it.
func LoadConfig(path string) (*MantisConfig, error) {
	cfg := &MantisConfig{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("unknown keys in config %s: %v", path, undecoded)
		}
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	if _, _, err := cfg.Validate(path); err != nil {
		return nil, err
	}
	return cfg, nil
}
