package guards

import (
	"io"
	"os"

	"gopkg.in/yaml.v2"
)

type LimitConfig struct {
	SensorType string  `yaml:"sensortype"`
	Min        float64 `yaml:"min"`
	Max        float64 `yaml:"max"`
	Unit       string  `yaml:"unit"`
}

type LimitsConfig struct {
	Limits []LimitConfig `yaml:"limits"`
}

func NewLimitsConfig(config io.ReadCloser) (*LimitsConfig, error) {
	defer config.Close()

	b, err := io.ReadAll(config)
	if err != nil {
		return nil, err
	}

	cfg := &LimitsConfig{}
	err = yaml.Unmarshal(b, cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Configure merges configured limits into the built in defaults. Meant to
// run once on startup, before ingestion begins.
func Configure(cfg *LimitsConfig) {
	if cfg == nil {
		return
	}

	for _, l := range cfg.Limits {
		if l.SensorType == "" || l.Min >= l.Max {
			continue
		}
		physicalLimits[normalizeType(l.SensorType)] = physicalRange{l.Min, l.Max, l.Unit}
	}
}

// ConfigureFromFile loads limit overrides from a YAML file. A missing file
// is not an error, the defaults apply.
func ConfigureFromFile(path string) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	cfg, err := NewLimitsConfig(f)
	if err != nil {
		return err
	}

	Configure(cfg)
	return nil
}
