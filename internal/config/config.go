package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"motionsense/internal/logging"
)

type Config struct {
	// DeviceID tags stored records. Empty means the id persisted in the store.
	DeviceID string `yaml:"device_id"`
	Label    string `yaml:"label"`
	Debug    bool   `yaml:"debug"`

	Log    logging.Config `yaml:"log"`
	Motion MotionConfig   `yaml:"motion"`
	Source SourceConfig   `yaml:"source"`
	Store  StoreConfig    `yaml:"store"`
	Notify NotifyConfig   `yaml:"notify"`
	Sync   SyncConfig     `yaml:"sync"`
	Web    WebConfig      `yaml:"web"`
}

type MotionConfig struct {
	WindowSize int     `yaml:"window_size"`
	Threshold  float64 `yaml:"threshold"`
}

const (
	SourceIMU    = "imu"
	SourceSerial = "serial"
	SourceReplay = "replay"
	SourceSim    = "sim"
)

type SourceConfig struct {
	Kind   string             `yaml:"kind"`
	IMU    IMUSourceConfig    `yaml:"imu"`
	Serial SerialSourceConfig `yaml:"serial"`
	Replay ReplaySourceConfig `yaml:"replay"`
	Sim    SimSourceConfig    `yaml:"sim"`
}

type IMUSourceConfig struct {
	I2CBus   int           `yaml:"i2c_bus"`
	Addr     uint16        `yaml:"addr"`
	Interval time.Duration `yaml:"interval"`
}

type SerialSourceConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

type ReplaySourceConfig struct {
	Path string `yaml:"path"`
	// Interval between samples; 0 replays as fast as possible.
	Interval time.Duration `yaml:"interval"`
	Loop     bool          `yaml:"loop"`
}

type SimSourceConfig struct {
	Interval time.Duration `yaml:"interval"`
	Still    time.Duration `yaml:"still"`
	Moving   time.Duration `yaml:"moving"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type NotifyConfig struct {
	UDPDest string `yaml:"udp_dest"`
	// GPIOPin is a BCM line driven high while moving. 0 disables it.
	GPIOPin int `yaml:"gpio_pin"`
}

type SyncConfig struct {
	Enable   bool          `yaml:"enable"`
	Broker   string        `yaml:"broker"`
	Topic    string        `yaml:"topic"`
	ClientID string        `yaml:"client_id"`
	Interval time.Duration `yaml:"interval"`
	Batch    int           `yaml:"batch"`
}

type WebConfig struct {
	Listen string `yaml:"listen"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

// Parse decodes YAML, rejecting unknown fields, then applies defaults and validates.
func Parse(b []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) applyDefaults() error {
	if cfg.Motion.WindowSize == 0 {
		cfg.Motion.WindowSize = 40
	}
	if cfg.Motion.WindowSize < 0 {
		return fmt.Errorf("motion.window_size must be > 0")
	}
	if cfg.Motion.Threshold == 0 {
		cfg.Motion.Threshold = 1.0
	}
	if cfg.Motion.Threshold < 0 {
		return fmt.Errorf("motion.threshold must be > 0")
	}

	if cfg.Source.Kind == "" {
		cfg.Source.Kind = SourceIMU
	}
	switch cfg.Source.Kind {
	case SourceIMU:
		if cfg.Source.IMU.I2CBus == 0 {
			cfg.Source.IMU.I2CBus = 1
		}
		if cfg.Source.IMU.Interval <= 0 {
			cfg.Source.IMU.Interval = 60 * time.Millisecond
		}
	case SourceSerial:
		if cfg.Source.Serial.Port == "" {
			return fmt.Errorf("source.serial.port is required when source.kind is 'serial'")
		}
		if cfg.Source.Serial.Baud <= 0 {
			cfg.Source.Serial.Baud = 115200
		}
	case SourceReplay:
		if cfg.Source.Replay.Path == "" {
			return fmt.Errorf("source.replay.path is required when source.kind is 'replay'")
		}
		if cfg.Source.Replay.Interval < 0 {
			return fmt.Errorf("source.replay.interval must be >= 0")
		}
	case SourceSim:
		if cfg.Source.Sim.Interval <= 0 {
			cfg.Source.Sim.Interval = 60 * time.Millisecond
		}
		if cfg.Source.Sim.Still <= 0 {
			cfg.Source.Sim.Still = 10 * time.Second
		}
		if cfg.Source.Sim.Moving <= 0 {
			cfg.Source.Sim.Moving = 5 * time.Second
		}
	default:
		return fmt.Errorf("source.kind must be one of imu, serial, replay, sim")
	}

	if cfg.Store.Path == "" {
		cfg.Store.Path = "./motionsense.db"
	}

	if cfg.Sync.Enable && cfg.Sync.Broker == "" {
		return fmt.Errorf("sync.broker is required when sync.enable is true")
	}
	if cfg.Sync.Topic == "" {
		cfg.Sync.Topic = "motionsense/significant_motion"
	}
	if cfg.Sync.Interval <= 0 {
		cfg.Sync.Interval = 5 * time.Minute
	}
	if cfg.Sync.Batch <= 0 {
		cfg.Sync.Batch = 100
	}

	if cfg.Web.Listen == "" {
		cfg.Web.Listen = ":8080"
	}
	return nil
}
