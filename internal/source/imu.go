package source

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"motionsense/internal/i2c"
	"motionsense/internal/logging"
	"motionsense/internal/motion"
	"motionsense/internal/sensors/icm20948"
)

type IMUConfig struct {
	I2CBus   int
	Addr     uint16
	Interval time.Duration
}

type accelReader interface {
	ReadAccel() (icm20948.Accel, error)
}

// IMU polls an ICM-20948 over I2C.
type IMU struct {
	cfg IMUConfig
	log *logrus.Entry

	open func(cfg IMUConfig) (accelReader, func() error, error)
}

func NewIMU(cfg IMUConfig) *IMU {
	if cfg.I2CBus == 0 {
		cfg.I2CBus = 1
	}
	if cfg.Addr == 0 {
		cfg.Addr = icm20948.DefaultAddress()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Millisecond
	}
	return &IMU{cfg: cfg, log: logging.New("source.imu"), open: openICM20948}
}

func openICM20948(cfg IMUConfig) (accelReader, func() error, error) {
	bus, err := i2c.Open(i2c.BusPath(cfg.I2CBus))
	if err != nil {
		return nil, nil, err
	}
	rate := int(time.Second / cfg.Interval)
	dev, err := icm20948.New(bus.Dev(cfg.Addr), icm20948.Options{RateHz: rate})
	if err != nil {
		_ = bus.Close()
		return nil, nil, err
	}
	return dev, bus.Close, nil
}

func (s *IMU) Name() string {
	return fmt.Sprintf("imu(%s@0x%02X)", i2c.BusPath(s.cfg.I2CBus), s.cfg.Addr)
}

func (s *IMU) Run(ctx context.Context, emit func(motion.Sample)) error {
	dev, closeFn, err := s.open(s.cfg)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNoSensor, s.Name(), err)
	}
	defer func() { _ = closeFn() }()

	tick := time.NewTicker(s.cfg.Interval)
	defer tick.Stop()

	var readErrs uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			a, err := dev.ReadAccel()
			if err != nil {
				readErrs++
				// Log the first failure and every 100th after it.
				if readErrs == 1 || readErrs%100 == 0 {
					s.log.WithError(err).WithField("errors", readErrs).Warn("accel read failed")
				}
				continue
			}
			emit(motion.Sample{X: float32(a.X), Y: float32(a.Y), Z: float32(a.Z)})
		}
	}
}
