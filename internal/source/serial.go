package source

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"

	"motionsense/internal/logging"
	"motionsense/internal/motion"
)

type SerialConfig struct {
	Port string
	Baud int
}

// Serial reads "x,y,z" lines (m/s^2) from a serial-attached accelerometer.
type Serial struct {
	cfg SerialConfig
	log *logrus.Entry

	badLines atomic.Uint64

	open func(name string, mode *serial.Mode) (io.ReadCloser, error)
}

func NewSerial(cfg SerialConfig) *Serial {
	if cfg.Baud <= 0 {
		cfg.Baud = 115200
	}
	return &Serial{
		cfg: cfg,
		log: logging.New("source.serial"),
		open: func(name string, mode *serial.Mode) (io.ReadCloser, error) {
			return serial.Open(name, mode)
		},
	}
}

func (s *Serial) Name() string { return fmt.Sprintf("serial(%s)", s.cfg.Port) }

// BadLines counts lines that could not be parsed.
func (s *Serial) BadLines() uint64 { return s.badLines.Load() }

func (s *Serial) Run(ctx context.Context, emit func(motion.Sample)) error {
	mode := &serial.Mode{
		BaudRate: s.cfg.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := s.open(s.cfg.Port, mode)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNoSensor, s.Name(), err)
	}

	// Closing the port unblocks the pending read.
	stop := context.AfterFunc(ctx, func() { _ = port.Close() })
	defer func() {
		if stop() {
			_ = port.Close()
		}
	}()

	err = scanSamples(ctx, port, emit, func(line string, err error) {
		n := s.badLines.Add(1)
		if n == 1 || n%100 == 0 {
			s.log.WithError(err).WithField("bad_lines", n).Debugf("skipping line %q", line)
		}
	})
	if err != nil {
		return fmt.Errorf("source: %s: %w", s.Name(), err)
	}
	return nil
}
