package icm20948

import (
	"fmt"
	"time"

	"motionsense/internal/i2c"
)

var sleep = time.Sleep

// Accelerometer-only ICM-20948 driver.
//
// WHO_AM_I at 0x00 must read 0xEA. The gyro is left in its reset state.

const (
	addrDefault = 0x68

	regWhoAmI  = 0x00
	whoAmIVal  = 0xEA
	regBankSel = 0x7F

	// Bank 0.
	regPwrMgmt1   = 0x06
	regPwrMgmt2   = 0x07
	bitReset      = 0x80
	regIntEnable  = 0x10
	regAccelXoutH = 0x2D

	// Bank 2.
	bank2            = 2
	regAccelSmplrt1  = 0x10
	regAccelSmplrt2  = 0x11
	regAccelConfig   = 0x14
	accelBaseRateHz  = 1125
	disableGyroAxes  = 0x07
	accelDLPFEnabled = 0x01

	standardGravity = 9.80665
)

// Range is the accelerometer full scale in G.
type Range int

const (
	Range2G  Range = 2
	Range4G  Range = 4
	Range8G  Range = 8
	Range16G Range = 16
)

func (r Range) configBits() (byte, bool) {
	switch r {
	case Range2G:
		return 0x00, true
	case Range4G:
		return 0x02, true
	case Range8G:
		return 0x04, true
	case Range16G:
		return 0x06, true
	}
	return 0, false
}

type Options struct {
	Range  Range
	RateHz int
}

// Accel is one reading in m/s^2.
type Accel struct {
	Time    time.Time
	X, Y, Z float64
}

type Device struct {
	dev regIO

	curBank byte
	// m/s^2 per LSB.
	scale float64
}

type regIO interface {
	ReadRegU8(reg byte) (byte, error)
	ReadReg(reg byte, dst []byte) error
	WriteReg(reg, value byte) error
}

func DefaultAddress() uint16 { return addrDefault }

func New(dev *i2c.Dev, opts Options) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("icm20948: dev is nil")
	}
	return newWithIO(dev, opts)
}

func newWithIO(dev regIO, opts Options) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("icm20948: dev is nil")
	}
	if opts.Range == 0 {
		opts.Range = Range4G
	}
	if opts.RateHz <= 0 {
		opts.RateHz = 50
	}
	if _, ok := opts.Range.configBits(); !ok {
		return nil, fmt.Errorf("icm20948: unsupported range %dg", opts.Range)
	}

	d := &Device{dev: dev, curBank: 0xFF}

	who, err := d.dev.ReadRegU8(regWhoAmI)
	if err != nil {
		return nil, fmt.Errorf("icm20948: whoami read failed: %w", err)
	}
	if who != whoAmIVal {
		return nil, fmt.Errorf("icm20948: whoami=0x%02X want 0x%02X", who, whoAmIVal)
	}

	if err := d.init(opts); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Device) init(opts Options) error {
	if err := d.setBank(0); err != nil {
		return err
	}
	_ = d.dev.WriteReg(regIntEnable, 0x00)

	if err := d.dev.WriteReg(regPwrMgmt1, bitReset); err != nil {
		return fmt.Errorf("icm20948: reset failed: %w", err)
	}
	sleep(100 * time.Millisecond)

	// Wake with auto clock select.
	if err := d.dev.WriteReg(regPwrMgmt1, 0x01); err != nil {
		return fmt.Errorf("icm20948: wake failed: %w", err)
	}
	sleep(10 * time.Millisecond)

	// Accel on, gyro off.
	if err := d.dev.WriteReg(regPwrMgmt2, disableGyroAxes); err != nil {
		return fmt.Errorf("icm20948: power config failed: %w", err)
	}

	if err := d.setBank(bank2); err != nil {
		return err
	}

	// rate = 1125/(1+div), 12-bit divider split across two registers.
	div := accelBaseRateHz/opts.RateHz - 1
	if div < 0 {
		div = 0
	}
	if div > 0x0FFF {
		div = 0x0FFF
	}
	_ = d.dev.WriteReg(regAccelSmplrt1, byte(div>>8))
	_ = d.dev.WriteReg(regAccelSmplrt2, byte(div))

	bits, _ := opts.Range.configBits()
	if err := d.dev.WriteReg(regAccelConfig, bits|accelDLPFEnabled); err != nil {
		return fmt.Errorf("icm20948: accel config failed: %w", err)
	}

	if err := d.setBank(0); err != nil {
		return err
	}

	d.scale = float64(opts.Range) / 32768.0 * standardGravity
	return nil
}

func (d *Device) setBank(bank byte) error {
	if d.curBank == bank {
		return nil
	}
	if err := d.dev.WriteReg(regBankSel, bank<<4); err != nil {
		return fmt.Errorf("icm20948: set bank %d failed: %w", bank, err)
	}
	d.curBank = bank
	return nil
}

func (d *Device) ReadAccel() (Accel, error) {
	if d == nil {
		return Accel{}, fmt.Errorf("icm20948: device is nil")
	}
	if err := d.setBank(0); err != nil {
		return Accel{}, err
	}

	var buf [6]byte
	if err := d.dev.ReadReg(regAccelXoutH, buf[:]); err != nil {
		return Accel{}, fmt.Errorf("icm20948: read accel failed: %w", err)
	}

	ax := int16(buf[0])<<8 | int16(buf[1])
	ay := int16(buf[2])<<8 | int16(buf[3])
	az := int16(buf[4])<<8 | int16(buf[5])

	return Accel{
		Time: time.Now(),
		X:    float64(ax) * d.scale,
		Y:    float64(ay) * d.scale,
		Z:    float64(az) * d.scale,
	}, nil
}
