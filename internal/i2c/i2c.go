// Package i2c gives register-level access to devices on a Linux I2C bus.
package i2c

import (
	"errors"
	"fmt"
)

var ErrClosed = errors.New("i2c: bus closed")

// BusPath returns the device node for a bus number.
func BusPath(n int) string { return fmt.Sprintf("/dev/i2c-%d", n) }

// validAddr reports whether addr is a usable 7-bit address. 0x00 is the
// general call address and is never a sensor.
func validAddr(addr uint16) error {
	if addr == 0 || addr > 0x7F {
		return fmt.Errorf("i2c: invalid address 0x%02X", addr)
	}
	return nil
}

// Dev is a device at a 7-bit address on a Bus.
type Dev struct {
	bus  *Bus
	addr uint16
}

func (d *Dev) Addr() uint16 { return d.addr }

// ReadReg reads len(dst) bytes starting at reg with one combined transfer.
func (d *Dev) ReadReg(reg byte, dst []byte) error {
	if d == nil {
		return ErrClosed
	}
	return d.bus.transfer(d.addr, []byte{reg}, dst)
}

func (d *Dev) ReadRegU8(reg byte) (byte, error) {
	var b [1]byte
	if err := d.ReadReg(reg, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Dev) WriteReg(reg, value byte) error {
	if d == nil {
		return ErrClosed
	}
	return d.bus.transfer(d.addr, []byte{reg, value}, nil)
}
