//go:build linux

package i2c

import (
	"errors"
	"os"
	"strings"
	"testing"
)

func devNullBus(t *testing.T) *Bus {
	t.Helper()
	f, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("OpenFile %s: %v", os.DevNull, err)
	}
	b := &Bus{f: f, path: os.DevNull}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestTransfer_InvalidAddr(t *testing.T) {
	b := devNullBus(t)
	for _, addr := range []uint16{0, 0x80, 0xFFFF} {
		err := b.Dev(addr).WriteReg(0x00, 0x01)
		if err == nil || !strings.Contains(err.Error(), "invalid address") {
			t.Fatalf("addr 0x%X: err=%v want invalid address", addr, err)
		}
	}
}

func TestTransfer_EmptyIsNoop(t *testing.T) {
	b := devNullBus(t)
	if err := b.transfer(0x68, nil, nil); err != nil {
		t.Fatalf("err=%v", err)
	}
}

func TestTransfer_AfterClose(t *testing.T) {
	b := devNullBus(t)
	d := b.Dev(0x68)
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := d.ReadRegU8(0x00); !errors.Is(err, ErrClosed) {
		t.Fatalf("err=%v want ErrClosed", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestBusPath(t *testing.T) {
	if got := BusPath(1); got != "/dev/i2c-1" {
		t.Fatalf("BusPath(1)=%q want /dev/i2c-1", got)
	}
	var nilBus *Bus
	if nilBus.Path() != "" || nilBus.Dev(0x68) != nil {
		t.Fatalf("nil bus should be inert")
	}
	var nilDev *Dev
	if err := nilDev.WriteReg(0, 0); !errors.Is(err, ErrClosed) {
		t.Fatalf("nil dev err=%v", err)
	}
}
