//go:build !linux

package indicator

import "fmt"

func openLine(pin int) (outputLine, error) {
	return nil, fmt.Errorf("indicator: gpio unsupported on this platform")
}

var openLineFn = openLine
