//go:build !linux

package asic

import "errors"

func openCapture(string) (frameSource, error) {
	return nil, errors.New("AF_PACKET capture is only supported on Linux")
}
