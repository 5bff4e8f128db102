//go:build !cgo

package vpio

import "time"

// Without cgo there is no path to any platform audio API; a timed MockUnit
// keeps the daemon and library usable for development.
func newPlatformUnit() Unit {
	return &MockUnit{Interval: 20 * time.Millisecond}
}
