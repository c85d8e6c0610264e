//go:build unix && !linux && !darwin && !freebsd

package poller

import "github.com/cockroachdb/errors"

// Other unix systems build the socket layer but have no supported
// multiplexer, so New fails instead of the package failing to compile.
func newDevice() (device, error) {
	return nil, errors.New("poller: no readiness multiplexer on this platform")
}
