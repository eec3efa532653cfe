package mantis_arm

import (
	"fmt"
	"sync"

	"go.viam.com/rdk/logging"
)

// One controller can only be driven through one open port, so links are
// shared per port and closed when the last user releases them.
var (
	linksMu sync.Mutex
	links   = map[string]*sharedLink{}

	// openLink is replaced in tests.
	openLink = OpenSerialLink
)

type sharedLink struct {
	link     *SerialLink
	cfg      MantisConfig
	refCount int
}

// Compare configs for compatibility
func linkConfigsEqual(a, b *MantisConfig) bool {
	return a.Port == b.Port &&
		a.Baudrate == b.Baudrate &&
		a.Timeout == b.Timeout
}

// GetSharedLink returns the open link for cfg.Port, opening it on first use.
func GetSharedLink(cfg *MantisConfig, logger logging.Logger) (*SerialLink, error) {
	linksMu.Lock()
	defer linksMu.Unlock()

	if shared, ok := links[cfg.Port]; ok {
		if !linkConfigsEqual(&shared.cfg, cfg) {
			return nil, fmt.Errorf("conflict: %s is already open with baudrate %d (refCount: %d)",
				cfg.Port, shared.cfg.Baudrate, shared.refCount)
		}
		shared.refCount++
		return shared.link, nil
	}

	link, err := openLink(cfg, logger)
	if err != nil {
		return nil, err
	}
	links[cfg.Port] = &sharedLink{link: link, cfg: *cfg, refCount: 1}
	return link, nil
}

// ReleaseSharedLink drops one reference to the link on port and closes it
// when none are left.
func ReleaseSharedLink(port string) error {
	linksMu.Lock()
	defer linksMu.Unlock()

	shared, ok := links[port]
	if !ok {
		return nil
	}
	shared.refCount--
	if shared.refCount > 0 {
		return nil
	}
	delete(links, port)
	return shared.link.Close()
}

// SharedLinkStatus returns the reference count of the link on port and
// whether one is open.
func SharedLinkStatus(port string) (int, bool) {
	linksMu.Lock()
	defer linksMu.Unlock()

	shared, ok := links[port]
	if !ok {
		return 0, false
	}
	return shared.refCount, true
}
