// discovery.go
package mantis_arm

import (
	"path/filepath"
	"strings"

	"go.bug.st/serial/enumerator"
	"go.viam.com/rdk/logging"
)

// DiscoveredPort is a serial port that may have a Mantis controller on it.
type DiscoveredPort struct {
	Path   string
	Suffix string
	USB    bool
	VID    string
	PID    string
	Serial string
}

// DiscoverPorts lists the serial ports that look like a USB controller.
func DiscoverPorts(logger logging.Logger) ([]DiscoveredPort, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}
	logger.Debugf("Found %d total serial ports", len(details))

	byName := make(map[string]*enumerator.PortDetails, len(details))
	names := make([]string, 0, len(details))
	for _, d := range details {
		byName[d.Name] = d
		names = append(names, d.Name)
	}

	candidates := filterCandidatePorts(names)
	logger.Debugf("Filtered to %d candidate ports", len(candidates))

	found := make([]DiscoveredPort, 0, len(candidates))
	for _, name := range candidates {
		d := byName[name]
		found = append(found, DiscoveredPort{
			Path:   name,
			Suffix: extractPortSuffix(name),
			USB:    d.IsUSB,
			VID:    d.VID,
			PID:    d.PID,
			Serial: d.SerialNumber,
		})
	}
	return found, nil
}

// filterCandidatePorts filters serial ports by platform-specific naming patterns
func filterCandidatePorts(ports []string) []string {
	candidates := []string{}
	for _, port := range ports {
		if isCandidatePort(port) {
			candidates = append(candidates, port)
		}
	}
	return candidates
}

// isCandidatePort checks if a port matches USB serial port patterns
func isCandidatePort(port string) bool {
	// Linux: /dev/ttyUSB*, /dev/ttyACM*
	if strings.HasPrefix(port, "/dev/ttyUSB") || strings.HasPrefix(port, "/dev/ttyACM") {
		return true
	}
	// macOS: /dev/tty.usbmodem*, /dev/tty.usbserial*, /dev/cu.usbmodem*, /dev/cu.usbserial*
	for _, prefix := range []string{"/dev/tty.usbmodem", "/dev/tty.usbserial", "/dev/cu.usbmodem", "/dev/cu.usbserial"} {
		if strings.HasPrefix(port, prefix) {
			return true
		}
	}
	// Windows: COM*
	return strings.HasPrefix(port, "COM")
}

// extractPortSuffix extracts a friendly suffix from port path for naming
// /dev/ttyUSB0 -> "ttyUSB0"
// COM3 -> "COM3"
// /dev/tty.usbmodem123 -> "usbmodem123"
func extractPortSuffix(portPath string) string {
	base := filepath.Base(portPath)
	if strings.HasPrefix(base, "tty.usb") {
		return strings.TrimPrefix(base, "tty.")
	}
	if strings.HasPrefix(base, "cu.usb") {
		return strings.TrimPrefix(base, "cu.")
	}
	return base
}
