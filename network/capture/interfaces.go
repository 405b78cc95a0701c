package capture

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/gobwas/glob"
	"github.com/google/gopacket/pcap"
)

// ErrNoInterface is returned when no interface is suitable for capturing.
var ErrNoInterface = errors.New("no suitable network interface found (up, non-loopback, has IPs)")

// Interface describes a capture device.
type Interface struct {
	Name        string
	Description string
	Addresses   []net.IP
}

// DefaultInterface returns the name of the first interface that is up, is
// not a loopback interface and has addresses.
func DefaultInterface() (string, error) {
	candidates, err := listCandidates()
	if err != nil {
		return "", err
	}
	return pickInterface(candidates, nil)
}

// ResolveInterface returns the interface to capture on.
// An empty name selects the default interface. A name with glob wildcards,
// such as "en*", selects the first suitable interface matching it. Any other
// name is returned as is.
func ResolveInterface(name string) (string, error) {
	if name == "" {
		return DefaultInterface()
	}
	if !strings.ContainsAny(name, "*?[{") {
		return name, nil
	}

	pattern, err := glob.Compile(name)
	if err != nil {
		return "", fmt.Errorf("invalid interface pattern %q: %w", name, err)
	}
	candidates, err := listCandidates()
	if err != nil {
		return "", err
	}
	iface, err := pickInterface(candidates, pattern)
	if err != nil {
		return "", fmt.Errorf("%w matching %q", err, name)
	}
	return iface, nil
}

func listCandidates() ([]candidate, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}

	candidates := make([]candidate, 0, len(ifaces))
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{
			name:     iface.Name,
			flags:    iface.Flags,
			hasAddrs: len(addrs) > 0,
		})
	}
	return candidates, nil
}

type candidate struct {
	name     string
	flags    net.Flags
	hasAddrs bool
}

// pickInterface returns the first suitable candidate. If pattern is set, the
// name must match it too.
func pickInterface(candidates []candidate, pattern glob.Glob) (string, error) {
	for _, c := range candidates {
		if pattern != nil && !pattern.Match(c.name) {
			continue
		}
		if c.flags&net.FlagUp != 0 && c.flags&net.FlagLoopback == 0 && c.hasAddrs {
			return c.name, nil
		}
	}
	return "", ErrNoInterface
}

// ListInterfaces returns all devices libpcap can capture on.
func ListInterfaces() ([]Interface, error) {
	devs, err := pcap.FindAllDevs()
	if err != nil {
		return nil, fmt.Errorf("failed to list capture devices: %w", err)
	}

	ifaces := make([]Interface, 0, len(devs))
	for _, dev := range devs {
		iface := Interface{
			Name:        dev.Name,
			Description: dev.Description,
		}
		for _, addr := range dev.Addresses {
			iface.Addresses = append(iface.Addresses, addr.IP)
		}
		ifaces = append(ifaces, iface)
	}
	return ifaces, nil
}
