// Package advertise implements the address-list advertising policy
// spec.md §1 calls out as external and specified only at its interface:
// turning a daemon's data-channel SockNames into something discoverable on
// the local network, and resolving peers the same way. Grounded on
// goshare's internal/discovery (zeroconf beacon + browse), generalized
// from a fixed port and a log line to SockName-carrying TXT records behind
// the AddressAdvertiser seam.
package advertise

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/grandcat/zeroconf"

	"etdc/internal/etdaddr"
)

const serviceType = "_etdc._tcp"

// AddressAdvertiser publishes this daemon's data-channel addresses on the
// local network and discovers peers doing the same. Swapping
// implementations (e.g. a static peer list for environments without
// multicast DNS) never touches the registry or control wrapper.
type AddressAdvertiser interface {
	// Advertise publishes addrs under instance until ctx is cancelled.
	Advertise(ctx context.Context, instance string, addrs []etdaddr.SockName) error
	// Discover returns the SockName lists advertised by other instances,
	// keyed by instance name, observed before ctx's deadline.
	Discover(ctx context.Context) (map[string][]etdaddr.SockName, error)
}

// ZeroconfAdvertiser implements AddressAdvertiser over mDNS/DNS-SD via
// github.com/grandcat/zeroconf.
type ZeroconfAdvertiser struct{}

// NewZeroconf returns a ZeroconfAdvertiser.
func NewZeroconf() *ZeroconfAdvertiser { return &ZeroconfAdvertiser{} }

// Advertise registers a zeroconf service whose TXT records are the wire
// form of each SockName, and keeps it alive until ctx is done.
func (ZeroconfAdvertiser) Advertise(ctx context.Context, instance string, addrs []etdaddr.SockName) error {
	if instance == "" {
		h, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("advertise: no instance name given and hostname lookup failed: %w", err)
		}
		instance = h
	}
	port := 0
	txt := make([]string, 0, len(addrs))
	for i, a := range addrs {
		if i == 0 {
			port = a.Port
		}
		txt = append(txt, "addr="+a.String())
	}

	server, err := zeroconf.Register(instance, serviceType, "local.", port, txt, nil)
	if err != nil {
		return fmt.Errorf("advertise: register: %w", err)
	}
	defer server.Shutdown()

	<-ctx.Done()
	return nil
}

// Discover browses for other _etdc._tcp instances until ctx's deadline and
// decodes each entry's "addr=" TXT records back into SockNames.
func (ZeroconfAdvertiser) Discover(ctx context.Context) (map[string][]etdaddr.SockName, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("advertise: new resolver: %w", err)
	}

	found := make(map[string][]etdaddr.SockName)
	entries := make(chan *zeroconf.ServiceEntry, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for entry := range entries {
			var addrs []etdaddr.SockName
			for _, t := range entry.Text {
				wire, ok := strings.CutPrefix(t, "addr=")
				if !ok {
					continue
				}
				addr, derr := etdaddr.Decode(wire)
				if derr != nil {
					continue
				}
				addrs = append(addrs, addr)
			}
			found[entry.Instance] = addrs
		}
	}()

	if err := resolver.Browse(ctx, serviceType, "local.", entries); err != nil {
		return nil, fmt.Errorf("advertise: browse: %w", err)
	}
	<-ctx.Done()
	<-done
	return found, nil
}
