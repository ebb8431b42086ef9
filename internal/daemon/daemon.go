// Package daemon wires every other package into a runnable process: it
// owns the shared registry, the control and data listeners, the optional
// zeroconf beacon, and the kardianos/service Start/Stop lifecycle.
// Grounded on NebulaLink's internal/daemon.AgentDaemon (the kardianos
// Interface shape) and goshare's listener-per-protocol goroutines,
// generalized to run under golang.org/x/sync/errgroup instead of a bare
// WaitGroup so the first listener failure cancels the rest.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	kardianos "github.com/kardianos/service"
	"golang.org/x/sync/errgroup"

	"etdc/internal/advertise"
	"etdc/internal/config"
	"etdc/internal/control"
	"etdc/internal/dataserver"
	"etdc/internal/etdaddr"
	"etdc/internal/registry"
	"etdc/internal/server"
	"etdc/internal/transport"
)

// Daemon owns the running process's listeners and shared state, and
// implements kardianos/service's Interface so it can run as an installed
// OS service as well as in the foreground.
type Daemon struct {
	cfg        *config.Config
	log        *slog.Logger
	reg        *registry.Registry
	dialers    *transport.Registry
	advertiser advertise.AddressAdvertiser

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Daemon from cfg, registering the TCP dialer unconditionally
// and the QUIC dialer when cfg selects it.
func New(cfg *config.Config, log *slog.Logger) (*Daemon, error) {
	dialers := transport.NewRegistry()
	dialers.Register("tcp", transport.TCPDialer{})
	if cfg.DataProtocol() == "quic" {
		qd, err := transport.NewQUICDialer()
		if err != nil {
			return nil, fmt.Errorf("daemon: building QUIC dialer: %w", err)
		}
		dialers.Register("quic", qd)
	}

	return &Daemon{
		cfg:        cfg,
		log:        log,
		reg:        registry.New(nil),
		dialers:    dialers,
		advertiser: advertise.NewZeroconf(),
		done:       make(chan struct{}),
	}, nil
}

// Start implements kardianos/service.Interface: it launches Run in the
// background and returns immediately, matching AgentDaemon.Start's shape.
func (d *Daemon) Start(s kardianos.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	go func() {
		defer close(d.done)
		if err := d.Run(ctx); err != nil {
			d.log.Error("daemon exited", "error", err)
		}
	}()
	return nil
}

// Stop implements kardianos/service.Interface: it cancels the run context
// and waits for every listener goroutine to unwind.
func (d *Daemon) Stop(s kardianos.Service) error {
	if d.cancel != nil {
		d.cancel()
	}
	<-d.done
	return nil
}

// Run starts the control listener, the data listener, and (if enabled) the
// zeroconf beacon, and blocks until ctx is cancelled or any of them fails.
// Per SPEC_FULL.md's resolution of spec.md §9's open shutdown question,
// cancellation does not wait for in-flight transfers to drain; accepted
// connections are simply abandoned when their listener's Accept loop
// returns.
func (d *Daemon) Run(ctx context.Context) error {
	dataLn, dataAddrs, err := d.listenData()
	if err != nil {
		return fmt.Errorf("daemon: data listener: %w", err)
	}
	defer dataLn.Close()
	d.reg.SetDataAddrs(dataAddrs)

	controlLn, err := transport.ListenTCP(d.cfg.ControlListenAddr())
	if err != nil {
		return fmt.Errorf("daemon: control listener: %w", err)
	}
	defer controlLn.Close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return d.acceptControl(gctx, controlLn) })
	g.Go(func() error { return d.acceptData(gctx, dataLn) })
	if d.cfg.AdvertiseEnabled() {
		g.Go(func() error { return d.advertiser.Advertise(gctx, d.cfg.ServiceName(), dataAddrs) })
	}

	return g.Wait()
}

func (d *Daemon) listenData() (transport.Listener, []etdaddr.SockName, error) {
	proto := d.cfg.DataProtocol()
	switch proto {
	case "quic":
		ln, err := transport.ListenQUIC(d.cfg.DataListenAddr())
		if err != nil {
			return nil, nil, err
		}
		addr, err := addrFromNet(proto, ln.Addr())
		if err != nil {
			return nil, nil, err
		}
		return ln, []etdaddr.SockName{addr}, nil
	default:
		ln, err := transport.ListenTCP(d.cfg.DataListenAddr())
		if err != nil {
			return nil, nil, err
		}
		addr, err := addrFromNet("tcp", ln.Addr())
		if err != nil {
			return nil, nil, err
		}
		return ln, []etdaddr.SockName{addr}, nil
	}
}

func addrFromNet(proto string, a net.Addr) (etdaddr.SockName, error) {
	host, portStr, err := net.SplitHostPort(a.String())
	if err != nil {
		return etdaddr.SockName{}, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return etdaddr.SockName{}, err
	}
	if host == "" || host == "::" {
		host = "localhost"
	}
	return etdaddr.SockName{Protocol: proto, Host: host, Port: port}, nil
}

func (d *Daemon) acceptControl(ctx context.Context, ln transport.Listener) error {
	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go func() {
			defer conn.Close()
			svc := server.New(d.reg, d.dialers)
			wrapper := control.New(svc, conn)
			if err := wrapper.Serve(); err != nil {
				d.log.Warn("control connection ended", "error", err)
			}
		}()
	}
}

func (d *Daemon) acceptData(ctx context.Context, ln transport.Listener) error {
	ds := dataserver.New(d.reg)
	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go func() {
			defer conn.Close()
			if err := ds.Handle(conn); err != nil {
				d.log.Warn("data connection ended", "error", err)
			}
		}()
	}
}

// ServiceConfig builds the kardianos/service configuration for installing
// this daemon as an OS service, grounded on the name/displayname/description
// triple NebulaLink's config.Config exposes for exactly this purpose.
func ServiceConfig(cfg *config.Config) *kardianos.Config {
	return &kardianos.Config{
		Name:        cfg.ServiceName(),
		DisplayName: cfg.ServiceDisplayName(),
		Description: cfg.ServiceDescription(),
	}
}
