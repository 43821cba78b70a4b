package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	kitlog "github.com/go-kit/log"
	"github.com/grafana/dskit/modules"
	"github.com/grafana/dskit/server"
	"github.com/grafana/dskit/services"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zachfi/archivestream/modules/frontend"
	"github.com/zachfi/archivestream/modules/resolver"
	"github.com/zachfi/archivestream/modules/streamproxy"
)

const (
	Server string = "server"

	Frontend    string = "frontend"
	Resolver    string = "resolver"
	StreamProxy string = "stream-proxy"

	All string = "all"
)

func (a *App) setupModuleManager() error {
	mm := modules.NewManager(kitlog.NewLogfmtLogger(os.Stderr))
	mm.RegisterModule(Server, a.initServer, modules.UserInvisibleModule)

	mm.RegisterModule(Frontend, a.initFrontend)
	mm.RegisterModule(Resolver, a.initResolver)
	mm.RegisterModule(StreamProxy, a.initStreamProxy)

	mm.RegisterModule(All, nil)

	deps := map[string][]string{
		// Server:       nil,
		Frontend:    {Server},
		Resolver:    {Server},
		StreamProxy: {Server},

		All: {Frontend, Resolver, StreamProxy},
	}

	for mod, targets := range deps {
		if err := mm.AddDependency(mod, targets...); err != nil {
			return err
		}
	}

	a.ModuleManager = mm

	return nil
}

func (a *App) initFrontend() (services.Service, error) {
	f, err := frontend.New(a.logger)
	if err != nil {
		return nil, errors.Wrap(err, "unable to init frontend")
	}

	a.Server.HTTP.Path("/").Handler(f.Handler())

	return f, nil
}

func (a *App) initResolver() (services.Service, error) {
	r, err := resolver.New(a.cfg.Resolver, a.logger, prometheus.DefaultRegisterer)
	if err != nil {
		return nil, errors.Wrap(err, "unable to init resolver")
	}

	a.Server.HTTP.Path("/api/search").Handler(r.Handler())

	return r, nil
}

func (a *App) initStreamProxy() (services.Service, error) {
	p, err := streamproxy.New(a.cfg.StreamProxy, a.logger, prometheus.DefaultRegisterer)
	if err != nil {
		return nil, errors.Wrap(err, "unable to init stream proxy")
	}

	a.Server.HTTP.Path("/api/stream").Handler(p.Handler())

	return p, nil
}

func (a *App) initServer() (services.Service, error) {
	a.cfg.Server.MetricsNamespace = metricsNamespace
	a.cfg.Server.ExcludeRequestInLog = true
	a.cfg.Server.RegisterInstrumentation = true
	a.cfg.Server.Log = kitlog.NewLogfmtLogger(os.Stderr)

	server, err := server.New(a.cfg.Server)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create server")
	}

	servicesToWaitFor := func() []services.Service {
		svs := []services.Service(nil)
		for m, s := range a.serviceMap {
			// Server should not wait for itself.
			if m != Server {
				svs = append(svs, s)
			}
		}

		return svs
	}

	a.Server = server

	serverDone := make(chan error, 1)

	runFn := func(ctx context.Context) error {
		go func() {
			defer close(serverDone)
			serverDone <- server.Run()
		}()

		select {
		case <-ctx.Done():
			return nil
		case err := <-serverDone:
			if err != nil {
				return err
			}

			return fmt.Errorf("server stopped unexpectedly")
		}
	}

	stoppingFn := func(_ error) error {
		// wait until all modules are done, and then shutdown server.
		for _, s := range servicesToWaitFor() {
			_ = s.AwaitTerminated(context.Background())
		}

		// shutdown HTTP and gRPC servers (this also unblocks Run)
		server.Shutdown()

		// if not closed yet, wait until server stops.
		<-serverDone
		slog.Info("server stopped")
		return nil
	}

	return services.NewBasicService(nil, runFn, stoppingFn), nil
}
