package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path"
	"reflect"
	"runtime"
	"syscall"
	"time"

	"github.com/encodeous/dvnode/impl"
	"github.com/encodeous/dvnode/perf"
	"github.com/encodeous/dvnode/state"
	"github.com/encodeous/tint"
	slogmulti "github.com/samber/slog-multi"
	"golang.org/x/sync/errgroup"
)

// NewLogger writes coloured output to stderr, and plain text to ncfg.LogPath if it is set.
// The returned function closes the log file.
func NewLogger(ncfg *state.NodeCfg, logLevel slog.Level) (*slog.Logger, func() error, error) {
	handlers := make([]slog.Handler, 0)
	handlers = append(handlers,
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:        logLevel,
			AddSource:    false,
			CustomPrefix: string(ncfg.Id),
			ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
				if attr.Key == "time" {
					return slog.Attr{}
				}
				return attr
			},
		}))

	closer := func() error { return nil }
	if ncfg.LogPath != "" {
		err := os.MkdirAll(path.Dir(ncfg.LogPath), 0700)
		if err != nil {
			return nil, nil, err
		}
		f, err := os.OpenFile(ncfg.LogPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0600)
		if err != nil {
			return nil, nil, err
		}
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: logLevel}))
		closer = f.Close
	}

	return slog.New(slogmulti.Fanout(handlers...)), closer, nil
}

// Start runs a node over UDP until it receives SIGINT or SIGTERM
func Start(ncfg state.NodeCfg, logLevel slog.Level) error {
	logger, closeLog, err := NewLogger(&ncfg, logLevel)
	if err != nil {
		return err
	}
	defer closeLog()

	transport, err := impl.ListenUdp(ncfg.Bind, ncfg.Neighbours)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(context.Canceled)

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(c)
	go func() {
		select {
		case <-c:
			cancel(errors.New("received shutdown signal"))
		case <-ctx.Done():
			return
		}
	}()

	logger.Info("dvnode has been initialized. To gracefully exit, send SIGINT or Ctrl+C.", "bind", transport.LocalAddr())
	return Run(ctx, ncfg, transport, logger)
}

// Run drives a node over the given transport until ctx is cancelled. The transport is
// closed when Run returns.
func Run(ctx context.Context, ncfg state.NodeCfg, transport state.Transport, logger *slog.Logger) error {
	router, err := NewNodeRouter(&ncfg, transport, logger)
	if err != nil {
		_ = transport.Close()
		return err
	}
	return RunRouter(ctx, ncfg, router, logger)
}

// RunRouter is Run for a router that was already built
func RunRouter(ctx context.Context, ncfg state.NodeCfg, router *NodeRouter, logger *slog.Logger) error {
	ctx, cancel := context.WithCancelCause(ctx)
	dispatch := make(chan func(env *state.State) error, 128)

	s := &state.State{
		Modules: make(map[string]state.NyModule),
		Env: &state.Env{
			Context:         ctx,
			Cancel:          cancel,
			DispatchChannel: dispatch,
			NodeCfg:         ncfg,
			Log:             logger,
		},
	}

	g := errgroup.Group{}
	if ncfg.DebugAddr != "" {
		// expvar and /debug/metrics are registered on the default mux
		mux := http.NewServeMux()
		mux.Handle("/", http.DefaultServeMux)
		mux.HandleFunc("/debug/routes", routesHandler(s))
		srv := &http.Server{Addr: ncfg.DebugAddr, Handler: mux}
		g.Go(func() error {
			err := srv.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
		g.Go(func() error {
			<-ctx.Done()
			return srv.Close()
		})
	}

	s.Log.Info("init modules")
	err := initModules(s, router)
	if err != nil {
		Stop(s)
		return errors.Join(err, g.Wait())
	}
	s.Log.Info("init modules complete")

	g.Go(func() error {
		return MainLoop(s, dispatch)
	})
	return g.Wait()
}

// routesHandler prints the routing and forwarding tables as read by the dispatch goroutine
func routesHandler(s *state.State) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		res, err := s.DispatchWait(func(s *state.State) (any, error) {
			r := Get[*NodeRouter](s)
			return fmt.Sprintf("%s\n\n%s", r.Table(), r.Forwarding()), nil
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, res.(string))
	}
}

func initModules(s *state.State, modules ...state.NyModule) error {
	for _, module := range modules {
		s.Modules[reflect.TypeOf(module).String()] = module
		if err := module.Init(s); err != nil {
			return err
		}
	}
	return nil
}

func MainLoop(s *state.State, dispatch <-chan func(*state.State) error) error {
	s.Log.Debug("started main loop")
	s.Started.Store(true)
	for {
		select {
		case fun := <-dispatch:
			if fun == nil {
				goto endLoop
			}
			start := time.Now()
			err := fun(s)
			if err != nil {
				s.Log.Error("error occurred during dispatch: ", "error", err)
				s.Cancel(err)
			}
			elapsed := time.Since(start)
			perf.DispatchLatency.Add(float64(elapsed.Microseconds()))
			if elapsed > state.DispatchWarnLatency {
				s.Log.Warn("dispatch took a long time!", "fun", runtime.FuncForPC(reflect.ValueOf(fun).Pointer()).Name(), "elapsed", elapsed, "len", len(dispatch))
			}
		case <-s.Context.Done():
			goto endLoop
		}
	}
endLoop:
	s.Log.Info("stopped main loop", "reason", context.Cause(s.Context).Error())
	Stop(s)
	return nil
}

func Stop(s *state.State) {
	if s.Stopping.Swap(true) {
		return // don't stop twice
	}
	s.Cancel(context.Canceled)
	s.Log.Info("cleaning up modules")
	for moduleName, module := range s.Modules {
		err := module.Cleanup(s)
		if err != nil {
			s.Log.Error("error occurred during Stop: ", "module", moduleName, "error", err)
		}
	}
	s.Log.Info("stopped")
}

// RunSequential performs a single exchange round: advertise if the node initiates, wait
// for one accepted advertisement per neighbour, then relax one last time. Dropped records
// do not count, and a receive timeout ends the round early. The transport is closed when
// it returns.
func RunSequential(ncfg state.NodeCfg, transport state.Transport, logger *slog.Logger) (state.RoutingTable, error) {
	defer transport.Close()
	r, err := NewNodeRouter(&ncfg, transport, logger)
	if err != nil {
		return nil, err
	}

	if ncfg.Initiator {
		if err := r.Advertise(); err != nil {
			logger.Warn("advertisement incomplete", "err", err)
		}
	}

	for heard := 0; heard < len(ncfg.Neighbours); {
		dg, err := transport.Receive(ncfg.ReceiveTimeout)
		if errors.Is(err, state.ErrTimedOut) {
			logger.Info("timed out waiting for neighbours", "timeout", ncfg.ReceiveTimeout)
			break
		}
		if err != nil {
			return nil, err
		}
		_, err = r.Ingest(dg.Payload, dg.From)
		if errors.Is(err, state.ErrMalformedMessage) || errors.Is(err, state.ErrUnknownSender) {
			continue
		}
		if errors.Is(err, state.ErrTransport) {
			logger.Warn("triggered update incomplete", "err", err)
		}
		heard++
	}

	r.Relax()
	table := r.Table()
	logger.Info("routing table", "node", ncfg.Id, "table", "\n"+table.String())
	if len(ncfg.Prefixes) > 0 {
		logger.Info("forwarding table", "node", ncfg.Id, "forwarding", "\n"+r.Forwarding())
	}
	return table, nil
}
