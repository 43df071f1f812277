package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/encodeous/dvnode/impl"
	"github.com/encodeous/dvnode/state"
	"golang.org/x/sync/errgroup"
)

var DefaultSimulationTimeout = time.Second * 30

// Simulation runs one router per node of a topology over an in-memory network
type Simulation struct {
	topo       *state.TopologyCfg
	network    *impl.MemNetwork
	cfgs       []state.NodeCfg
	routers    map[state.NodeId]*NodeRouter
	log        *slog.Logger
	lastChange atomic.Int64
	// quiet is how long no table may change before the network counts as quiescent
	quiet time.Duration
}

func NewSimulation(topo *state.TopologyCfg, logger *slog.Logger) (*Simulation, error) {
	if err := state.TopologyValidator(topo); err != nil {
		return nil, err
	}
	sim := &Simulation{
		topo:    topo,
		network: impl.NewMemNetwork(),
		cfgs:    topo.NodeConfigs(),
		routers: make(map[state.NodeId]*NodeRouter, len(topo.Nodes)),
		log:     logger,
		quiet:   state.QuiescentPeriod,
	}
	var maxLatency time.Duration
	for _, edge := range topo.Edges {
		maxLatency = max(maxLatency, edge.Latency)
		sim.network.AddLink(edge.A, edge.B).WithLatency(edge.Latency, 0).WithPacketLoss(edge.Loss)
		sim.network.AddLink(edge.B, edge.A).WithLatency(edge.Latency, 0).WithPacketLoss(edge.Loss)
	}
	// a change is advertised to neighbours, who only see it one latency later, or one
	// update interval later if that advertisement was lost
	sim.quiet += maxLatency + topo.UpdateInterval
	for _, cfg := range sim.cfgs {
		router, err := NewNodeRouter(&cfg, sim.network.Transport(cfg.Id), logger.With("node", cfg.Id))
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", cfg.Id, err)
		}
		router.OnChange = func(state.RoutingTable) {
			sim.lastChange.Store(time.Now().UnixNano())
		}
		sim.routers[cfg.Id] = router
	}
	return sim, nil
}

// Router returns the router of node id, or nil if there is no such node
func (sim *Simulation) Router(id state.NodeId) *NodeRouter {
	return sim.routers[id]
}

// Tables returns a copy of every node's routing table
func (sim *Simulation) Tables() map[state.NodeId]state.RoutingTable {
	tables := make(map[state.NodeId]state.RoutingTable, len(sim.routers))
	for id, router := range sim.routers {
		tables[id] = router.Table()
	}
	return tables
}

// Run starts every node and waits until no routing table has changed for QuiescentPeriod
// plus the slowest link's latency and the update interval. Without periodic updates no
// datagram may be in flight either. It fails with ErrTimedOut if the network is still
// changing after the topology timeout.
func (sim *Simulation) Run(ctx context.Context) (map[state.NodeId]state.RoutingTable, error) {
	timeout := sim.topo.Timeout
	if timeout == 0 {
		timeout = DefaultSimulationTimeout
	}

	g, gctx := errgroup.WithContext(ctx)
	nodeCtx, stopNodes := context.WithCancel(gctx)
	defer stopNodes()

	start := time.Now()
	sim.lastChange.Store(start.UnixNano())
	for _, cfg := range sim.cfgs {
		router := sim.routers[cfg.Id]
		g.Go(func() error {
			return RunRouter(nodeCtx, cfg, router, sim.log.With("node", cfg.Id))
		})
	}

	var err error
	ticker := time.NewTicker(state.QuiescentPeriod / 4)
	defer ticker.Stop()
wait:
	for {
		select {
		case <-gctx.Done():
			err = context.Cause(gctx)
			break wait
		case now := <-ticker.C:
			// periodic advertisements keep the links busy, so only a silent network must drain
			drained := sim.topo.UpdateInterval > 0 || sim.network.InFlight() == 0
			if drained && now.Sub(time.Unix(0, sim.lastChange.Load())) >= sim.quiet {
				sim.log.Info("network is quiescent", "elapsed", now.Sub(start))
				break wait
			}
			if now.Sub(start) > timeout {
				err = fmt.Errorf("%w: network still changing after %s", state.ErrTimedOut, timeout)
				break wait
			}
		}
	}

	stopNodes()
	return sim.Tables(), errors.Join(err, g.Wait())
}

// Simulate runs the topology to quiescence and returns every node's routing table
func Simulate(ctx context.Context, topo *state.TopologyCfg, logger *slog.Logger) (map[state.NodeId]state.RoutingTable, error) {
	sim, err := NewSimulation(topo, logger)
	if err != nil {
		return nil, err
	}
	return sim.Run(ctx)
}
