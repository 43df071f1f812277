package core

import (
	"io"
	"log/slog"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/encodeous/dvnode/impl"
	"github.com/encodeous/dvnode/protocol"
	"github.com/encodeous/dvnode/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// twoNodes connects a and b in both directions and returns a's router with b's endpoint
func twoNodes(t *testing.T, cfg state.NodeCfg) (*NodeRouter, *impl.MemTransport) {
	t.Helper()
	n := impl.NewMemNetwork()
	n.AddLink("a", "b")
	n.AddLink("b", "a")
	cfg.Id = "a"
	if cfg.Neighbours == nil {
		cfg.Neighbours = []state.NeighbourCfg{Link("b", 1)}
	}
	cfg.ApplyDefaults()
	r, err := NewNodeRouter(&cfg, n.Transport("a"), discardLogger())
	require.NoError(t, err)
	b := n.Transport("b")
	t.Cleanup(func() {
		_ = r.transport.Close()
		_ = b.Close()
	})
	return r, b
}

func receiveVector(t *testing.T, tr state.Transport) *state.DistanceVector {
	t.Helper()
	dg, err := tr.Receive(time.Second)
	require.NoError(t, err)
	_, vec, err := protocol.Decode(dg.Payload)
	require.NoError(t, err)
	return vec
}

func TestNewNodeRouterRejectsBadNeighbours(t *testing.T) {
	n := impl.NewMemNetwork()
	_, err := NewNodeRouter(&state.NodeCfg{Id: "a", Neighbours: []state.NeighbourCfg{Link("a", 1)}}, n.Transport("a"), discardLogger())
	assert.ErrorIs(t, err, state.ErrInvariantViolation)
	_, err = NewNodeRouter(&state.NodeCfg{Id: "a", Neighbours: []state.NeighbourCfg{Link("b", -1)}}, n.Transport("a"), discardLogger())
	assert.ErrorIs(t, err, state.ErrInvariantViolation)
}

func TestIngestTriggersUpdate(t *testing.T) {
	r, b := twoNodes(t, state.NodeCfg{})
	var tables []state.RoutingTable
	r.OnChange = func(table state.RoutingTable) {
		tables = append(tables, table)
	}

	changed, err := r.Ingest([]byte("b,b:0,c:1"), "b")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, route("c", "b", 2), r.Table()["c"])
	assert.Equal(t, state.Metric(2), r.Vector().Get("c"))
	require.Len(t, tables, 1)
	assert.Equal(t, r.Table(), tables[0])

	vec := receiveVector(t, b)
	assert.Equal(t, state.NodeId("a"), vec.Self())
	assert.Equal(t, state.Metric(2), vec.Get("c"))
	assert.Equal(t, []state.NodeId{"b"}, r.ActiveNeighbours())
}

func TestIngestIsIdempotent(t *testing.T) {
	r, b := twoNodes(t, state.NodeCfg{})
	_, err := r.Ingest([]byte("b,b:0,c:1"), "b")
	require.NoError(t, err)
	receiveVector(t, b)
	table := r.Table()

	changed, err := r.Ingest([]byte("b,b:0,c:1"), "b")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, table, r.Table())
	_, err = b.Receive(50 * time.Millisecond)
	assert.ErrorIs(t, err, state.ErrTimedOut)
}

func TestFirstAdvertisementWakesNode(t *testing.T) {
	r, b := twoNodes(t, state.NodeCfg{})

	// b tells us nothing new, but has never heard from us
	changed, err := r.Ingest([]byte("b,a:1,b:0"), "b")
	require.NoError(t, err)
	assert.False(t, changed)
	vec := receiveVector(t, b)
	assert.Equal(t, state.Metric(1), vec.Get("b"))

	// once awake, unchanged tables are not re-sent
	_, err = r.Ingest([]byte("b,a:1,b:0"), "b")
	require.NoError(t, err)
	_, err = b.Receive(50 * time.Millisecond)
	assert.ErrorIs(t, err, state.ErrTimedOut)
}

func TestIngestDropsBadRecords(t *testing.T) {
	r, b := twoNodes(t, state.NodeCfg{})
	table := r.Table()

	tests := []struct {
		name    string
		payload string
		from    state.NodeId
		err     error
	}{
		{"garbage", "garbage", "b", state.ErrMalformedMessage},
		{"bad metric", "b,c:abc", "b", state.ErrMalformedMessage},
		{"negative metric", "b,c:-1", "b", state.ErrMalformedMessage},
		{"not a neighbour", "z,z:0,c:1", "z", state.ErrUnknownSender},
		{"spoofed sender", "z,z:0,c:1", "b", state.ErrUnknownSender},
		{"claims to be neighbour", "b,b:0,c:1", "z", state.ErrUnknownSender},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changed, err := r.Ingest([]byte(tt.payload), tt.from)
			assert.False(t, changed)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, table, r.Table())
		})
	}
	assert.Empty(t, r.ActiveNeighbours())
	_, err := b.Receive(50 * time.Millisecond)
	assert.ErrorIs(t, err, state.ErrTimedOut)
}

func TestIngestReportsTransportError(t *testing.T) {
	n := impl.NewMemNetwork()
	// no links, every send fails
	cfg := &state.NodeCfg{Id: "a", Neighbours: []state.NeighbourCfg{Link("b", 1)}}
	r, err := NewNodeRouter(cfg, n.Transport("a"), discardLogger())
	require.NoError(t, err)

	changed, err := r.Ingest([]byte("b,b:0,c:1"), "b")
	assert.True(t, changed)
	assert.ErrorIs(t, err, state.ErrTransport)
	assert.Equal(t, route("c", "b", 2), r.Table()["c"])

	assert.ErrorIs(t, r.Advertise(), state.ErrTransport)
}

func TestAdvertisePoisonReverse(t *testing.T) {
	r, b := twoNodes(t, state.NodeCfg{PoisonReverse: true})
	_, err := r.Ingest([]byte("b,b:0,c:1"), "b")
	require.NoError(t, err)

	vec := receiveVector(t, b)
	assert.True(t, vec.Get("c").IsInf())
	assert.Equal(t, state.Metric(2), r.Vector().Get("c"))
}

func TestLookup(t *testing.T) {
	r, _ := twoNodes(t, state.NodeCfg{
		Prefixes: map[state.NodeId][]netip.Prefix{
			"a": {netip.MustParsePrefix("10.0.1.0/24")},
			"c": {netip.MustParsePrefix("10.0.3.0/24"), netip.MustParsePrefix("10.0.3.128/25")},
			"d": {netip.MustParsePrefix("10.0.4.0/24")},
		},
	})

	_, ok := r.Lookup(netip.MustParseAddr("10.0.3.7"))
	assert.False(t, ok, "c is not known yet")

	_, err := r.Ingest([]byte("b,b:0,c:1,d:inf"), "b")
	require.NoError(t, err)

	entry, ok := r.Lookup(netip.MustParseAddr("10.0.3.200"))
	require.True(t, ok)
	assert.Equal(t, route("c", "b", 2), entry)

	entry, ok = r.Lookup(netip.MustParseAddr("10.0.1.1"))
	require.True(t, ok)
	assert.Equal(t, state.NodeId("a"), entry.Dest)
	assert.False(t, entry.Nh.IsSome())

	_, ok = r.Lookup(netip.MustParseAddr("10.0.4.1"))
	assert.False(t, ok, "d is unreachable")
	_, ok = r.Lookup(netip.MustParseAddr("192.168.0.1"))
	assert.False(t, ok)
}

func TestRelaxWithoutInput(t *testing.T) {
	r, _ := twoNodes(t, state.NodeCfg{})
	assert.False(t, r.Relax())
	assert.Equal(t, state.Metric(0), r.Table()["a"].Metric)
	assert.Equal(t, state.NodeId("a"), r.Id())
}

func TestForwarding(t *testing.T) {
	r, _ := twoNodes(t, state.NodeCfg{
		Prefixes: map[state.NodeId][]netip.Prefix{
			"a": {netip.MustParsePrefix("10.0.1.0/24")},
			"c": {netip.MustParsePrefix("10.0.3.7/24"), netip.MustParsePrefix("10.0.3.128/25")},
			"d": {netip.MustParsePrefix("10.0.4.0/24")},
		},
	})
	_, err := r.Ingest([]byte("b,b:0,c:1,d:inf"), "b")
	require.NoError(t, err)

	assert.Equal(t, "10.0.1.0/24 (a): (0) -> a\n"+
		"10.0.3.0/24 (c): (2) -> c via b\n"+
		"10.0.3.128/25 (c): (2) -> c via b\n"+
		"10.0.4.0/24 (d): unreachable\n", r.Forwarding())
}

func TestTableLogListsActiveNeighbours(t *testing.T) {
	n := impl.NewMemNetwork()
	n.AddLink("a", "b")
	sb := &strings.Builder{}
	cfg := &state.NodeCfg{Id: "a", Neighbours: []state.NeighbourCfg{Link("b", 1), Link("c", 1)}}
	r, err := NewNodeRouter(cfg, n.Transport("a"), slog.New(slog.NewTextHandler(sb, nil)))
	require.NoError(t, err)

	_, err = r.Ingest([]byte("b,b:0,d:1"), "b")
	assert.ErrorIs(t, err, state.ErrTransport, "there is no link to c")
	assert.Contains(t, sb.String(), `msg="routing table updated"`)
	assert.Contains(t, sb.String(), "active=[b]")
}
