package core

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/encodeous/dvnode/state"
	"github.com/google/go-cmp/cmp"
)

type HarnessEvent struct {
	Message string
	Args    []any
}

func MakeEvent(msg string, args ...any) HarnessEvent {
	return HarnessEvent{
		Message: msg,
		Args:    args,
	}
}

// RouterHarness records everything the algorithm asks of its router
type RouterHarness struct {
	actions []HarnessEvent
	// failSend makes SendVector fail for these neighbours
	failSend []state.NodeId
}

func (h *RouterHarness) SendVector(neigh state.NodeId, vec *state.DistanceVector) error {
	if slices.Contains(h.failSend, neigh) {
		return fmt.Errorf("%w: %s unreachable", state.ErrTransport, neigh)
	}
	h.actions = append(h.actions, MakeEvent("SEND_VECTOR", neigh, vec.String()))
	return nil
}

func (h *RouterHarness) Log(event RouterEvent, desc string, args ...any) {
	x := make([]any, 0)
	x = append(x, event)
	x = append(x, desc)
	x = append(x, args...)
	h.actions = append(h.actions, MakeEvent("LOG", x...))
}

type HarnessEvents []HarnessEvent

func (h HarnessEvents) String() string {
	out := make([]string, 0)
	for _, action := range h {
		cur := action.Message
		for _, arg := range action.Args {
			cur += " " + fmt.Sprint(arg)
		}
		out = append(out, cur)
	}
	slices.Sort(out)
	return strings.Join(out, "\n")
}

// GetActions returns and clears the recorded actions, without log events
func (h *RouterHarness) GetActions() HarnessEvents {
	x := make([]HarnessEvent, 0)
	for _, action := range h.actions {
		if action.Message != "LOG" {
			x = append(x, action)
		}
	}

	h.actions = make([]HarnessEvent, 0)
	return x
}

// GetLogs returns and clears the recorded router events
func (h *RouterHarness) GetLogs() []RouterEvent {
	x := make([]RouterEvent, 0)
	for _, action := range h.actions {
		if action.Message == "LOG" {
			x = append(x, action.Args[0].(RouterEvent))
		}
	}
	h.actions = make([]HarnessEvent, 0)
	return x
}

func (e HarnessEvents) contains(msg string, args ...any) bool {
	for _, event := range e {
		if event.Message == msg {
			if len(event.Args) >= len(args) {
				match := true
				for i, arg := range args {
					if !cmp.Equal(event.Args[i], arg) {
						match = false
						break
					}
				}
				if match {
					return true
				}
			}
		}
	}
	return false
}

func (e HarnessEvents) AssertContains(t *testing.T, msg string, args ...any) {
	t.Helper()
	if e.contains(msg, args...) {
		return
	}
	t.Fatal("Expected event not found: ", msg, " with args: ", args, " in ", e)
}

func (e HarnessEvents) AssertNotContains(t *testing.T, msg string, args ...any) {
	t.Helper()
	if e.contains(msg, args...) {
		t.Fatal("Unexpected event found: ", msg, " with args: ", args, " in ", e)
	}
}

func MakeRouterState(t *testing.T, id state.NodeId, neighs ...state.NeighbourCfg) *state.RouterState {
	t.Helper()
	rs, err := state.NewRouterState(id, neighs)
	if err != nil {
		t.Fatal(err)
	}
	return rs
}

func Link(id state.NodeId, cost float64) state.NeighbourCfg {
	return state.NeighbourCfg{Id: id, Cost: cost}
}

// MakeVector builds the vector owned by self from dest, metric pairs
func MakeVector(t *testing.T, self state.NodeId, entries ...any) *state.DistanceVector {
	t.Helper()
	vec := state.NewDistanceVector(self)
	for i := 0; i+1 < len(entries); i += 2 {
		var m state.Metric
		switch v := entries[i+1].(type) {
		case int:
			m = state.Metric(v)
		case float64:
			m = state.Metric(v)
		case state.Metric:
			m = v
		default:
			t.Fatalf("bad metric %v", v)
		}
		if err := vec.Set(entries[i].(state.NodeId), m); err != nil {
			t.Fatal(err)
		}
	}
	return vec
}

func (h *RouterHarness) NeighUpdate(t *testing.T, rs *state.RouterState, neighId state.NodeId, entries ...any) bool {
	t.Helper()
	changed, err := HandleNeighbourUpdate(rs, h, neighId, MakeVector(t, neighId, entries...))
	if err != nil && !errors.Is(err, state.ErrTransport) {
		t.Fatal(err)
	}
	return changed
}

// CheckInvariants asserts that the route to self is 0 and that every route and vector
// entry is non-negative and consistent with each other
func CheckInvariants(t *testing.T, rs *state.RouterState) {
	t.Helper()
	self, ok := rs.Routes[rs.Id]
	if !ok || self.Metric != 0 || self.Nh.IsSome() {
		t.Fatalf("bad route to self: %v", self)
	}
	if rs.Vector.Get(rs.Id) != 0 {
		t.Fatalf("bad distance to self: %v", rs.Vector.Get(rs.Id))
	}
	for dest, route := range rs.Routes {
		if !route.Metric.Valid() {
			t.Fatalf("route to %s has invalid metric %v", dest, route.Metric)
		}
		if rs.Vector.Get(dest) != route.Metric {
			t.Fatalf("vector disagrees with route to %s: %v != %v", dest, rs.Vector.Get(dest), route.Metric)
		}
	}
}
