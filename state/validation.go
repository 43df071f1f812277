package state

import (
	"fmt"
	"math"
	"regexp"
	"slices"
)

var namePattern, _ = regexp.Compile("^[0-9a-z._-]+$")

func NameValidator(s string) error {
	if !namePattern.MatchString(s) {
		return fmt.Errorf("%s is not a valid name, must match pattern %s", s, namePattern.String())
	}
	if len(s) > 100 {
		return fmt.Errorf("len(\"%s\") = %d > 100 is too long", s, len(s))
	}
	return nil
}

func CostValidator(cost float64) error {
	if math.IsNaN(cost) || math.IsInf(cost, 0) || cost < 0 {
		return fmt.Errorf("%w: link cost must be finite and non-negative, got %v", ErrInvariantViolation, cost)
	}
	return nil
}

func LossValidator(loss float64) error {
	if math.IsNaN(loss) || loss < 0 || loss > 1 {
		return fmt.Errorf("loss rate must be within [0, 1], got %v", loss)
	}
	return nil
}

// NodeConfigValidator checks a node configuration. requireAddrs is set when the node is
// going to run over a real network, where every neighbour needs an address.
func NodeConfigValidator(node *NodeCfg, requireAddrs bool) error {
	err := NameValidator(string(node.Id))
	if err != nil {
		return err
	}
	if requireAddrs && !node.Bind.IsValid() {
		return fmt.Errorf("node.Bind is invalid")
	}
	if node.UpdateInterval < 0 {
		return fmt.Errorf("update_interval must not be negative")
	}
	if node.ReceiveTimeout <= 0 {
		return fmt.Errorf("receive_timeout must be positive")
	}
	seen := make([]NodeId, 0, len(node.Neighbours))
	for _, neigh := range node.Neighbours {
		if err := NameValidator(string(neigh.Id)); err != nil {
			return err
		}
		if neigh.Id == node.Id {
			return fmt.Errorf("node %s cannot be its own neighbour", node.Id)
		}
		if slices.Contains(seen, neigh.Id) {
			return fmt.Errorf("duplicate neighbour found: %s", neigh.Id)
		}
		seen = append(seen, neigh.Id)
		if err := CostValidator(neigh.Cost); err != nil {
			return fmt.Errorf("neighbour %s: %w", neigh.Id, err)
		}
		if err := LossValidator(neigh.Loss); err != nil {
			return fmt.Errorf("neighbour %s: %w", neigh.Id, err)
		}
		if requireAddrs && !neigh.Addr.IsValid() {
			return fmt.Errorf("neighbour %s has no valid address", neigh.Id)
		}
	}
	for node, prefixes := range node.Prefixes {
		if err := NameValidator(string(node)); err != nil {
			return err
		}
		for _, prefix := range prefixes {
			if !prefix.IsValid() {
				return fmt.Errorf("node %s has an invalid prefix", node)
			}
		}
	}
	return nil
}
