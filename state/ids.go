package state

import (
	"math"
	"strconv"
)

// NodeId identifies a node on the network. Ids are compared and ordered as strings.
type NodeId string

// Metric is the cost of reaching a destination. INF means unreachable.
type Metric float64

var INF = Metric(math.Inf(1))

func (m Metric) IsInf() bool {
	return math.IsInf(float64(m), 1)
}

// Valid reports whether m is usable as a distance: non-negative and not NaN.
func (m Metric) Valid() bool {
	return !math.IsNaN(float64(m)) && m >= 0
}

func (m Metric) String() string {
	if m.IsInf() {
		return "inf"
	}
	return strconv.FormatFloat(float64(m), 'g', -1, 64)
}

// AddMetric adds two metrics, saturating at INF
func AddMetric(a, b Metric) Metric {
	if a.IsInf() || b.IsInf() {
		return INF
	}
	return a + b
}
