package state

import "time"

var (
	// MinLinkMetric is the smallest metric a direct link can have, so that a neighbour is
	// never at distance 0 like the node itself.
	MinLinkMetric = Metric(1e-9)

	DefaultReceiveTimeout = time.Second * 50
	NeighbourLivenessTTL  = time.Second * 15
	DispatchWarnLatency   = time.Millisecond * 4
	AdvertiseRetryDelay   = time.Second * 5

	// SafeMTU bounds a single advertisement, larger ones are still sent but logged
	SafeMTU = 1200

	// QuiescentPeriod is how long a simulation must see no routing changes before it stops
	QuiescentPeriod = time.Millisecond * 200
)
