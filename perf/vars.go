package perf

import (
	"expvar"
	"net/http"

	"github.com/encodeous/metric"
)

var (
	DispatchLatency        = metric.NewHistogram("1m1s")
	IngestLatency          = metric.NewHistogram("1m1s")
	AdvertisementsSent     = metric.NewCounter("10s1s")
	AdvertisementsReceived = metric.NewCounter("10s1s")
	DroppedRecords         = metric.NewCounter("10s1s")
	SendFailures           = metric.NewCounter("10s1s")
	RouteChanges           = metric.NewCounter("1m1s")
)

func init() {
	http.Handle("/debug/metrics", metric.Handler(metric.Exposed))
	expvar.Publish("dvnode:DispatchLatency (µs)", DispatchLatency)
	expvar.Publish("dvnode:IngestLatency (µs)", IngestLatency)
	expvar.Publish("dvnode:AdvertisementsSent/s", AdvertisementsSent)
	expvar.Publish("dvnode:AdvertisementsReceived/s", AdvertisementsReceived)
	expvar.Publish("dvnode:DroppedRecords/s", DroppedRecords)
	expvar.Publish("dvnode:SendFailures/s", SendFailures)
	expvar.Publish("dvnode:RouteChanges", RouteChanges)
}
