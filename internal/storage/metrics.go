package storage

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	upserted     *prometheus.CounterVec
	priceChanges prometheus.Counter
	failures     *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) (m *metrics, err error) {
	// promauto panics on duplicate registration; report it as an error instead.
	defer func() {
		if r := recover(); r != nil {
			m, err = nil, errors.Errorf("registering store metrics: %v", r)
		}
	}()

	factory := promauto.With(reg)
	return &metrics{
		upserted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "listingstore_upserted_listings_total",
			Help: "Listings written by upsert batches, by whether the row was new.",
		}, []string{"result"}),
		priceChanges: factory.NewCounter(prometheus.CounterOpts{
			Name: "listingstore_price_changes_total",
			Help: "Price history entries appended.",
		}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "listingstore_operation_failures_total",
			Help: "Store operations that failed and were rolled back.",
		}, []string{"op"}),
	}, nil
}
