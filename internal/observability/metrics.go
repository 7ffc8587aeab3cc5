package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "towfleet", Name: "requests_created_total",
		Help: "Tow requests created",
	})
	OffersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "towfleet", Name: "offers_total",
		Help: "Price offers recorded, by type",
	}, []string{"type"})
	NegotiationsAgreedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "towfleet", Name: "negotiations_agreed_total",
		Help: "Negotiations that ended in an agreed price",
	})
	NegotiationsExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "towfleet", Name: "negotiations_exhausted_total",
		Help: "Negotiations that ran out of candidate drivers",
	})
	DriverRotationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "towfleet", Name: "driver_rotations_total",
		Help: "Times negotiation moved to the next nearest driver",
	})
	DirectAcceptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "towfleet", Name: "direct_accepts_total",
		Help: "Requests accepted outside negotiation",
	})
	OffersExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "towfleet", Name: "offers_expired_total",
		Help: "Pending offers expired by the sweeper",
	})
)
