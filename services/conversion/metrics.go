package conversion

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	conversionsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "affiliate_conversions_submitted_total",
		Help: "Conversions accepted by intake.",
	})
	conversionsDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "affiliate_conversions_duplicate_total",
		Help: "Conversions rejected because the order id was already seen.",
	})
	distributions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "affiliate_distributions_total",
		Help: "Distribution runs by result.",
	}, []string{"result"})
	sharesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "affiliate_commission_shares_total",
		Help: "Commission ledger entries written by distribution.",
	})
)
