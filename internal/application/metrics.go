package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/brandon-dore/desk-booking-web-app-secure-devops/internal/domain/model"
)

var (
	loginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "deskbook",
		Name:      "logins_total",
		Help:      "Login attempts by result.",
	}, []string{"result"})

	forcedLogoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "deskbook",
		Name:      "forced_logouts_total",
		Help:      "Sessions cleared by the validity check, by reason.",
	}, []string{"reason"})

	resourceRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "deskbook",
		Name:      "resource_requests_total",
		Help:      "Backend resource calls by resource, operation and result.",
	}, []string{"resource", "operation", "result"})

	deltaFields = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "deskbook",
		Name:      "delta_fields",
		Help:      "Top-level fields carried by each update payload.",
		Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
	})
)

func observeResource(resource model.Resource, operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	resourceRequestsTotal.WithLabelValues(string(resource), operation, result).Inc()
}
