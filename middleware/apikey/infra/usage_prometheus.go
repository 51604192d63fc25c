package infra

import (
	"context"

	"apikey-gateway/middleware/apikey/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusUsage expõe as decisões do gate como contador por resultado.
// A key em si nunca vira label (cardinalidade).
type PrometheusUsage struct {
	requests *prometheus.CounterVec
}

func NewPrometheusUsage(reg prometheus.Registerer, namespace string) *PrometheusUsage {
	if namespace == "" {
		namespace = "apikey_gateway"
	}
	p := &PrometheusUsage{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "gate",
				Name:      "requests_total",
				Help:      "Total number of protected calls by gate outcome",
			},
			[]string{"outcome"},
		),
	}
	reg.MustRegister(p.requests)

	// séries *Vec só aparecem depois do primeiro WithLabelValues
	for _, o := range domain.Outcomes {
		p.requests.WithLabelValues(string(o))
	}
	return p
}

func (p *PrometheusUsage) Record(_ context.Context, ev domain.UsageEvent) error {
	p.requests.WithLabelValues(string(ev.Outcome)).Inc()
	return nil
}

// RegisterAccountsGauge publica o número de contas vivas lido de fn a cada scrape.
func RegisterAccountsGauge(reg prometheus.Registerer, namespace string, fn func() int) {
	if namespace == "" {
		namespace = "apikey_gateway"
	}
	reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "accounts",
			Help:      "Number of live api key accounts",
		},
		func() float64 { return float64(fn()) },
	))
}
