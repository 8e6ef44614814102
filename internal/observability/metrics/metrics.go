package metrics

import "github.com/prometheus/client_golang/prometheus"

// BotMetrics exposes counters/histograms for the webhook and delivery flows.
type BotMetrics struct {
	inboundTotal    *prometheus.CounterVec
	deliveriesTotal *prometheus.CounterVec
	webhookLatency  *prometheus.HistogramVec
}

func NewBotMetrics(reg prometheus.Registerer) *BotMetrics {
	m := &BotMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "giftcardbot",
			Subsystem: "webhook",
			Name:      "inbound_total",
			Help:      "Total inbound MercadoLibre webhooks",
		}, []string{"topic", "status"}),
		deliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "giftcardbot",
			Subsystem: "delivery",
			Name:      "codes_total",
			Help:      "Total gift-code delivery attempts",
		}, []string{"result"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "giftcardbot",
			Subsystem: "webhook",
			Name:      "latency_seconds",
			Help:      "Latency of webhook job processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"topic"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.deliveriesTotal, m.webhookLatency)
	return m
}

func (m *BotMetrics) ObserveInbound(topic, status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(topic, status).Inc()
}

func (m *BotMetrics) ObserveDelivery(result string) {
	if m == nil {
		return
	}
	m.deliveriesTotal.WithLabelValues(result).Inc()
}

func (m *BotMetrics) ObserveWebhookLatency(topic string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(topic).Observe(seconds)
}
