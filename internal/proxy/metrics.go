package proxy

import "github.com/prometheus/client_golang/prometheus"

type proxyMetrics struct {
	activeConns       prometheus.Gauge
	bytesUp           prometheus.Counter
	bytesDown         prometheus.Counter
	messagesRewritten prometheus.Counter
	dialErrors        prometheus.Counter
	acceptErrors      prometheus.Counter
}

func newProxyMetrics(reg prometheus.Registerer) (*proxyMetrics, error) {
	m := &proxyMetrics{
		activeConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "xmlabridge_active_connections",
			Help: "Number of client connections currently relayed",
		}),
		bytesUp: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "xmlabridge_bytes_upstream_total",
			Help: "Total bytes forwarded from clients to the target after rewriting",
		}),
		bytesDown: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "xmlabridge_bytes_downstream_total",
			Help: "Total bytes forwarded from the target to clients",
		}),
		messagesRewritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "xmlabridge_messages_rewritten_total",
			Help: "Number of complete request envelopes passed through the rewrite engine",
		}),
		dialErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "xmlabridge_dial_errors_total",
			Help: "Number of failed outbound connections to the target instance",
		}),
		acceptErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "xmlabridge_accept_errors_total",
			Help: "Number of non-fatal accept loop failures",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.activeConns,
		m.bytesUp,
		m.bytesDown,
		m.messagesRewritten,
		m.dialErrors,
		m.acceptErrors,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
