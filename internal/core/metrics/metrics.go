package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dep2p/go-mdnsd/pkg/interfaces"
)

// Collector 引擎指标收集器
type Collector struct {
	received  prometheus.Counter
	sent      *prometheus.CounterVec
	questions prometheus.Counter
	resources *prometheus.CounterVec
	conflicts *prometheus.CounterVec
	renewals  prometheus.Counter
	expired   prometheus.Counter
	agents    prometheus.Gauge
}

var _ interfaces.Metrics = (*Collector)(nil)

// New 创建收集器并注册到 reg
func New(cfg Config, reg prometheus.Registerer) (*Collector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ns := cfg.Namespace
	c := &Collector{
		received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "messages_received_total",
			Help:      "Inbound mDNS messages delivered to the engine.",
		}),
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "messages_sent_total",
			Help:      "Outbound mDNS messages handed to the transport.",
		}, []string{"dest"}),
		questions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "questions_delivered_total",
			Help:      "Questions fanned out to agents.",
		}),
		resources: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "resources_delivered_total",
			Help:      "Resource records fanned out to agents.",
		}, []string{"section"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "probe_conflicts_total",
			Help:      "Name conflicts detected while probing.",
		}, []string{"kind"}),
		renewals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "renewals_requested_total",
			Help:      "Records registered for renewal.",
		}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "expirations_total",
			Help:      "Records that reached the end of their TTL.",
		}),
		agents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "agents",
			Help:      "Agents currently registered with the engine.",
		}),
	}

	for _, col := range []prometheus.Collector{
		c.received, c.sent, c.questions, c.resources, c.conflicts, c.renewals, c.expired, c.agents,
	} {
		if err := reg.Register(col); err != nil {
			return nil, NewMetricsError("register", err, "failed to register collector")
		}
	}
	return c, nil
}

// MessageReceived 实现 interfaces.Metrics
func (c *Collector) MessageReceived() { c.received.Inc() }

// MessageSent 实现 interfaces.Metrics
func (c *Collector) MessageSent(multicast bool) {
	dest := "unicast"
	if multicast {
		dest = "multicast"
	}
	c.sent.WithLabelValues(dest).Inc()
}

func (c *Collector) QuestionDelivered() { c.questions.Inc() }

func (c *Collector) ResourceDelivered(section string) {
	c.resources.WithLabelValues(section).Inc()
}

func (c *Collector) ProbeConflict(kind string) {
	c.conflicts.WithLabelValues(kind).Inc()
}

func (c *Collector) RenewRequested() { c.renewals.Inc() }

func (c *Collector) Expiration() { c.expired.Inc() }

func (c *Collector) AgentsRegistered(n int) { c.agents.Set(float64(n)) }

// Handler 返回指标的 HTTP 处理器
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
