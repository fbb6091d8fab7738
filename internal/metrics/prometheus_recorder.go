package metrics

import (
	"net/http"
	"strconv"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "warehouse"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	stockMovements     *prom.CounterVec
	stockUnits         *prom.CounterVec
	capacityRejections prom.Counter
	lowStock           prom.Counter
	itemsCompleted     *prom.CounterVec
	tasksFinished      prom.Counter
	forkliftEvents     *prom.CounterVec
	forkliftsDue       prom.Gauge
	httpDuration       *prom.HistogramVec
}

var _ Recorder = (*PrometheusRecorder)(nil)

// NewPrometheusRecorder constructs the metrics and registers them on reg.
func NewPrometheusRecorder(reg prom.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		stockMovements: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "stock_movements_total",
			Help:      "Applied position changes by reason",
		}, []string{"reason"}),
		stockUnits: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "stock_units_moved_total",
			Help:      "Units moved in or out of positions",
		}, []string{"direction"}),
		capacityRejections: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "capacity_rejections_total",
			Help:      "Position changes rejected because they would leave the position bounds",
		}),
		lowStock: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "low_stock_transitions_total",
			Help:      "Products that dropped below their threshold",
		}),
		itemsCompleted: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "task_item_completions_total",
			Help:      "Task item completion attempts by direction and result",
		}, []string{"direction", "result"}),
		tasksFinished: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_finished_total",
			Help:      "Tasks whose last ongoing item was completed",
		}),
		forkliftEvents: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "forklift_transitions_total",
			Help:      "Fleet state machine transitions by event",
		}, []string{"event"}),
		forkliftsDue: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "forklifts_maintenance_due",
			Help:      "Forklifts due for maintenance at the last sweep",
		}),
		httpDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration by route, method and status",
			Buckets:   prom.DefBuckets,
		}, []string{"route", "method", "status"}),
	}
	reg.MustRegister(
		pr.stockMovements, pr.stockUnits, pr.capacityRejections, pr.lowStock,
		pr.itemsCompleted, pr.tasksFinished, pr.forkliftEvents, pr.forkliftsDue, pr.httpDuration,
	)
	return pr
}

func (p *PrometheusRecorder) IncStockMovement(reason string, delta int) {
	p.stockMovements.WithLabelValues(reason).Inc()
	switch {
	case delta > 0:
		p.stockUnits.WithLabelValues("in").Add(float64(delta))
	case delta < 0:
		p.stockUnits.WithLabelValues("out").Add(float64(-delta))
	}
}

func (p *PrometheusRecorder) IncCapacityRejection() { p.capacityRejections.Inc() }

func (p *PrometheusRecorder) IncLowStock() { p.lowStock.Inc() }

func (p *PrometheusRecorder) IncTaskItemCompleted(direction string, success bool) {
	result := "success"
	if !success {
		result = "failed"
	}
	p.itemsCompleted.WithLabelValues(direction, result).Inc()
}

func (p *PrometheusRecorder) IncTaskFinished() { p.tasksFinished.Inc() }

func (p *PrometheusRecorder) IncForkliftTransition(event string) {
	p.forkliftEvents.WithLabelValues(event).Inc()
}

func (p *PrometheusRecorder) SetForkliftsDue(n int) { p.forkliftsDue.Set(float64(n)) }

func (p *PrometheusRecorder) ObserveHTTPRequest(route, method string, status int, d time.Duration) {
	p.httpDuration.WithLabelValues(route, method, strconv.Itoa(status)).Observe(d.Seconds())
}

// Handler serves the metrics gathered by g.
func Handler(g prom.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
