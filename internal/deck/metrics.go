package deck

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/colonyops/taskdeck/internal/core/eventbus"
)

const metricsNamespace = "taskdeck"

// Metrics exposes Prometheus collectors for bus traffic, applied deltas,
// prompt delivery and the task cache.
type Metrics struct {
	eventsPublished  *prometheus.CounterVec
	eventsDropped    *prometheus.CounterVec
	subscriberPanics *prometheus.CounterVec
	deltas           *prometheus.CounterVec
	promptsQueued    prometheus.Counter
	promptsSent      prometheus.Counter
	tasksPruned      prometheus.Counter
}

// CacheSizer reports how many tasks the cache holds.
type CacheSizer interface {
	Len() int
}

// NewMetrics creates the collectors and registers them with reg. cache may
// be nil.
func NewMetrics(reg prometheus.Registerer, cache CacheSizer) (*Metrics, error) {
	m := &Metrics{
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "bus",
			Name:      "events_published_total",
			Help:      "Events accepted by the event bus.",
		}, []string{"event"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "bus",
			Name:      "events_dropped_total",
			Help:      "Events dropped because the bus buffer was full.",
		}, []string{"event"}),
		subscriberPanics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "bus",
			Name:      "subscriber_panics_total",
			Help:      "Subscriber panics recovered by the event bus.",
		}, []string{"event"}),
		deltas: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "tasks",
			Name:      "deltas_total",
			Help:      "Task deltas delivered, by kind.",
		}, []string{"kind"}),
		promptsQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "prompts",
			Name:      "queued_total",
			Help:      "Prompts queued.",
		}),
		promptsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "prompts",
			Name:      "dispatched_total",
			Help:      "Queued prompts delivered to an agent.",
		}),
		tasksPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "tasks",
			Name:      "pruned_total",
			Help:      "Tasks removed by the retention sweep.",
		}),
	}

	collectors := []prometheus.Collector{
		m.eventsPublished, m.eventsDropped, m.subscriberPanics,
		m.deltas, m.promptsQueued, m.promptsSent, m.tasksPruned,
	}
	if cache != nil {
		collectors = append(collectors, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "cache",
			Name:      "resident_tasks",
			Help:      "Tasks currently held in the state cache.",
		}, func() float64 { return float64(cache.Len()) }))
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Observe hooks the collectors onto bus.
func (m *Metrics) Observe(bus *eventbus.EventBus) {
	bus.OnPublish(func(e eventbus.Event, _ any) {
		m.eventsPublished.WithLabelValues(string(e)).Inc()
	})
	bus.OnDrop(func(e eventbus.Event, _ any) {
		m.eventsDropped.WithLabelValues(string(e)).Inc()
	})
	bus.OnPanic(func(e eventbus.Event, _, _ any) {
		m.subscriberPanics.WithLabelValues(string(e)).Inc()
	})

	bus.SubscribeTaskDelta(func(p eventbus.TaskDeltaPayload) {
		m.deltas.WithLabelValues(string(p.Delta.Kind())).Inc()
	})
	bus.SubscribePromptQueued(func(eventbus.PromptQueuedPayload) {
		m.promptsQueued.Inc()
	})
	bus.SubscribePromptDispatched(func(eventbus.PromptDispatchedPayload) {
		m.promptsSent.Inc()
	})
	bus.SubscribeTasksPruned(func(p eventbus.TasksPrunedPayload) {
		m.tasksPruned.Add(float64(len(p.TaskIDs)))
	})
}
