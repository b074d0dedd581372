package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/leozw/inbound-guardian/internal/checker"
	"github.com/leozw/inbound-guardian/internal/core"
)

type Collector struct {
	// Verification
	checksTotal       *prometheus.CounterVec
	domainTransitions *prometheus.CounterVec
	conflictsTotal    prometheus.Counter

	// DNS
	dnsLookupDuration *prometheus.HistogramVec
	dnsLookupsTotal   *prometheus.CounterVec

	// Remote provider
	ruleSyncsTotal     *prometheus.CounterVec
	identityCallsTotal *prometheus.CounterVec

	// Usage side channel
	usageEventsTotal *prometheus.CounterVec
}

// NewCollector registers every collector on reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		checksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inbound_domain_checks_total",
				Help: "Total number of domain verification checks by resulting status",
			},
			[]string{"status"},
		),

		domainTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inbound_domain_status_transitions_total",
				Help: "Domain status transitions performed by checks",
			},
			[]string{"from", "to"},
		),

		conflictsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "inbound_domain_mx_conflicts_total",
				Help: "Domains rejected because they already receive mail elsewhere",
			},
		),

		dnsLookupDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "inbound_dns_lookup_duration_seconds",
				Help:    "Duration of DNS lookups in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"record_type"},
		),

		dnsLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inbound_dns_lookups_total",
				Help: "Total number of DNS lookups by outcome",
			},
			[]string{"record_type", "result"},
		),

		ruleSyncsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inbound_receipt_rule_syncs_total",
				Help: "Remote receipt rule synchronizations by operation and status",
			},
			[]string{"operation", "status"},
		),

		identityCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inbound_identity_calls_total",
				Help: "Remote identity calls by operation and result",
			},
			[]string{"operation", "result"},
		),

		usageEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inbound_usage_events_total",
				Help: "Usage events emitted to the side channel by result",
			},
			[]string{"event", "result"},
		),
	}
}

// ObserveLookup implements checker.LookupObserver.
func (c *Collector) ObserveLookup(recordType string, elapsed time.Duration, err error) {
	c.dnsLookupDuration.WithLabelValues(recordType).Observe(elapsed.Seconds())
	c.dnsLookupsTotal.WithLabelValues(recordType, lookupResult(err)).Inc()
}

func lookupResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, checker.ErrNotFound):
		return "nxdomain"
	case errors.Is(err, checker.ErrNoData):
		return "nodata"
	case errors.Is(err, checker.ErrTimeout):
		return "timeout"
	default:
		return "error"
	}
}

func (c *Collector) RecordCheck(from, to core.DomainStatus) {
	c.checksTotal.WithLabelValues(string(to)).Inc()
	if from != to {
		c.domainTransitions.WithLabelValues(string(from), string(to)).Inc()
	}
}

func (c *Collector) RecordConflict() {
	c.conflictsTotal.Inc()
}

func (c *Collector) RecordRuleSync(operation, status string) {
	c.ruleSyncsTotal.WithLabelValues(operation, status).Inc()
}

// RuleSyncs exposes a single rule sync series.
func (c *Collector) RuleSyncs(operation, status string) prometheus.Counter {
	return c.ruleSyncsTotal.WithLabelValues(operation, status)
}

func (c *Collector) RecordIdentityCall(operation string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	c.identityCallsTotal.WithLabelValues(operation, result).Inc()
}

func (c *Collector) RecordUsageEvent(event string, err error) {
	result := "sent"
	if err != nil {
		result = "dropped"
	}
	c.usageEventsTotal.WithLabelValues(event, result).Inc()
}

func (c *Collector) UsageEvents(event, result string) prometheus.Counter {
	return c.usageEventsTotal.WithLabelValues(event, result)
}

func (c *Collector) Checks(status core.DomainStatus) prometheus.Counter {
	return c.checksTotal.WithLabelValues(string(status))
}
