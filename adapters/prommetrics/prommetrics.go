// Package prommetrics counts account lifecycle activity with Prometheus.
//
// The Sink implements accounts.ActivitySink; register it next to any audit
// sink with accounts.MultiActivitySink.
package prommetrics

import (
	"context"

	accounts "github.com/nextonlabs/go-accounts"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "accounts"

// Sink holds the lifecycle metrics.
type Sink struct {
	// EventsTotal counts lifecycle events.
	// Labels:
	//   - event: the activity event type (e.g. "account.invited")
	//   - channel: "EMAIL", "PHONE" or "" when not applicable
	EventsTotal *prometheus.CounterVec
	// RoleChangesTotal counts role grants and revocations.
	// Labels:
	//   - role: "ADMIN" or "CANDIDATE"
	//   - action: "added" or "removed"
	RoleChangesTotal *prometheus.CounterVec
	// OperationFailuresTotal counts cross system operations that did not
	// complete.
	// Labels:
	//   - outcome: "failed", "partial_failure" or "compensated"
	OperationFailuresTotal *prometheus.CounterVec
	// AccessDeniedTotal counts rejected requests.
	// Labels:
	//   - stage: the verification step that failed
	//   - code: the error text code
	AccessDeniedTotal *prometheus.CounterVec
}

var _ accounts.ActivitySink = (*Sink)(nil)

// New creates the metrics and registers them with reg. A nil reg uses the
// default Prometheus registry.
func New(reg prometheus.Registerer) *Sink {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Sink{
		EventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lifecycle_events_total",
				Help:      "Total number of account lifecycle events.",
			},
			[]string{"event", "channel"},
		),
		RoleChangesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "role_changes_total",
				Help:      "Total number of role memberships added or removed.",
			},
			[]string{"role", "action"},
		),
		OperationFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operation_failures_total",
				Help:      "Total number of lifecycle operations that did not complete.",
			},
			[]string{"outcome"},
		),
		AccessDeniedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "access_denied_total",
				Help:      "Total number of requests rejected by the access guard.",
			},
			[]string{"stage", "code"},
		),
	}
}

// Record implements accounts.ActivitySink.
func (s *Sink) Record(_ context.Context, event accounts.ActivityEvent) error {
	switch event.EventType {
	case accounts.ActivityRoleAdded:
		s.RoleChangesTotal.WithLabelValues(string(event.Role), "added").Inc()
	case accounts.ActivityRoleRemoved:
		s.RoleChangesTotal.WithLabelValues(string(event.Role), "removed").Inc()
	case accounts.ActivityOperationFailed:
		s.OperationFailuresTotal.WithLabelValues("failed").Inc()
	case accounts.ActivityOperationPartial:
		s.OperationFailuresTotal.WithLabelValues("partial_failure").Inc()
	case accounts.ActivityOperationCompensated:
		s.OperationFailuresTotal.WithLabelValues("compensated").Inc()
	case accounts.ActivityAccessDenied:
		s.AccessDeniedTotal.WithLabelValues(metadataString(event, "stage"), metadataString(event, "code")).Inc()
		return nil
	}

	s.EventsTotal.WithLabelValues(string(event.EventType), string(event.Channel)).Inc()
	return nil
}

func metadataString(event accounts.ActivityEvent, key string) string {
	if event.Metadata == nil {
		return ""
	}
	v, _ := event.Metadata[key].(string)
	return v
}
