package prommetrics

import (
	"context"
	"testing"

	accounts "github.com/nextonlabs/go-accounts"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSinkCountsLifecycleEvents(t *testing.T) {
	sink := New(prometheus.NewRegistry())
	ctx := context.Background()

	require.NoError(t, sink.Record(ctx, accounts.ActivityEvent{
		EventType: accounts.ActivityAccountInvited,
		Channel:   accounts.ChannelPhone,
	}))
	require.NoError(t, sink.Record(ctx, accounts.ActivityEvent{
		EventType: accounts.ActivityAccountInvited,
		Channel:   accounts.ChannelPhone,
	}))
	require.NoError(t, sink.Record(ctx, accounts.ActivityEvent{
		EventType: accounts.ActivityAccountSignedUp,
		Channel:   accounts.ChannelEmail,
	}))

	assert.Equal(t, 2.0, testutil.ToFloat64(sink.EventsTotal.WithLabelValues("account.invited", "PHONE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.EventsTotal.WithLabelValues("account.signup", "EMAIL")))
}

func TestSinkCountsRolesFailuresAndDenials(t *testing.T) {
	sink := New(prometheus.NewRegistry())
	ctx := context.Background()

	require.NoError(t, sink.Record(ctx, accounts.ActivityEvent{
		EventType: accounts.ActivityRoleAdded,
		Role:      accounts.RoleAdmin,
	}))
	require.NoError(t, sink.Record(ctx, accounts.ActivityEvent{
		EventType: accounts.ActivityRoleRemoved,
		Role:      accounts.RoleAdmin,
	}))
	require.NoError(t, sink.Record(ctx, accounts.ActivityEvent{
		EventType: accounts.ActivityOperationPartial,
	}))
	require.NoError(t, sink.Record(ctx, accounts.ActivityEvent{
		EventType: accounts.ActivityAccessDenied,
		Metadata:  map[string]any{"stage": "signature_verified", "code": accounts.TextCodeUnknownSigningKey},
	}))

	assert.Equal(t, 1.0, testutil.ToFloat64(sink.RoleChangesTotal.WithLabelValues("ADMIN", "added")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.RoleChangesTotal.WithLabelValues("ADMIN", "removed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.OperationFailuresTotal.WithLabelValues("partial_failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.AccessDeniedTotal.WithLabelValues("signature_verified", "UNKNOWN_SIGNING_KEY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.EventsTotal.WithLabelValues("account.role.added", "")))
	assert.Equal(t, 0.0, testutil.ToFloat64(sink.EventsTotal.WithLabelValues("access.denied", "")))
}
