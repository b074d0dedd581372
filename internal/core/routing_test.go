package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatchAllRoutingRequiresTarget(t *testing.T) {
	_, err := CatchAllRouting(TargetRef{})
	require.Error(t, err)

	_, err = CatchAllRouting(TargetRef{EndpointID: "ep_1", WebhookID: "wh_1"})
	require.Error(t, err)

	r, err := CatchAllRouting(TargetRef{EndpointID: "ep_1"})
	require.NoError(t, err)
	assert.Equal(t, RoutingCatchAll, r.Mode())
	target, ok := r.CatchAllTarget()
	assert.True(t, ok)
	assert.Equal(t, "ep_1", target.EndpointID)
}

func TestZeroRoutingIsIndividual(t *testing.T) {
	var r DomainRouting
	assert.Equal(t, RoutingIndividual, r.Mode())
	assert.False(t, r.IsCatchAll())
	_, ok := r.CatchAllTarget()
	assert.False(t, ok)
}

func TestRestoreRouting(t *testing.T) {
	tests := []struct {
		name    string
		mode    string
		target  TargetRef
		want    RoutingMode
		wantErr bool
	}{
		{name: "empty mode", mode: "", want: RoutingIndividual},
		{name: "none ignores stale target", mode: "none", target: TargetRef{WebhookID: "wh"}, want: RoutingIndividual},
		{name: "catch-all with legacy webhook", mode: "catch-all", target: TargetRef{WebhookID: "wh"}, want: RoutingCatchAll},
		{name: "catch-all without target", mode: "catch-all", wantErr: true},
		{name: "unknown mode", mode: "forward", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := RestoreRouting(tt.mode, tt.target)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.Mode())
		})
	}
}

func TestRoutingJSONRejectsCatchAllWithoutTarget(t *testing.T) {
	var r DomainRouting
	err := json.Unmarshal([]byte(`{"mode":"catch-all"}`), &r)
	require.Error(t, err)

	out, err := json.Marshal(IndividualRouting())
	require.NoError(t, err)
	assert.JSONEq(t, `{"mode":"none"}`, string(out))
}

func TestConfidenceDowngrade(t *testing.T) {
	assert.Equal(t, ConfidenceMedium, ConfidenceHigh.Downgrade())
	assert.Equal(t, ConfidenceLow, ConfidenceMedium.Downgrade())
	assert.Equal(t, ConfidenceLow, ConfidenceLow.Downgrade())
}
