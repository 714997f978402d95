package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"relay/internal/relay/route"
)

type fakeLookup struct {
	status map[string]route.Status
	err    error
}

func (f *fakeLookup) Status(_ context.Context, token string) (route.Status, error) {
	if f.err != nil {
		return route.Status{}, f.err
	}
	if st, ok := f.status[token]; ok {
		return st, nil
	}
	return route.Status{Token: token, State: route.StateUnknown}, nil
}

func TestRunStatus(t *testing.T) {
	lookup := &fakeLookup{status: map[string]route.Status{
		"a": {Token: "a", State: route.StateDelivered, Receipt: &route.Receipt{Token: "a", Topic: "orders", Offset: 12}},
		"b": {Token: "b", State: route.StateFailed, DeadLetter: &route.DeadLetter{Token: "b", Attempts: 3}},
	}}

	tests := []struct {
		name    string
		token   string
		state   string
		wantErr string
	}{
		{"delivered", "a", route.StateDelivered, ""},
		{"failed", "b", route.StateFailed, ""},
		{"unknown", "c", route.StateUnknown, "no receipt or dead letter for c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := runStatus(context.Background(), zaptest.NewLogger(t), lookup, tt.token, &out)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}

			var st route.Status
			require.NoError(t, json.Unmarshal(out.Bytes(), &st))
			assert.Equal(t, tt.token, st.Token)
			assert.Equal(t, tt.state, st.State)
		})
	}
}

func TestRunStatus_LookupError(t *testing.T) {
	var out bytes.Buffer
	err := runStatus(context.Background(), zaptest.NewLogger(t), &fakeLookup{err: errors.New("cluster unavailable")}, "a", &out)
	require.ErrorContains(t, err, "cluster unavailable")
	assert.Empty(t, out.String())
}

func TestStatusCmd_RequiresToken(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"status"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	t.Setenv("BROKER", "fault")
	assert.Error(t, cmd.Execute())
}
