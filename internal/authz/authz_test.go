package authz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prochub/prochub/internal/procerr"
)

func TestSessionGateAllows(t *testing.T) {
	gate := SessionGate{}
	session := NewSession("svc-a", "T1",
		[]string{"refund.write"}, []string{"ops"}, []string{"refunds-enabled"})

	err := gate.Authorize(context.Background(), session, "refund", Requirements{
		Permissions: []string{"refund.write"},
		Roles:       []string{"ops"},
		Features:    []string{"refunds-enabled"},
	})
	assert.NoError(t, err)
}

func TestSessionGateDeniesWithMissing(t *testing.T) {
	gate := SessionGate{}
	session := NewSession("svc-a", "T1", []string{"refund.read"}, nil, nil)

	err := gate.Authorize(context.Background(), session, "refund", Requirements{
		Permissions: []string{"refund.write"},
		Roles:       []string{"ops"},
	})
	require.Error(t, err)
	assert.True(t, procerr.IsUnauthorized(err))

	var denied *procerr.UnauthorizedError
	require.ErrorAs(t, err, &denied)
	assert.ElementsMatch(t, []string{"permission:refund.write", "role:ops"}, denied.Missing)
}

func TestWildcardGrantsClass(t *testing.T) {
	gate := SessionGate{}
	session := NewSession("admin", "T1", []string{"*"}, []string{"*"}, []string{"*"})

	err := gate.Authorize(context.Background(), session, "anything", Requirements{
		Permissions: []string{"a", "b"},
		Roles:       []string{"c"},
		Features:    []string{"d"},
	})
	assert.NoError(t, err)
}

func TestNoRequirementsAlwaysAllowed(t *testing.T) {
	gate := SessionGate{}
	err := gate.Authorize(context.Background(), Session{}, "open", Requirements{})
	assert.NoError(t, err)
}

func TestSessionContextRoundTrip(t *testing.T) {
	s := NewSession("svc", "T2", []string{"x"}, nil, nil)
	ctx := WithSession(context.Background(), s)

	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "T2", got.TenantID)
	_, hasX := got.Permissions["x"]
	assert.True(t, hasX)

	_, ok = FromContext(context.Background())
	assert.False(t, ok)
}
