package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumatoshi-tech/graphiti/pkg/config"
	"github.com/sumatoshi-tech/graphiti/pkg/scope"
)

func defaultTestConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)

	return cfg
}

func TestScopeFlags_MutuallyExclusive_ReturnsUsageError(t *testing.T) {
	f := &scopeFlags{global: true, project: true}

	_, _, err := f.resolve(scope.OperationScoped, defaultTestConfig(t))
	require.Error(t, err)

	var usageErr *UsageError
	assert.ErrorAs(t, err, &usageErr)
}

func TestScopeFlags_GlobalFlag_ForcesGlobalScope(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	f := &scopeFlags{global: true}

	_, res, err := f.resolve(scope.OperationScoped, defaultTestConfig(t))
	require.NoError(t, err)
	assert.Equal(t, scope.Global, res.Scope)
}

func TestScopeFlags_AlwaysGlobalKind_IgnoresProjectFlag(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	f := &scopeFlags{project: true}

	_, res, err := f.resolve(scope.OperationAlwaysGlobal, defaultTestConfig(t))
	require.NoError(t, err)
	assert.Equal(t, scope.Global, res.Scope)
}
