package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/semdex/internal/core/domain"
)

func TestParseDomain(t *testing.T) {
	dom, err := parseDomain("products")
	require.NoError(t, err)
	assert.Equal(t, domain.DomainProducts, dom)

	_, err = parseDomain("bogus")
	assert.Error(t, err)
}

func TestParseFilters(t *testing.T) {
	filters, err := parseFilters([]string{"category=widgets", "state=SP"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"category": "widgets", "state": "SP"}, filters)

	filters, err = parseFilters(nil)
	require.NoError(t, err)
	assert.Nil(t, filters)

	_, err = parseFilters([]string{"no-equals"})
	assert.Error(t, err)

	_, err = parseFilters([]string{"=value"})
	assert.Error(t, err)
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	root := NewRootCommand()

	names := make(map[string]bool)
	for _, cmd := range root.Commands() {
		names[cmd.Name()] = true
	}

	for _, want := range []string{"reindex", "rebuild", "search", "schedule", "runs"} {
		assert.True(t, names[want], "missing %s command", want)
	}
}
