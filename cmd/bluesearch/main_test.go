package main

import (
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluesearch/bluesearch/internal/config"
)

// The help text documents environment variables by name; each one must
// correspond to a field the config package actually reads.
func TestHelpEnvVarsMatchConfig(t *testing.T) {
	declared := map[string]bool{}
	typ := reflect.TypeOf(config.Config{})
	for i := 0; i < typ.NumField(); i++ {
		if tag := typ.Field(i).Tag.Get("envconfig"); tag != "" {
			declared["BLUESEARCH_"+tag] = true
		}
	}
	require.NotEmpty(t, declared)

	root := newRootCmd()
	mentioned := 0
	for _, line := range strings.Split(root.Long, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 || !strings.HasPrefix(fields[0], "BLUESEARCH_") {
			continue
		}
		mentioned++
		assert.True(t, declared[fields[0]], "help names %s but config does not read it", fields[0])
	}
	assert.GreaterOrEqual(t, mentioned, 4, "help should document the core environment variables")
}

func TestRootCmdRegistersSubcommands(t *testing.T) {
	root := newRootCmd()

	var names []string
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	for _, want := range []string{"query", "stream", "ingest", "status", "reset"} {
		assert.Contains(t, names, want)
	}
}
