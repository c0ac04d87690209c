package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rshade/finsync/internal/cli"
)

func TestRun(t *testing.T) {
	t.Setenv("FINSYNC_HOME", t.TempDir())

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"version", []string{"version"}, cli.ExitOK},
		{"help", []string{"--help"}, cli.ExitOK},
		{"unknown command", []string{"frobnicate"}, cli.ExitFailure},
		{"negative cache ttl", []string{"--cache-ttl", "-5", "version"}, cli.ExitFailure},
		{"bad amount", []string{"tx", "add", "--amount", "ten", "--description", "x"}, cli.ExitUsage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, run(context.Background(), tt.args))
		})
	}
}
