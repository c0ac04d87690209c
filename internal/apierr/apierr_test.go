package apierr_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rshade/finsync/internal/apierr"
)

func TestErrorIs(t *testing.T) {
	err := apierr.New(apierr.KindNotFound, "gateway.UpdateTransaction", "transaction tx-1 not found")
	wrapped := fmt.Errorf("mutation: %w", err)

	assert.ErrorIs(t, wrapped, apierr.ErrNotFound)
	assert.NotErrorIs(t, wrapped, apierr.ErrValidation)
	assert.Equal(t, apierr.KindNotFound, apierr.KindOf(wrapped))
	assert.Equal(t, "gateway.UpdateTransaction: not_found: transaction tx-1 not found", err.Error())
}

func TestErrorString(t *testing.T) {
	tests := []struct {
		name string
		err  *apierr.Error
		want string
	}{
		{"kind only", &apierr.Error{Kind: apierr.KindTimeout}, "timeout"},
		{"op only", &apierr.Error{Kind: apierr.KindTimeout, Op: "fetch"}, "fetch: timeout"},
		{"message only", &apierr.Error{Kind: apierr.KindTimeout, Message: "slow"}, "timeout: slow"},
		{"wrapped cause", apierr.Wrap(apierr.KindNetwork, "fetch", errors.New("refused")), "fetch: network_error: refused"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, apierr.Kind(""), apierr.KindOf(nil))
	assert.Equal(t, apierr.KindTimeout, apierr.KindOf(context.DeadlineExceeded))
	assert.Equal(t, apierr.KindInternal, apierr.KindOf(errors.New("boom")))
	assert.Equal(t, apierr.KindValidation, apierr.KindOf(fmt.Errorf("x: %w", apierr.ErrValidation)))
}

func TestIsCancelled(t *testing.T) {
	assert.True(t, apierr.IsCancelled(apierr.New(apierr.KindUserCancelled, "oauth", "closed browser")))
	assert.False(t, apierr.IsCancelled(apierr.New(apierr.KindProviderError, "oauth", "bad state")))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, apierr.IsTransient(apierr.New(apierr.KindNetwork, "", "")))
	assert.True(t, apierr.IsTransient(apierr.New(apierr.KindTimeout, "", "")))
	assert.False(t, apierr.IsTransient(apierr.New(apierr.KindNotFound, "", "")))
}

func TestFromCode(t *testing.T) {
	assert.Equal(t, apierr.KindNotFound, apierr.FromCode("not_found"))
	assert.Equal(t, apierr.KindInternal, apierr.FromCode("teapot"))
}
