package errs

import (
	"fmt"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassSurvivesWrapping(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		class     error
		retryable bool
	}{
		{"validation", Validationf("bad field %d", 3), ErrValidation, false},
		{"not found", NotFoundf("id %q", "a"), ErrNotFound, false},
		{"capacity", Capacityf("pool full"), ErrCapacity, true},
		{"timeout", Timeoutf("request %d", 7), ErrTimeout, true},
		{"transport", Transportf("peer gone"), ErrTransport, true},
		{"crypto", Cryptof("bad key"), ErrCrypto, false},
		{"ca", CAf("revoked"), ErrCA, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", errors.Wrap(tt.err, "middle"))
			assert.True(t, Is(wrapped, tt.class))
			assert.Equal(t, tt.class, Class(wrapped))
			assert.Equal(t, tt.retryable, IsRetryable(wrapped))
		})
	}
}

func TestWrapMarksForeignErrors(t *testing.T) {
	base := errors.New("disk full")
	err := Wrap(ErrTransport, base, "send")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
	assert.True(t, errors.Is(err, base))
	assert.Contains(t, err.Error(), "send")

	assert.NoError(t, Wrap(ErrCrypto, nil, "noop"))
	assert.NoError(t, Wrapf(ErrCrypto, nil, "noop %d", 1))
}

func TestClassOfUnknownError(t *testing.T) {
	assert.Nil(t, Class(nil))
	assert.Nil(t, Class(errors.New("plain")))
	assert.False(t, IsRetryable(errors.New("plain")))
}
