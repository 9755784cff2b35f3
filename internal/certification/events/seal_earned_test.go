package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"citywalk/internal/platform/kafka/consumer"
	id "citywalk/pkg/domain"
	dErrors "citywalk/pkg/domain-errors"
)

type stubChainer struct {
	calls []id.OwnershipID
	err   error
}

func (s *stubChainer) AutoChain(_ context.Context, ownershipID id.OwnershipID) (bool, error) {
	s.calls = append(s.calls, ownershipID)
	return s.err == nil, s.err
}

func newHandler(err error) (*SealEarnedHandler, *stubChainer) {
	chainer := &stubChainer{err: err}
	return NewSealEarnedHandler(chainer, slog.New(slog.NewTextHandler(io.Discard, nil))), chainer
}

func TestSealEarnedHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("chains ownership from payload", func(t *testing.T) {
		h, chainer := newHandler(nil)
		err := h.Handle(ctx, &consumer.Message{Value: []byte(`{"ownershipId":"own-9"}`)})
		require.NoError(t, err)
		assert.Equal(t, []id.OwnershipID{"own-9"}, chainer.calls)
	})

	t.Run("malformed payload is committed", func(t *testing.T) {
		h, chainer := newHandler(nil)
		require.NoError(t, h.Handle(ctx, &consumer.Message{Value: []byte(`{`)}))
		assert.Empty(t, chainer.calls)
	})

	t.Run("missing ownership id is committed", func(t *testing.T) {
		h, chainer := newHandler(nil)
		require.NoError(t, h.Handle(ctx, &consumer.Message{Value: []byte(`{}`)}))
		assert.Empty(t, chainer.calls)
	})

	t.Run("not found is committed", func(t *testing.T) {
		h, _ := newHandler(dErrors.New(dErrors.CodeNotFound, "seal ownership not found"))
		assert.NoError(t, h.Handle(ctx, &consumer.Message{Value: []byte(`{"ownershipId":"own-9"}`)}))
	})

	t.Run("provider unavailable is retried", func(t *testing.T) {
		h, _ := newHandler(dErrors.New(dErrors.CodeProviderUnavailable, "down"))
		assert.Error(t, h.Handle(ctx, &consumer.Message{Value: []byte(`{"ownershipId":"own-9"}`)}))
	})

	t.Run("uncoded error is retried", func(t *testing.T) {
		h, _ := newHandler(errors.New("connection reset"))
		assert.Error(t, h.Handle(ctx, &consumer.Message{Value: []byte(`{"ownershipId":"own-9"}`)}))
	})
}
