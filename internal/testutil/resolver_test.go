package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/subsheet/internal/field"
	"github.com/roach88/subsheet/internal/recalc"
	"github.com/roach88/subsheet/internal/row"
)

func resolveAsync(g *Gate, ctx context.Context, rowID, fieldID string) <-chan reply {
	out := make(chan reply, 1)
	go func() {
		v, err := g.Resolve(ctx, recalc.Request{
			Row:   row.New(rowID, nil),
			Field: field.Definition{ID: fieldID},
		})
		out <- reply{value: v, err: err}
	}()
	return out
}

func TestGate_CompletesInTestChosenOrder(t *testing.T) {
	g := NewGate()
	ctx := context.Background()

	first := resolveAsync(g, ctx, "r1", "a")
	second := resolveAsync(g, ctx, "r1", "b")

	g.Await(t, "r1", "b").Return("B")
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, "B", got.value)

	g.Await(t, "r1", "a").Fail(errors.New("boom"))
	got = <-first
	assert.EqualError(t, got.err, "boom")
	assert.Equal(t, 0, g.Pending())
}

func TestGate_ResolveHonorsContext(t *testing.T) {
	g := NewGate()
	ctx, cancel := context.WithCancel(context.Background())

	done := resolveAsync(g, ctx, "r1", "a")
	g.Await(t, "r1", "a")
	cancel()

	got := <-done
	assert.ErrorIs(t, got.err, context.Canceled)
}
