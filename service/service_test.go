package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echo() Service[string, string] {
	return Func[string, string](func(_ context.Context, req string) (string, error) {
		return req, nil
	})
}

// tag appends its name on the way in and out.
func tag(name string, trace *[]string) Layer[string, string] {
	return LayerFunc[string, string](func(inner Service[string, string]) Service[string, string] {
		return Around(inner, func(ctx context.Context, req string, next Service[string, string]) (string, error) {
			*trace = append(*trace, name+">")
			resp, err := next.Call(ctx, req+name)
			*trace = append(*trace, "<"+name)
			return resp, err
		})
	})
}

func TestStackOrder(t *testing.T) {
	var trace []string
	svc := Apply(echo(), tag("a", &trace), tag("b", &trace), tag("c", &trace))

	resp, err := Oneshot(context.Background(), svc, "")
	require.NoError(t, err)
	assert.Equal(t, "abc", resp)
	assert.Equal(t, []string{"a>", "b>", "c>", "<c", "<b", "<a"}, trace)
}

func TestStackIsAssociative(t *testing.T) {
	var t1, t2 []string
	left := Stack(Stack(tag("a", &t1), tag("b", &t1)), tag("c", &t1)).Layer(echo())
	right := Stack(tag("a", &t2), Stack(tag("b", &t2), tag("c", &t2))).Layer(echo())

	r1, _ := Oneshot(context.Background(), left, "")
	r2, _ := Oneshot(context.Background(), right, "")
	assert.Equal(t, r1, r2)
	assert.Equal(t, t1, t2)
}

func TestIdentityAndNil(t *testing.T) {
	svc := Apply(echo(), Identity[string, string](), nil)
	resp, err := Oneshot(context.Background(), svc, "x")
	require.NoError(t, err)
	assert.Equal(t, "x", resp)
}

// gated is not ready until opened and counts readiness checks and calls.
type gated struct {
	mu     sync.Mutex
	open   chan struct{}
	ready  int
	called int
}

func (g *gated) Ready(ctx context.Context) error {
	select {
	case <-g.open:
	case <-ctx.Done():
		return ctx.Err()
	}
	g.mu.Lock()
	g.ready++
	g.mu.Unlock()
	return nil
}

func (g *gated) Call(_ context.Context, req string) (string, error) {
	g.mu.Lock()
	g.called++
	g.mu.Unlock()
	return strings.ToUpper(req), nil
}

func TestReadinessPropagatesThroughLayers(t *testing.T) {
	var trace []string
	inner := &gated{open: make(chan struct{})}
	svc := Apply[string, string](inner, tag("a", &trace), tag("b", &trace))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Oneshot(ctx, svc, "x")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, inner.called, "no call without readiness")

	close(inner.open)
	resp, err := Oneshot(context.Background(), svc, "x")
	require.NoError(t, err)
	assert.Equal(t, "XAB", resp)
	assert.Equal(t, 1, inner.ready)
	assert.Equal(t, 1, inner.called)
}

func TestErrorsPropagateUnchanged(t *testing.T) {
	boom := errors.New("boom")
	var trace []string
	failing := Func[string, string](func(context.Context, string) (string, error) { return "", boom })
	_, err := Oneshot(context.Background(), Apply[string, string](failing, tag("a", &trace)), "")
	assert.Same(t, boom, err)
}
