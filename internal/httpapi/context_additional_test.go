package httpapi

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"
)

func TestJoinContexts_CancelsWhenEitherDone(t *testing.T) {
	a, ac := context.WithCancel(context.Background())
	b, bc := context.WithCancel(context.Background())
	defer bc()
	j, cancelJ := joinContexts(a, b)
	defer cancelJ()
	ac()
	select {
	case <-j.Done():
	case <-time.After(500 * time.Millisecond):
		t.Fatal("joined context did not cancel when first parent canceled")
	}
}

func TestGone_FollowsBaseContext(t *testing.T) {
	base, cancel := context.WithCancel(context.Background())
	SetBaseContext(base)
	// nolint:staticcheck // SA1012: nil resets to Background
	defer SetBaseContext(nil)

	r := httptest.NewRequest("GET", "/status", nil)
	if gone(r) {
		t.Fatal("gone before shutdown")
	}
	ctx, stop := handlerContext(r)
	defer stop()
	cancel()
	select {
	case <-ctx.Done():
	case <-time.After(500 * time.Millisecond):
		t.Fatal("handler context survived shutdown")
	}
	if !gone(r) {
		t.Fatal("not gone after shutdown")
	}
}
