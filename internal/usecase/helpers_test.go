package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/runoshun/magicbin/internal/domain"
	"github.com/runoshun/magicbin/internal/testutil"
)

func newFinder() *testutil.MockConfigFinder {
	return &testutil.MockConfigFinder{Config: &domain.Config{
		Namespace: "web",
		Path:      "/work/web/magicbin.toml",
	}}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}
