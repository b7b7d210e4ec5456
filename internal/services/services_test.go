package services_test

import (
	"context"
	"io"
	"iter"
	"log/slog"
	"testing"

	"github.com/MegaGrindStone/codex-prime-ui/internal/chat"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// collect drains a session stream, returning the fragments received before the first error.
func collect(t *testing.T, seq iter.Seq2[string, error]) ([]string, error) {
	t.Helper()
	var fragments []string
	for f, err := range seq {
		if err != nil {
			return fragments, err
		}
		fragments = append(fragments, f)
	}
	return fragments, nil
}

func send(t *testing.T, sess chat.Session, text string) ([]string, error) {
	t.Helper()
	require.NotNil(t, sess)
	return collect(t, sess.SendStream(context.Background(), text))
}
