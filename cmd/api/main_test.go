package main

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kirillkom/deco-docflow/internal/config"
)

func TestRunReturnsConfigErrorInsteadOfExiting(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	err := run(context.Background(), config.Config{MailDelivery: config.MailDeliveryInline}, logger)
	require.Error(t, err)
	require.Contains(t, err.Error(), "ACCESS_TOKEN_SECRET")
}
