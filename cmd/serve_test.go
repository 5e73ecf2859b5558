package cmd

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func TestRunServer_ListenFailureReturns(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	done := make(chan error, 1)
	go func() {
		done <- runServer(context.Background(), app, ln.Addr().String())
	}()

	select {
	case err := <-done:
		require.Error(t, err, "the port is already taken")
	case <-time.After(5 * time.Second):
		t.Fatal("runServer kept waiting after the listen failure")
	}
}
