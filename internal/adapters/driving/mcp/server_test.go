package mcp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServer(t *testing.T) {
	t.Run("nil extract service returns error", func(t *testing.T) {
		server, err := NewServer(&Ports{})
		require.Error(t, err)
		assert.Nil(t, server)
		assert.ErrorIs(t, err, ErrMissingExtractService)
	})

	t.Run("valid ports creates server", func(t *testing.T) {
		server, err := NewServer(&Ports{Extract: &mockExtractService{}})
		require.NoError(t, err)
		assert.NotNil(t, server)
	})
}

func TestPorts_Validate(t *testing.T) {
	t.Run("nil extract service returns error", func(t *testing.T) {
		assert.ErrorIs(t, (&Ports{}).Validate(), ErrMissingExtractService)
	})

	t.Run("extract only is valid", func(t *testing.T) {
		assert.NoError(t, (&Ports{Extract: &mockExtractService{}}).Validate())
	})

	t.Run("all ports is valid", func(t *testing.T) {
		ports := &Ports{
			Extract:  &mockExtractService{},
			Profiles: &mockProfileService{},
		}
		assert.NoError(t, ports.Validate())
	})
}

func TestServer_RunHTTPStopsWithContext(t *testing.T) {
	server, err := NewServer(&Ports{Extract: &mockExtractService{}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.RunHTTP(ctx, "127.0.0.1:0") }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("RunHTTP did not return after cancellation")
	}
}

func TestServer_Handler(t *testing.T) {
	server, err := NewServer(&Ports{Extract: &mockExtractService{}})
	require.NoError(t, err)

	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	// A GET without a session is rejected by the streamable transport.
	resp, err := http.Get(ts.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.GreaterOrEqual(t, resp.StatusCode, 400)
}
