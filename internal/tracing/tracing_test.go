package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProviderNoneIsNoop(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Exporter: "none"})
	require.NoError(t, err)
	assert.NotNil(t, p.Tracer("test"))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProviderEmptyExporterIsNoop(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{})
	require.NoError(t, err)
	assert.NotNil(t, p.Tracer("test"))
}

func TestNewProviderStdout(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Exporter: "stdout", ServiceName: "test-service"})
	require.NoError(t, err)
	assert.NotNil(t, p.Tracer("test"))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProviderOTLPRequiresEndpoint(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Exporter: "otlp"})
	assert.Error(t, err)
}

func TestNewProviderUnknownExporter(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Exporter: "bogus"})
	assert.Error(t, err)
}

func TestNilProviderIsSafe(t *testing.T) {
	var p *Provider
	assert.NotNil(t, p.Tracer("test"))
	assert.NoError(t, p.Shutdown(context.Background()))
}
