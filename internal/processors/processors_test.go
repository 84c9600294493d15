package processors

import (
	"testing"

	"github.com/morozRed/husk/internal/config"
	"github.com/morozRed/husk/internal/processor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry(t *testing.T) {
	r, err := NewRegistry([]config.TagConfig{
		{Module: "husk", Import: "css", Processor: "css"},
		{Module: "husk", Import: "keyframes", Processor: "ignore"},
	})
	require.NoError(t, err)

	_, status := r.Lookup("husk", "css")
	assert.Equal(t, processor.Registered, status)
	_, status = r.Lookup("husk", "keyframes")
	assert.Equal(t, processor.Ignored, status)
}

func TestNewRegistryUnknownProcessor(t *testing.T) {
	_, err := NewRegistry([]config.TagConfig{{Module: "husk", Import: "css", Processor: "sass"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "css, ignore")
}
