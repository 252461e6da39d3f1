package roomapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpoint_KeepsBasePath(t *testing.T) {
	c, err := New("https://example.org/api/", "t")
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/api/offer", c.endpoint("/offer"))

	c, err = New("http://127.0.0.1:8080", "t")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8080/candidate", c.endpoint("/candidate"))
}
