//go:build !ocr

package ocr

import (
	"context"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_NotEnabled(t *testing.T) {
	client, err := New(DefaultConfig())
	require.ErrorIs(t, err, ErrOCRNotEnabled)
	assert.Nil(t, client)
}

func TestStubClient(t *testing.T) {
	var client *Client
	assert.NoError(t, client.Close())

	_, err := (&Client{}).Words(context.Background(), image.NewGray(image.Rect(0, 0, 1, 1)))
	assert.ErrorIs(t, err, ErrOCRNotEnabled)
}
