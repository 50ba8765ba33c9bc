package calipers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectDatasetTypeRGB(t *testing.T) {
	dt, err := DetectDatasetType(3, "Byte")
	require.NoError(t, err)
	assert.Equal(t, DatasetOphoto, dt)
}

func TestDetectDatasetTypeRGBA(t *testing.T) {
	dt, err := DetectDatasetType(4, "Byte")
	require.NoError(t, err)
	assert.Equal(t, DatasetOphoto, dt)
}

func TestDetectDatasetTypeGrayscaleByte(t *testing.T) {
	dt, err := DetectDatasetType(1, "Byte")
	require.NoError(t, err)
	assert.Equal(t, DatasetOphoto, dt)
}

func TestDetectDatasetTypeSingleBandFloat(t *testing.T) {
	dt, err := DetectDatasetType(1, "Float32")
	require.NoError(t, err)
	assert.Equal(t, DatasetDEM, dt)
}

func TestDetectDatasetTypeTwoBandsIsAmbiguous(t *testing.T) {
	_, err := DetectDatasetType(2, "Byte")
	assert.Error(t, err)
}

func TestDetectDatasetTypeThreeBandsAreOphotoRegardlessOfType(t *testing.T) {
	// Band count wins over pixel type once there are 3 or more bands.
	dt, err := DetectDatasetType(3, "Float32")
	require.NoError(t, err)
	assert.Equal(t, DatasetOphoto, dt)
}
