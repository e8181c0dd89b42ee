package service

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-admin-api/internal/models"
	appErrors "github.com/noah-isme/course-admin-api/pkg/errors"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	buf := &bytes.Buffer{}
	require.NoError(t, png.Encode(buf, img))
	return buf.Bytes()
}

func TestImageProcessorAcceptsSmallPNG(t *testing.T) {
	p := NewImageProcessor(ImagePolicy{MaxDimension: 64})
	data := pngBytes(t, 8, 8)

	prepared, err := p.Prepare(&models.ImageUpload{Filename: "a.png", Data: data})
	require.NoError(t, err)
	assert.Equal(t, "image/png", prepared.ContentType)
	assert.Equal(t, data, prepared.Data)
}

func TestImageProcessorDownscalesLargeRaster(t *testing.T) {
	p := NewImageProcessor(ImagePolicy{MaxDimension: 16})

	prepared, err := p.Prepare(&models.ImageUpload{Data: pngBytes(t, 64, 32)})
	require.NoError(t, err)
	img, err := imaging.Decode(bytes.NewReader(prepared.Data))
	require.NoError(t, err)
	assert.Equal(t, 16, img.Bounds().Dx())
	assert.Equal(t, 8, img.Bounds().Dy())
}

func TestImageProcessorAcceptsSVG(t *testing.T) {
	p := NewImageProcessor(ImagePolicy{})
	svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="1" height="1"></svg>`)

	prepared, err := p.Prepare(&models.ImageUpload{Data: svg})
	require.NoError(t, err)
	assert.Equal(t, "image/svg+xml", prepared.ContentType)
}

func TestImageProcessorRejections(t *testing.T) {
	p := NewImageProcessor(ImagePolicy{MaxBytes: 1024})

	cases := map[string][]byte{
		"empty":     nil,
		"too large": bytes.Repeat([]byte{0}, 2048),
		"not image": []byte("just some text"),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := p.Prepare(&models.ImageUpload{Data: data})
			require.Error(t, err)
			appErr := appErrors.FromError(err)
			assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
			require.Len(t, appErr.Details, 1)
			assert.Equal(t, profileImageField, appErr.Details[0].Field)
		})
	}
}
