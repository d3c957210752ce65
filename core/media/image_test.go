package media

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gibigubae/registry/core"
)

func pngDataURL(t *testing.T, w, h int) string {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buff bytes.Buffer
	require.NoError(t, png.Encode(&buff, img))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buff.Bytes())
}

func decode(t *testing.T, dataURL string) image.Image {
	payload := dataURL[strings.IndexByte(dataURL, ',')+1:]
	raw, err := base64.StdEncoding.DecodeString(payload)
	require.NoError(t, err)
	img, _, err := image.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	return img
}

func TestNormalizeDataURL(t *testing.T) {
	t.Run("plain url untouched", func(t *testing.T) {
		got, err := NormalizeDataURL(" https://example.org/a.png ", 100, 0)
		require.NoError(t, err)
		assert.Equal(t, "https://example.org/a.png", got)
	})

	t.Run("large image fitted", func(t *testing.T) {
		got, err := NormalizeDataURL(pngDataURL(t, 400, 200), 100, 0)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(got, "data:image/jpeg;base64,"))
		b := decode(t, got).Bounds()
		assert.Equal(t, 100, b.Dx())
		assert.Equal(t, 50, b.Dy())
	})

	t.Run("small image kept", func(t *testing.T) {
		got, err := NormalizeDataURL(pngDataURL(t, 40, 30), 100, 0)
		require.NoError(t, err)
		b := decode(t, got).Bounds()
		assert.Equal(t, 40, b.Dx())
		assert.Equal(t, 30, b.Dy())
	})

	t.Run("too large", func(t *testing.T) {
		_, err := NormalizeDataURL(pngDataURL(t, 50, 50), 100, 10)
		_, ok := err.(*core.PayloadTooLargeError)
		assert.True(t, ok, "got %v", err)
	})

	t.Run("not base64", func(t *testing.T) {
		_, err := NormalizeDataURL("data:image/png,rawbytes", 100, 0)
		assert.True(t, core.IsValidation(err))
	})

	t.Run("garbage image", func(t *testing.T) {
		_, err := NormalizeDataURL("data:image/png;base64,"+base64.StdEncoding.EncodeToString([]byte("nope")), 100, 0)
		assert.True(t, core.IsValidation(err))
	})
}
