// Package media normalises images received as data URLs.
package media

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"github.com/gibigubae/registry/core"
)

const jpegQuality = 85

var errInvalidDataURL = errors.New("invalid image data")

// IsDataURL reports whether s carries an inline base64 image.
func IsDataURL(s string) bool {
	return strings.HasPrefix(s, "data:image/")
}

// NormalizeDataURL fits an inline image into maxDim x maxDim and re-encodes it as JPEG.
// Anything that is not a data URL (a plain link) is returned untouched.
// Images whose decoded size exceeds maxBytes are rejected with a PayloadTooLargeError.
func NormalizeDataURL(s string, maxDim int, maxBytes int64) (string, error) {
	s = strings.TrimSpace(s)
	if !IsDataURL(s) {
		return s, nil
	}

	comma := strings.IndexByte(s, ',')
	if comma < 0 || !strings.HasSuffix(s[:comma], ";base64") {
		return "", core.NewValidationError(errInvalidDataURL)
	}
	payload := s[comma+1:]
	if maxBytes > 0 && int64(base64.StdEncoding.DecodedLen(len(payload))) > maxBytes {
		return "", core.NewPayloadTooLargeError(fmt.Sprintf("image exceeds %d bytes", maxBytes))
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", core.NewValidationError(errInvalidDataURL)
	}
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return "", core.NewValidationError(errors.Wrap(errInvalidDataURL, err.Error()))
	}

	var out image.Image = img
	if b := img.Bounds(); b.Dx() > maxDim || b.Dy() > maxDim {
		out = imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
	}

	var buff bytes.Buffer
	if err = imaging.Encode(&buff, out, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return "", errors.Wrap(err, "encoding image")
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buff.Bytes()), nil
}
