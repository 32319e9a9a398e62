package classify

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatdeck/chatdeck/internal/browser"
	"github.com/chatdeck/chatdeck/internal/browser/browsertest"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestArtifactViaInPageExtraction(t *testing.T) {
	qr := encodePNG(t, 8, 8)
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(qr)

	sess := browsertest.NewFakeSession("https://web.whatsapp.com/")
	sess.SetElement(".landing-wrapper")
	sess.SetElement("div[data-ref] canvas")
	sess.EvalFunc = func(script string) (string, error) {
		if strings.Contains(script, "toDataURL") {
			return dataURL, nil
		}
		return "", nil
	}

	c := New(WhatsAppSpec(), fastOptions())
	res := c.Classify(context.Background(), sess)

	assert.Equal(t, StatusNotLoggedIn, res.Status)
	assert.Equal(t, qr, res.Artifact)
}

func TestArtifactFallsBackToRegionScreenshot(t *testing.T) {
	sess := browsertest.NewFakeSession("https://web.whatsapp.com/")
	sess.SetElement(".landing-wrapper")
	sess.SetElementRect("div[data-ref] canvas", browser.Rect{X: 10, Y: 20, Width: 40, Height: 40})
	sess.Screenshot = encodePNG(t, 100, 100)
	// Blank extraction result forces the visual capture path.
	sess.EvalFunc = func(string) (string, error) { return "", nil }

	c := New(WhatsAppSpec(), fastOptions())
	res := c.Classify(context.Background(), sess)

	assert.Equal(t, StatusNotLoggedIn, res.Status)
	require.NotEmpty(t, res.Artifact)

	img, err := png.Decode(bytes.NewReader(res.Artifact))
	require.NoError(t, err)
	assert.Equal(t, 40, img.Bounds().Dx())
	assert.Equal(t, 40, img.Bounds().Dy())
}

func TestArtifactCaptureFailureDoesNotChangeStatus(t *testing.T) {
	sess := browsertest.NewFakeSession("https://web.whatsapp.com/")
	sess.SetElement(".landing-wrapper")
	sess.SetElement("div[data-ref] canvas")
	sess.ScreenshotErr = browser.ErrSessionClosed

	c := New(WhatsAppSpec(), fastOptions())
	res := c.Classify(context.Background(), sess)

	assert.Equal(t, StatusNotLoggedIn, res.Status)
	assert.Nil(t, res.Artifact)
}

func TestDecodeImageDataURL(t *testing.T) {
	qr := encodePNG(t, 4, 4)

	data, ok := decodeImageDataURL("data:image/png;base64," + base64.StdEncoding.EncodeToString(qr))
	assert.True(t, ok)
	assert.Equal(t, qr, data)

	for _, bad := range []string{"", "data:image/png;base64,", "data:text/plain;base64,aGk=", "not a url", "data:image/png,raw"} {
		_, ok := decodeImageDataURL(bad)
		assert.False(t, ok, "input %q", bad)
	}
}

func TestCropToRegionClampsToBounds(t *testing.T) {
	shot := encodePNG(t, 50, 50)

	out, err := cropToRegion(shot, browser.Rect{X: 40, Y: 40, Width: 100, Height: 100})
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 10, img.Bounds().Dx())
	assert.Equal(t, 10, img.Bounds().Dy())

	_, err = cropToRegion(shot, browser.Rect{})
	assert.Error(t, err)

	_, err = cropToRegion(shot, browser.Rect{X: 500, Y: 500, Width: 10, Height: 10})
	assert.Error(t, err)
}
