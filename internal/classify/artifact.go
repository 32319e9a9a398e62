package classify

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/chatdeck/chatdeck/internal/browser"
)

// fetchArtifact captures the login code region as a PNG. Two-phase: a direct
// in-page data extraction first (cheap, no visual capture), then a targeted
// region screenshot after a short settle delay.
func (c *Classifier) fetchArtifact(ctx context.Context, sess browser.Session, el *browser.Element) ([]byte, error) {
	if c.spec.ArtifactScript != "" {
		out, err := sess.Evaluate(ctx, c.spec.ArtifactScript)
		if err != nil {
			return nil, fmt.Errorf("artifact script: %w", err)
		}
		if data, ok := decodeImageDataURL(out); ok {
			return data, nil
		}
	}

	if err := sleep(ctx, c.opts.ArtifactSettle); err != nil {
		return nil, err
	}

	shot, err := sess.CaptureScreenshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return cropToRegion(shot, el.Rect)
}

// decodeImageDataURL decodes a base64 image data URL. Returns ok=false for
// anything unusable (empty result, blank canvas, malformed payload).
func decodeImageDataURL(s string) ([]byte, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "data:image/") {
		return nil, false
	}
	idx := strings.Index(s, ";base64,")
	if idx < 0 {
		return nil, false
	}
	data, err := base64.StdEncoding.DecodeString(s[idx+len(";base64,"):])
	if err != nil || len(data) == 0 {
		return nil, false
	}
	return data, true
}

// cropToRegion crops a full-page PNG to the element's bounding box.
func cropToRegion(shot []byte, rect browser.Rect) ([]byte, error) {
	if rect.Width <= 0 || rect.Height <= 0 {
		return nil, fmt.Errorf("artifact region is empty")
	}

	img, err := imaging.Decode(bytes.NewReader(shot))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}

	region := image.Rect(
		int(rect.X), int(rect.Y),
		int(rect.X+rect.Width), int(rect.Y+rect.Height),
	).Intersect(img.Bounds())
	if region.Empty() {
		return nil, fmt.Errorf("artifact region outside page bounds")
	}

	cropped := imaging.Crop(img, region)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, cropped, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode artifact: %w", err)
	}
	return buf.Bytes(), nil
}
