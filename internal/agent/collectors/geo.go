package collectors

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/mohammad-safakhou/osinthunter/internal/agent/core"
)

// Geolocation turns coordinates into map lookups.
type Geolocation struct{ base }

func NewGeolocation() *Geolocation {
	return &Geolocation{base{
		name:        core.CollectorGeolocation,
		description: "Suggest location pivots from text or coordinates",
		network:     true,
	}}
}

func (c *Geolocation) Run(_ context.Context, p core.ProblemInput) []core.Evidence {
	var out []core.Evidence
	for _, co := range extractCoordinates(p.Text) {
		out = append(out, c.evidence(fmt.Sprintf("Map lookup for coordinates %s, %s", co.lat, co.lon), 0.65).
			WithMetadata(map[string]interface{}{
				"lat": co.lat,
				"lon": co.lon,
				"map": fmt.Sprintf("https://www.openstreetmap.org/?mlat=%s&mlon=%s&zoom=16", co.lat, co.lon),
			}))
	}
	if len(out) == 0 {
		out = append(out, c.evidence("No coordinates detected; use landmarks or language cues", 0.3))
	}
	return out
}

// ImageOSINT gives per-image inspection guidance.
type ImageOSINT struct{ base }

func NewImageOSINT() *ImageOSINT {
	return &ImageOSINT{base{
		name:        core.CollectorImage,
		description: "Flag next steps for image EXIF/OCR/geolocation",
	}}
}

func (c *ImageOSINT) Run(_ context.Context, p core.ProblemInput) []core.Evidence {
	var out []core.Evidence
	for _, img := range unique(p.ImagePaths) {
		out = append(out, c.evidence(fmt.Sprintf("Inspect %s with exiftool and OCR; check for landmarks", filepath.Base(img)), 0.6).
			WithMetadata(map[string]interface{}{"image": img}))
	}
	if len(out) == 0 {
		out = append(out, c.evidence("No images provided", confidenceNothing))
	}
	return out
}

// EarthView points at Earth and Street View imagery.
type EarthView struct{ base }

func NewEarthView() *EarthView {
	return &EarthView{base{name: "earth-view", description: "Google Earth/Street View guidance"}}
}

func (c *EarthView) Run(_ context.Context, p core.ProblemInput) []core.Evidence {
	out := []core.Evidence{c.evidence("Pivot to Google Earth/Street View for landmarks and building shapes", 0.3)}
	for _, co := range extractCoordinates(p.Text) {
		out = append(out, c.evidence(fmt.Sprintf("Open Street View near %s, %s: https://www.google.com/maps/@?api=1&map_action=pano&viewpoint=%s,%s", co.lat, co.lon, co.lat, co.lon), 0.35))
	}
	return out
}

// maxYandexImages bounds the number of upload hints.
const maxYandexImages = 3

// YandexImages suggests reverse image search uploads.
type YandexImages struct{ base }

func NewYandexImages() *YandexImages {
	return &YandexImages{base{name: "yandex-images", description: "Reverse image search guidance via Yandex"}}
}

func (c *YandexImages) Run(_ context.Context, p core.ProblemInput) []core.Evidence {
	images := firstN(unique(p.ImagePaths), maxYandexImages)
	if len(images) == 0 {
		return []core.Evidence{c.evidence("No images provided for Yandex reverse search", confidenceNothing)}
	}
	out := make([]core.Evidence, 0, len(images))
	for _, img := range images {
		out = append(out, c.evidence(fmt.Sprintf("Upload %s to https://yandex.com/images for reverse search", img), 0.3))
	}
	return out
}
