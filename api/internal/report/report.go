package report

import (
	"image"

	"xray-bot/api/internal/vision"
)

type Report struct {
	Text     string
	Overlays []Overlay
	// NothingFound is set for an empty detection: no annotated image must be produced.
	NothingFound bool
}

// Annotate reports whether an annotated copy of the image should be rendered.
func (r Report) Annotate() bool {
	return !r.NothingFound && len(r.Overlays) > 0
}

// Overlay is a drawing instruction, either Box or TextBanner.
type Overlay interface {
	isOverlay()
}

type Box struct {
	Rect  vision.Box
	Label string
}

type TextBanner struct {
	Position image.Point
	Text     string
}

func (Box) isOverlay()        {}
func (TextBanner) isOverlay() {}
