package annotate

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	_ "image/png"
	"math"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"xray-bot/api/internal/artifact"
	"xray-bot/api/internal/report"
)

const (
	strokeWidth   = 3
	bannerPadding = 5
	jpegQuality   = 90
)

var (
	boxColor    = color.RGBA{R: 255, A: 255}
	bannerBg    = color.RGBA{A: 255}
	bannerColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

type Options struct {
	FontPath string
	FontSize float64
}

// Annotator draws report overlays. The parsed font is shared; a face is created per call
// because opentype faces are not safe for concurrent use.
type Annotator struct {
	font *opentype.Font
	size float64
	log  *zap.Logger
}

// New never fails: without a usable font file it falls back to basicfont.
func New(opts Options, log *zap.Logger) *Annotator {
	if log == nil {
		log = zap.NewNop()
	}
	a := &Annotator{size: opts.FontSize, log: log}
	if a.size <= 0 {
		a.size = 24
	}
	if strings.TrimSpace(opts.FontPath) == "" {
		return a
	}
	f, err := loadFont(opts.FontPath)
	if err != nil {
		log.Warn("font unavailable, using built-in face", zap.String("path", opts.FontPath), zap.Error(err))
		return a
	}
	a.font = f
	return a
}

func loadFont(path string) (*opentype.Font, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return opentype.Parse(b)
}

func (a *Annotator) face() font.Face {
	if a.font != nil {
		f, err := opentype.NewFace(a.font, &opentype.FaceOptions{Size: a.size, DPI: 72, Hinting: font.HintingFull})
		if err == nil {
			return f
		}
		a.log.Warn("font face failed, using built-in face", zap.Error(err))
	}
	return basicfont.Face7x13
}

// Annotate returns a new image; src is left untouched.
func (a *Annotator) Annotate(src image.Image, overlays []report.Overlay) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, src, b.Min, draw.Src)

	face := a.face()
	defer face.Close()

	for _, o := range overlays {
		switch ov := o.(type) {
		case report.Box:
			drawBox(dst, face, ov)
		case report.TextBanner:
			drawBanner(dst, face, ov)
		default:
			a.log.Warn("unknown overlay skipped", zap.String("type", fmt.Sprintf("%T", o)))
		}
	}
	return dst
}

// AnnotateFile декодирует srcPath, рисует оверлеи и пишет JPEG в dst.
// Исходный файл не меняется; при ошибке недописанный dst удаляется и handle остаётся Pending.
func (a *Annotator) AnnotateFile(srcPath string, dst *artifact.Handle, overlays []report.Overlay) error {
	in, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	src, _, err := image.Decode(in)
	_ = in.Close()
	if err != nil {
		return fmt.Errorf("decode source: %w", err)
	}

	out := a.Annotate(src, overlays)

	f, err := os.OpenFile(dst.Path(), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create annotated: %w", err)
	}
	if err := jpeg.Encode(f, out, &jpeg.Options{Quality: jpegQuality}); err != nil {
		_ = f.Close()
		_ = os.Remove(dst.Path())
		return fmt.Errorf("encode annotated: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(dst.Path())
		return fmt.Errorf("close annotated: %w", err)
	}
	return dst.MarkWritten()
}

func drawBox(dst *image.RGBA, face font.Face, b report.Box) {
	off := dst.Bounds().Min
	r := image.Rect(
		round(b.Rect.X1), round(b.Rect.Y1),
		round(b.Rect.X2), round(b.Rect.Y2),
	).Add(off)
	strokeRect(dst, r, strokeWidth, boxColor)

	if b.Label != "" {
		drawText(dst, face, b.Label, r.Min, boxColor)
	}
}

func drawBanner(dst *image.RGBA, face font.Face, tb report.TextBanner) {
	lines := strings.Split(tb.Text, "\n")
	lineH := face.Metrics().Height.Ceil()
	w := 0
	for _, l := range lines {
		if lw := font.MeasureString(face, l).Ceil(); lw > w {
			w = lw
		}
	}
	h := lineH * len(lines)

	p := tb.Position.Add(dst.Bounds().Min)
	bg := image.Rect(p.X, p.Y, p.X+w+2*bannerPadding, p.Y+h+2*bannerPadding)
	draw.Draw(dst, bg, image.NewUniform(bannerBg), image.Point{}, draw.Src)

	for i, l := range lines {
		drawText(dst, face, l, image.Pt(p.X+bannerPadding, p.Y+bannerPadding+i*lineH), bannerColor)
	}
}

// drawText puts the top-left corner of the text at pt.
func drawText(dst *image.RGBA, face font.Face, s string, pt image.Point, c color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(pt.X), Y: fixed.I(pt.Y) + face.Metrics().Ascent},
	}
	d.DrawString(s)
}

func strokeRect(dst *image.RGBA, r image.Rectangle, w int, c color.Color) {
	src := image.NewUniform(c)
	for _, edge := range []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+w),
		image.Rect(r.Min.X, r.Max.Y-w, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+w, r.Max.Y),
		image.Rect(r.Max.X-w, r.Min.Y, r.Max.X, r.Max.Y),
	} {
		draw.Draw(dst, edge.Intersect(r), src, image.Point{}, draw.Src)
	}
}

func round(v float64) int {
	return int(math.Round(v))
}
