package report

import (
	"errors"
	"fmt"
	"image"
	"strings"

	"xray-bot/api/internal/vision"
)

var ErrEmptyClassification = errors.New("classification result has no classes")

type Interpreter struct {
	policy Policy
}

func NewInterpreter(p Policy) *Interpreter {
	return &Interpreter{policy: p.withDefaults()}
}

func (in *Interpreter) Policy() Policy { return in.policy }

func (in *Interpreter) Interpret(res vision.Result) (Report, error) {
	switch r := res.(type) {
	case vision.ClassificationResult:
		return in.classification(r)
	case vision.DetectionResult:
		return in.detection(r), nil
	default:
		return Report{}, fmt.Errorf("unsupported result %T", res)
	}
}

func (in *Interpreter) classification(r vision.ClassificationResult) (Report, error) {
	if len(r.Ranked) == 0 {
		return Report{}, ErrEmptyClassification
	}
	top := r.Ranked[0]
	pct := top.Probability * 100

	var text string
	if pct >= in.policy.Threshold || len(r.Ranked) < 2 {
		text = fmt.Sprintf("%s (%.2f%%)", top.Name, pct)
	} else {
		n := min(in.policy.AmbiguousClasses, len(r.Ranked))
		lines := make([]string, 0, n+1)
		if h := strings.TrimSpace(in.policy.AmbiguousHeader); h != "" {
			lines = append(lines, h)
		}
		for _, c := range r.Ranked[:n] {
			lines = append(lines, fmt.Sprintf("%s: %.2f%%", c.Name, c.Probability*100))
		}
		text = strings.Join(lines, "\n")
	}

	return Report{
		Text:     text,
		Overlays: []Overlay{TextBanner{Position: image.Point{}, Text: text}},
	}, nil
}

func (in *Interpreter) detection(r vision.DetectionResult) Report {
	if len(r.Detections) == 0 {
		return Report{Text: in.policy.NothingFound, NothingFound: true}
	}
	lines := make([]string, 0, len(r.Detections))
	overlays := make([]Overlay, 0, len(r.Detections))
	for _, d := range r.Detections {
		pct := d.Confidence * 100
		overlays = append(overlays, Box{Rect: d.Box, Label: fmt.Sprintf("%s %.2f%%", d.ClassName, pct)})
		lines = append(lines, fmt.Sprintf("%s: %.2f%%", d.ClassName, pct))
	}
	return Report{Text: strings.Join(lines, "\n"), Overlays: overlays}
}
