package vision

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"xray-bot/api/internal/metrics"
)

// Classifier возвращает «сырые» вероятности по классам для всего снимка.
type Classifier interface {
	Name() string
	Classify(ctx context.Context, image []byte, mime string) (RawClassification, error)
}

// Detector возвращает «сырые» рамки найденных объектов.
type Detector interface {
	Name() string
	Detect(ctx context.Context, image []byte, mime string) (RawDetections, error)
}

// Adapter is the single entry point to the models: it picks the backend by mode
// and turns the backend-specific output into a Result.
type Adapter struct {
	classifier Classifier
	detector   Detector
	log        *zap.Logger
}

func NewAdapter(classifier Classifier, detector Detector, log *zap.Logger) *Adapter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{classifier: classifier, detector: detector, log: log}
}

func (a *Adapter) Infer(ctx context.Context, imagePath string, mode Mode) (Result, error) {
	img, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, inferenceErr(mode, "read image", err)
	}
	mime := SniffMime(img)

	start := time.Now()
	defer func() {
		metrics.InferenceDuration.WithLabelValues(mode.String()).Observe(time.Since(start).Seconds())
	}()

	switch mode {
	case Classification:
		if a.classifier == nil {
			return nil, inferenceErr(mode, "classify", fmt.Errorf("no classifier configured"))
		}
		raw, err := a.classifier.Classify(ctx, img, mime)
		if err != nil {
			return nil, inferenceErr(mode, a.classifier.Name(), err)
		}
		res, err := NormalizeClassification(raw)
		if err != nil {
			return nil, err
		}
		a.log.Debug("classification done",
			zap.String("backend", a.classifier.Name()),
			zap.String("top", res.Ranked[0].Name),
			zap.Float64("probability", res.Ranked[0].Probability))
		return res, nil
	case Detection:
		if a.detector == nil {
			return nil, inferenceErr(mode, "detect", fmt.Errorf("no detector configured"))
		}
		raw, err := a.detector.Detect(ctx, img, mime)
		if err != nil {
			return nil, inferenceErr(mode, a.detector.Name(), err)
		}
		res, err := NormalizeDetections(raw)
		if err != nil {
			return nil, err
		}
		a.log.Debug("detection done",
			zap.String("backend", a.detector.Name()),
			zap.Int("detections", len(res.Detections)))
		return res, nil
	default:
		return nil, inferenceErr(mode, "infer", fmt.Errorf("unsupported mode"))
	}
}
