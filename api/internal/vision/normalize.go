package vision

import (
	"math"
	"net/http"
	"sort"
)

// NormalizeClassification ранжирует классы по убыванию вероятности.
// Пустой список, дыры в именах и вероятности вне [0,1] считаются ошибкой модели.
func NormalizeClassification(raw RawClassification) (ClassificationResult, error) {
	if len(raw.Probs) == 0 {
		return ClassificationResult{}, malformed(Classification, "empty probs")
	}
	ranked := make([]Class, 0, len(raw.Probs))
	for idx, p := range raw.Probs {
		name, ok := raw.Names[idx]
		if !ok || name == "" {
			return ClassificationResult{}, malformed(Classification, "no name for class %d", idx)
		}
		if !unit(p) {
			return ClassificationResult{}, malformed(Classification, "probability %v of %q out of [0,1]", p, name)
		}
		ranked = append(ranked, Class{Name: name, Probability: p})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Probability > ranked[j].Probability })
	return ClassificationResult{Ranked: ranked}, nil
}

// NormalizeDetections сохраняет порядок модели. Пустой ответ: валидный «ничего не найдено».
func NormalizeDetections(raw RawDetections) (DetectionResult, error) {
	n := len(raw.Boxes)
	if len(raw.Conf) != n || len(raw.Cls) != n {
		return DetectionResult{}, malformed(Detection, "boxes=%d conf=%d cls=%d", n, len(raw.Conf), len(raw.Cls))
	}
	out := make([]Finding, 0, n)
	for i := 0; i < n; i++ {
		name, ok := raw.Names[raw.Cls[i]]
		if !ok || name == "" {
			return DetectionResult{}, malformed(Detection, "no name for class %d", raw.Cls[i])
		}
		if !unit(raw.Conf[i]) {
			return DetectionResult{}, malformed(Detection, "confidence %v out of [0,1]", raw.Conf[i])
		}
		b := raw.Boxes[i]
		for _, v := range b {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return DetectionResult{}, malformed(Detection, "box %d has non-finite coordinate", i)
			}
		}
		out = append(out, Finding{
			Box:        Box{X1: b[0], Y1: b[1], X2: b[2], Y2: b[3]},
			ClassName:  name,
			Confidence: raw.Conf[i],
		})
	}
	return DetectionResult{Detections: out}, nil
}

func unit(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

// SniffMime determines the upload's MIME type by its content.
func SniffMime(b []byte) string {
	return http.DetectContentType(b)
}
