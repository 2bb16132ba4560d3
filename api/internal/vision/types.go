package vision

import (
	"fmt"
	"strings"
)

// Mode выбирается пользователем до загрузки снимка и не меняется в рамках запроса.
type Mode int

const (
	Classification Mode = iota
	Detection
)

func (m Mode) String() string {
	switch m {
	case Classification:
		return "classification"
	case Detection:
		return "detection"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode понимает как канонические имена, так и callback-алиасы кнопок бота.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "classification", "classify", "pneumonia":
		return Classification, nil
	case "detection", "detect", "fracture":
		return Detection, nil
	default:
		return 0, fmt.Errorf("unknown analysis mode %q", s)
	}
}

// RawClassification: ответ классификатора в форме YOLO: вероятность на индекс класса.
type RawClassification struct {
	Names map[int]string `json:"names"`
	Probs []float64      `json:"probs"`
}

// RawDetections: ответ детектора в форме YOLO: параллельные массивы boxes/conf/cls.
type RawDetections struct {
	Names map[int]string `json:"names"`
	Boxes [][4]float64   `json:"boxes"` // x1, y1, x2, y2
	Conf  []float64      `json:"conf"`
	Cls   []int          `json:"cls"`
}

type Class struct {
	Name        string
	Probability float64
}

type Box struct {
	X1, Y1, X2, Y2 float64
}

// Finding is one object found by the detector.
type Finding struct {
	Box        Box
	ClassName  string
	Confidence float64
}

// Result is one of ClassificationResult or DetectionResult.
type Result interface {
	Mode() Mode
	isResult()
}

// ClassificationResult keeps classes ordered by descending probability.
type ClassificationResult struct {
	Ranked []Class
}

// DetectionResult keeps detections in the order the model returned them.
// An empty list means nothing was found.
type DetectionResult struct {
	Detections []Finding
}

func (ClassificationResult) Mode() Mode { return Classification }
func (DetectionResult) Mode() Mode      { return Detection }

func (ClassificationResult) isResult() {}
func (DetectionResult) isResult()      {}
