package vision

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClassifier struct {
	raw  RawClassification
	err  error
	mime string
}

func (f *fakeClassifier) Name() string { return "fake" }
func (f *fakeClassifier) Classify(_ context.Context, _ []byte, mime string) (RawClassification, error) {
	f.mime = mime
	return f.raw, f.err
}

type fakeDetector struct {
	raw RawDetections
	err error
}

func (f *fakeDetector) Name() string { return "fake" }
func (f *fakeDetector) Detect(context.Context, []byte, string) (RawDetections, error) {
	return f.raw, f.err
}

func writeImage(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "img.jpg")
	require.NoError(t, os.WriteFile(p, []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00}, 0o644))
	return p
}

func TestAdapter_Classification(t *testing.T) {
	t.Run("ranks classes by probability", func(t *testing.T) {
		c := &fakeClassifier{raw: RawClassification{
			Names: map[int]string{0: "Normal", 1: "Pneumonia"},
			Probs: []float64{0.03, 0.97},
		}}
		a := NewAdapter(c, nil, nil)

		res, err := a.Infer(context.Background(), writeImage(t), Classification)

		require.NoError(t, err)
		cr, ok := res.(ClassificationResult)
		require.True(t, ok)
		assert.Equal(t, Classification, cr.Mode())
		require.Len(t, cr.Ranked, 2)
		assert.Equal(t, "Pneumonia", cr.Ranked[0].Name)
		assert.Equal(t, "Normal", cr.Ranked[1].Name)
		assert.Equal(t, "image/jpeg", c.mime)
	})

	t.Run("empty probs is an inference error", func(t *testing.T) {
		a := NewAdapter(&fakeClassifier{raw: RawClassification{Names: map[int]string{0: "Normal"}}}, nil, nil)

		_, err := a.Infer(context.Background(), writeImage(t), Classification)

		assert.ErrorIs(t, err, ErrInference)
	})

	t.Run("missing class name is an inference error", func(t *testing.T) {
		a := NewAdapter(&fakeClassifier{raw: RawClassification{
			Names: map[int]string{0: "Normal"},
			Probs: []float64{0.4, 0.6},
		}}, nil, nil)

		_, err := a.Infer(context.Background(), writeImage(t), Classification)

		assert.ErrorIs(t, err, ErrInference)
	})

	t.Run("backend failure is wrapped", func(t *testing.T) {
		boom := errors.New("boom")
		a := NewAdapter(&fakeClassifier{err: boom}, nil, nil)

		_, err := a.Infer(context.Background(), writeImage(t), Classification)

		assert.ErrorIs(t, err, ErrInference)
		assert.ErrorIs(t, err, boom)
		var ie *InferenceError
		require.ErrorAs(t, err, &ie)
		assert.Equal(t, Classification, ie.Mode)
	})

	t.Run("unreadable image is an inference error", func(t *testing.T) {
		a := NewAdapter(&fakeClassifier{}, nil, nil)

		_, err := a.Infer(context.Background(), filepath.Join(t.TempDir(), "missing.jpg"), Classification)

		assert.ErrorIs(t, err, ErrInference)
	})

	t.Run("no classifier configured", func(t *testing.T) {
		a := NewAdapter(nil, &fakeDetector{}, nil)

		_, err := a.Infer(context.Background(), writeImage(t), Classification)

		assert.ErrorIs(t, err, ErrInference)
	})
}

func TestAdapter_Detection(t *testing.T) {
	t.Run("keeps model order", func(t *testing.T) {
		d := &fakeDetector{raw: RawDetections{
			Names: map[int]string{0: "fracture", 1: "lesion"},
			Boxes: [][4]float64{{10, 10, 50, 50}, {1, 2, 3, 4}},
			Conf:  []float64{0.5, 0.81},
			Cls:   []int{1, 0},
		}}
		a := NewAdapter(nil, d, nil)

		res, err := a.Infer(context.Background(), writeImage(t), Detection)

		require.NoError(t, err)
		dr, ok := res.(DetectionResult)
		require.True(t, ok)
		require.Len(t, dr.Detections, 2)
		assert.Equal(t, Finding{Box: Box{X1: 10, Y1: 10, X2: 50, Y2: 50}, ClassName: "lesion", Confidence: 0.5}, dr.Detections[0])
		assert.Equal(t, "fracture", dr.Detections[1].ClassName)
		assert.Equal(t, 0.81, dr.Detections[1].Confidence)
	})

	t.Run("empty detections are not an error", func(t *testing.T) {
		a := NewAdapter(nil, &fakeDetector{}, nil)

		res, err := a.Infer(context.Background(), writeImage(t), Detection)

		require.NoError(t, err)
		dr, ok := res.(DetectionResult)
		require.True(t, ok)
		assert.Empty(t, dr.Detections)
	})

	t.Run("mismatched arrays", func(t *testing.T) {
		a := NewAdapter(nil, &fakeDetector{raw: RawDetections{
			Names: map[int]string{0: "fracture"},
			Boxes: [][4]float64{{0, 0, 1, 1}},
			Conf:  []float64{0.9, 0.8},
			Cls:   []int{0},
		}}, nil)

		_, err := a.Infer(context.Background(), writeImage(t), Detection)

		assert.ErrorIs(t, err, ErrInference)
	})

	t.Run("confidence out of range", func(t *testing.T) {
		a := NewAdapter(nil, &fakeDetector{raw: RawDetections{
			Names: map[int]string{0: "fracture"},
			Boxes: [][4]float64{{0, 0, 1, 1}},
			Conf:  []float64{81},
			Cls:   []int{0},
		}}, nil)

		_, err := a.Infer(context.Background(), writeImage(t), Detection)

		assert.ErrorIs(t, err, ErrInference)
	})
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{in: "pneumonia", want: Classification},
		{in: "Classification", want: Classification},
		{in: "fracture", want: Detection},
		{in: " detection ", want: Detection},
		{in: "xray", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSniffMime(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{name: "jpeg", in: []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10}, want: "image/jpeg"},
		{name: "png", in: []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\x0dIHDR"), want: "image/png"},
		{name: "text", in: []byte("not an image"), want: "text/plain; charset=utf-8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SniffMime(tt.in))
		})
	}
}
