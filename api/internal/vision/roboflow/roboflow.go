// Package roboflow is a Detector backed by the hosted Roboflow detect API.
package roboflow

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"xray-bot/api/internal/vision"
)

const DefaultBaseURL = "https://detect.roboflow.com"

type Detector struct {
	APIKey  string
	Project string
	Version int
	// BaseURL переопределяется в тестах.
	BaseURL string
	httpc   *http.Client
}

func New(apiKey, project string, version int, timeout time.Duration) *Detector {
	return &Detector{
		APIKey:  strings.TrimSpace(apiKey),
		Project: strings.TrimSpace(project),
		Version: version,
		BaseURL: DefaultBaseURL,
		httpc:   &http.Client{Timeout: timeout},
	}
}

func (d *Detector) Name() string { return "roboflow" }

type prediction struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Confidence float64 `json:"confidence"`
	Class      string  `json:"class"`
	ClassID    *int    `json:"class_id"`
}

type response struct {
	Predictions []prediction `json:"predictions"`
}

func (d *Detector) Detect(ctx context.Context, image []byte, _ string) (vision.RawDetections, error) {
	if d.APIKey == "" {
		return vision.RawDetections{}, errors.New("ROBOFLOW_API_KEY is empty")
	}
	u := fmt.Sprintf("%s/%s/%d?api_key=%s",
		strings.TrimRight(d.BaseURL, "/"), url.PathEscape(d.Project), d.Version, url.QueryEscape(d.APIKey))

	body := strings.NewReader(base64.StdEncoding.EncodeToString(image))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, body)
	if err != nil {
		return vision.RawDetections{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.httpc.Do(req)
	if err != nil {
		return vision.RawDetections{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		x, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return vision.RawDetections{}, fmt.Errorf("roboflow %d: %s", resp.StatusCode, strings.TrimSpace(string(x)))
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return vision.RawDetections{}, fmt.Errorf("roboflow: bad JSON: %w", err)
	}
	return toRaw(out.Predictions), nil
}

// toRaw переводит центр+размер в углы x1,y1,x2,y2. Классы без class_id
// получают индексы после максимального явного, чтобы не пересечься с ними.
func toRaw(preds []prediction) vision.RawDetections {
	raw := vision.RawDetections{
		Names: map[int]string{},
		Boxes: make([][4]float64, 0, len(preds)),
		Conf:  make([]float64, 0, len(preds)),
		Cls:   make([]int, 0, len(preds)),
	}
	byName := map[string]int{}
	next := 0
	for _, p := range preds {
		if p.ClassID == nil {
			continue
		}
		if _, ok := byName[p.Class]; !ok {
			byName[p.Class] = *p.ClassID
		}
		next = max(next, *p.ClassID+1)
	}

	for _, p := range preds {
		var id int
		if p.ClassID != nil {
			id = *p.ClassID
		} else if known, ok := byName[p.Class]; ok {
			id = known
		} else {
			id = next
			next++
			byName[p.Class] = id
		}
		raw.Names[id] = p.Class

		raw.Boxes = append(raw.Boxes, [4]float64{
			p.X - p.Width/2, p.Y - p.Height/2,
			p.X + p.Width/2, p.Y + p.Height/2,
		})
		raw.Conf = append(raw.Conf, p.Confidence)
		raw.Cls = append(raw.Cls, id)
	}
	return raw
}
