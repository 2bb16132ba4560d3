package pipeline

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"xray-bot/api/internal/artifact"
	"xray-bot/api/internal/metrics"
	"xray-bot/api/internal/report"
	"xray-bot/api/internal/vision"
)

// Model is what the pipeline needs from vision.Adapter.
type Model interface {
	Infer(ctx context.Context, imagePath string, mode vision.Mode) (vision.Result, error)
}

type Annotator interface {
	AnnotateFile(srcPath string, dst *artifact.Handle, overlays []report.Overlay) error
}

type Request struct {
	SessionID string
	Mode      vision.Mode
	Upload    io.Reader
}

// Outcome is what the transport delivers to the user.
// AnnotatedPath is empty exactly when no annotated image exists; the flags say why.
type Outcome struct {
	Text             string
	AnnotatedPath    string
	NothingFound     bool
	Failed           bool
	AnnotationFailed bool
}

// DeliverFunc must finish using the files before it returns: they are deleted right after.
type DeliverFunc func(ctx context.Context, out Outcome) error

type Service struct {
	ws          *artifact.Workspace
	model       Model
	interpreter *report.Interpreter
	annotator   Annotator
	log         *zap.Logger
}

func NewService(ws *artifact.Workspace, model Model, interpreter *report.Interpreter, annotator Annotator, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{ws: ws, model: model, interpreter: interpreter, annotator: annotator, log: log}
}

// Handle runs one upload end to end. Every handle it creates is released before it returns,
// whichever way it exits. Only a failed save of the upload is returned as an error;
// inference failures are turned into the fixed failure message.
func (s *Service) Handle(ctx context.Context, req Request, deliver DeliverFunc) error {
	log := s.log.With(
		zap.String("request_id", uuid.NewString()),
		zap.String("session", req.SessionID),
		zap.Stringer("mode", req.Mode),
	)

	original := s.ws.Original(req.SessionID)
	defer original.Release()

	if err := original.Save(req.Upload); err != nil {
		metrics.AnalysesTotal.WithLabelValues(req.Mode.String(), metrics.OutcomeSaveErr).Inc()
		log.Error("save upload failed", zap.Error(err))
		return fmt.Errorf("save upload: %w", err)
	}
	log.Info("upload saved", zap.String("path", original.Path()))

	out, annotated := s.analyse(ctx, log, req, original)
	if annotated != nil {
		defer annotated.Release()
	}

	if err := deliver(ctx, out); err != nil {
		log.Warn("deliver failed", zap.Error(err))
		return fmt.Errorf("deliver: %w", err)
	}
	_ = original.Consume()
	if annotated != nil {
		_ = annotated.Consume()
	}
	return nil
}

func (s *Service) analyse(ctx context.Context, log *zap.Logger, req Request, original *artifact.Handle) (Outcome, *artifact.Handle) {
	mode := req.Mode.String()
	fail := Outcome{Text: s.interpreter.Policy().FailureMessage, Failed: true}

	res, err := s.model.Infer(ctx, original.Path(), req.Mode)
	if err != nil {
		metrics.AnalysesTotal.WithLabelValues(mode, metrics.OutcomeInferenceErr).Inc()
		log.Error("inference failed", zap.Error(err))
		return fail, nil
	}

	rep, err := s.interpreter.Interpret(res)
	if err != nil {
		metrics.AnalysesTotal.WithLabelValues(mode, metrics.OutcomeInferenceErr).Inc()
		log.Error("interpret failed", zap.Error(err))
		return fail, nil
	}

	if rep.NothingFound {
		metrics.AnalysesTotal.WithLabelValues(mode, metrics.OutcomeNothingFound).Inc()
		log.Info("nothing found")
		return Outcome{Text: rep.Text, NothingFound: true}, nil
	}
	metrics.AnalysesTotal.WithLabelValues(mode, metrics.OutcomeReport).Inc()

	out := Outcome{Text: rep.Text}
	if !rep.Annotate() {
		return out, nil
	}

	annotated := s.ws.Annotated(req.SessionID, mode)
	if err := s.annotator.AnnotateFile(original.Path(), annotated, rep.Overlays); err != nil {
		metrics.AnnotationFailures.Inc()
		log.Error("annotate failed", zap.Error(err))
		out.AnnotationFailed = true
		return out, annotated
	}
	out.AnnotatedPath = annotated.Path()
	log.Info("report ready", zap.Int("overlays", len(rep.Overlays)))
	return out, annotated
}
