// Package stages runs the generation stages of the content pipeline. Each
// stage is an opaque unit that turns structured input into a structured
// result; the Executor bounds how long any one of them may take.
package stages

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/content-agent/backend/internal/metrics"
	"github.com/content-agent/backend/internal/models"
	"github.com/content-agent/backend/pkg/logger"
)

// Result is a stage output keyed by stage-specific field names.
type Result = models.Payload

// Input carries everything a stage may read. Each stage uses its own subset.
type Input struct {
	Topic       string
	Ideation    Result
	Research    Result
	Script      string
	Instruction string
}

type Stage interface {
	Name() string
	Run(ctx context.Context, in Input) (Result, error)
}

type Executor struct {
	timeout time.Duration
	verbose bool
}

func NewExecutor(timeout time.Duration, verbose bool) *Executor {
	return &Executor{timeout: timeout, verbose: verbose}
}

type outcome struct {
	result Result
	err    error
}

// Execute runs one stage in its own goroutine and waits for it or the
// deadline, whichever comes first. Every failure wraps models.ErrStageFailure;
// a timeout also wraps context.DeadlineExceeded.
func (e *Executor) Execute(ctx context.Context, stage Stage, in Input) (Result, error) {
	name := stage.Name()
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	e.logf("Stage started", zap.String("stage", name), zap.Int("input_chars", inputSize(in)))
	start := time.Now()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("stage panicked: %v", r)}
			}
		}()
		result, err := stage.Run(ctx, in)
		done <- outcome{result: result, err: err}
	}()

	var (
		result Result
		err    error
	)
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case out := <-done:
		result, err = out.result, out.err
		if err == nil && len(result) == 0 {
			err = errors.New("stage returned an empty result")
		}
	}
	elapsed := time.Since(start)

	if err != nil {
		status := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			status = "timeout"
			err = fmt.Errorf("%w: %s exceeded %s: %w", models.ErrStageFailure, name, e.timeout, context.DeadlineExceeded)
		} else {
			err = fmt.Errorf("%w: %s: %w", models.ErrStageFailure, name, err)
		}
		metrics.RecordStage(name, status, elapsed)
		logger.Error("Stage failed",
			zap.String("stage", name),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return nil, err
	}

	metrics.RecordStage(name, "success", elapsed)
	e.logf("Stage finished",
		zap.String("stage", name),
		zap.Duration("elapsed", elapsed),
		zap.Int("result_fields", len(result)),
	)
	return result, nil
}

func (e *Executor) logf(msg string, fields ...zap.Field) {
	if e.verbose {
		logger.Info(msg, fields...)
		return
	}
	logger.Debug(msg, fields...)
}

func inputSize(in Input) int {
	return len(in.Topic) + len(in.Script) + len(in.Instruction) + len(in.Ideation) + len(in.Research)
}
