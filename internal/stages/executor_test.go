package stages

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/content-agent/backend/internal/llm"
	"github.com/content-agent/backend/internal/models"
	"github.com/content-agent/backend/internal/search/web"
)

type funcStage struct {
	name string
	run  func(ctx context.Context, in Input) (Result, error)
}

func (s funcStage) Name() string { return s.name }

func (s funcStage) Run(ctx context.Context, in Input) (Result, error) { return s.run(ctx, in) }

func TestExecuteReturnsResult(t *testing.T) {
	e := NewExecutor(time.Second, true)
	stage := funcStage{name: "echo", run: func(_ context.Context, in Input) (Result, error) {
		return Result{"topic": in.Topic}, nil
	}}

	got, err := e.Execute(context.Background(), stage, Input{Topic: "sleep"})
	require.NoError(t, err)
	assert.Equal(t, "sleep", got["topic"])
}

func TestExecuteTimesOut(t *testing.T) {
	e := NewExecutor(20*time.Millisecond, false)
	release := make(chan struct{})
	defer close(release)

	stage := funcStage{name: "slow", run: func(context.Context, Input) (Result, error) {
		<-release
		return Result{"late": true}, nil
	}}

	start := time.Now()
	_, err := e.Execute(context.Background(), stage, Input{})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrStageFailure)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestExecuteWrapsStageError(t *testing.T) {
	e := NewExecutor(time.Second, false)
	boom := errors.New("rate limited")
	stage := funcStage{name: "failing", run: func(context.Context, Input) (Result, error) {
		return nil, boom
	}}

	_, err := e.Execute(context.Background(), stage, Input{})
	assert.ErrorIs(t, err, models.ErrStageFailure)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, context.DeadlineExceeded)
}

func TestExecuteRejectsEmptyResult(t *testing.T) {
	e := NewExecutor(time.Second, false)
	stage := funcStage{name: "empty", run: func(context.Context, Input) (Result, error) {
		return Result{}, nil
	}}

	_, err := e.Execute(context.Background(), stage, Input{})
	assert.ErrorIs(t, err, models.ErrStageFailure)
}

func TestExecuteRecoversPanic(t *testing.T) {
	e := NewExecutor(time.Second, false)
	stage := funcStage{name: "panics", run: func(context.Context, Input) (Result, error) {
		panic("nil map")
	}}

	_, err := e.Execute(context.Background(), stage, Input{})
	assert.ErrorIs(t, err, models.ErrStageFailure)
}

type fakeCompleter struct {
	reqs   []llm.CompletionRequest
	result map[string]interface{}
	err    error
}

func (f *fakeCompleter) CompleteJSON(_ context.Context, req llm.CompletionRequest) (map[string]interface{}, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]interface{}, len(f.result))
	for k, v := range f.result {
		out[k] = v
	}
	return out, nil
}

type fakeSearcher struct {
	results []web.SearchResult
	err     error
}

func (f *fakeSearcher) Search(context.Context, string, int) ([]web.SearchResult, error) {
	return f.results, f.err
}

func TestResearchStageUsesSources(t *testing.T) {
	completer := &fakeCompleter{result: map[string]interface{}{"findings": "x"}}
	searcher := &fakeSearcher{results: []web.SearchResult{{Title: "Study", URL: "https://example.com/s", Content: "cold water"}}}
	stage := NewResearchStage(completer, searcher, 3)

	got, err := stage.Run(context.Background(), Input{Topic: "cold", Ideation: Result{"angles": "science"}})
	require.NoError(t, err)

	require.Len(t, completer.reqs, 1)
	prompt := completer.reqs[0].UserPrompt
	assert.True(t, strings.Contains(prompt, "https://example.com/s"))
	assert.True(t, strings.Contains(prompt, `"angles":"science"`))
	assert.Equal(t, []interface{}{"https://example.com/s"}, got["sources"])
}

func TestResearchStageSurvivesSearchFailure(t *testing.T) {
	completer := &fakeCompleter{result: map[string]interface{}{"findings": "x"}}
	stage := NewResearchStage(completer, &fakeSearcher{err: errors.New("blocked")}, 3)

	got, err := stage.Run(context.Background(), Input{Topic: "cold"})
	require.NoError(t, err)
	assert.Equal(t, "x", got["findings"])
	assert.NotContains(t, got, "sources")
}

func TestScriptingStagePromptNamesOutputFields(t *testing.T) {
	completer := &fakeCompleter{result: map[string]interface{}{FieldFinalScript: "s"}}
	stage := NewScriptingStage(completer)

	_, err := stage.Run(context.Background(), Input{Ideation: Result{"a": 1}, Research: Result{"b": 2}})
	require.NoError(t, err)

	system := completer.reqs[0].SystemPrompt
	for _, field := range []string{FieldFinalScript, FieldMrBeastScore, FieldGeorgeBlackmanScore} {
		assert.Contains(t, system, field)
	}
}

func TestRevisionStagePassesInstruction(t *testing.T) {
	completer := &fakeCompleter{result: map[string]interface{}{FieldRevisedScript: "shorter"}}
	stage := NewRevisionStage(completer)

	got, err := stage.Run(context.Background(), Input{Script: "long script", Instruction: "make it shorter"})
	require.NoError(t, err)
	assert.Equal(t, "shorter", got[FieldRevisedScript])
	assert.Contains(t, completer.reqs[0].UserPrompt, "make it shorter")
}
