package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/content-agent/backend/internal/ingestion"
	"github.com/content-agent/backend/internal/lineage"
	"github.com/content-agent/backend/internal/models"
	"github.com/content-agent/backend/internal/stages"
	"github.com/content-agent/backend/internal/storage/docstore"
)

type fakeStage struct {
	name  string
	calls int32
	run   func(in stages.Input) (stages.Result, error)
}

func (s *fakeStage) Name() string { return s.name }

func (s *fakeStage) Run(_ context.Context, in stages.Input) (stages.Result, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.run(in)
}

func (s *fakeStage) count() int { return int(atomic.LoadInt32(&s.calls)) }

func returning(name string, out stages.Result) *fakeStage {
	return &fakeStage{name: name, run: func(stages.Input) (stages.Result, error) { return out, nil }}
}

func failing(name string, err error) *fakeStage {
	return &fakeStage{name: name, run: func(stages.Input) (stages.Result, error) { return nil, err }}
}

// countingStore records how often the orchestrator reaches the store.
type countingStore struct {
	docstore.Store
	inserts int32
	finds   int32
}

func (s *countingStore) Insert(ctx context.Context, coll string, doc interface{}) (primitive.ObjectID, error) {
	atomic.AddInt32(&s.inserts, 1)
	return s.Store.Insert(ctx, coll, doc)
}

func (s *countingStore) Find(ctx context.Context, coll string, filter bson.M, opts *docstore.FindOptions, results interface{}) error {
	atomic.AddInt32(&s.finds, 1)
	return s.Store.Find(ctx, coll, filter, opts, results)
}

type fixture struct {
	orch      *Orchestrator
	repo      *lineage.Repository
	store     *countingStore
	ideation  *fakeStage
	research  *fakeStage
	scripting *fakeStage
	revision  *fakeStage
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    &countingStore{Store: docstore.NewMemoryStore()},
		ideation: returning(stages.NameIdeation, stages.Result{"title": "Cold showers", "hook": "30 seconds"}),
		research: returning(stages.NameResearch, stages.Result{"facts": []interface{}{"dopamine"}, "sources": []interface{}{}}),
		scripting: returning(stages.NameScripting, stages.Result{
			stages.FieldFinalScript:         "Open cold. Stay cold.",
			stages.FieldMrBeastScore:        "82",
			stages.FieldGeorgeBlackmanScore: 74.5,
		}),
		revision: returning(stages.NameRevision, stages.Result{stages.FieldRevisedScript: "Open colder."}),
	}
	f.repo = lineage.NewRepository(f.store)
	f.orch = NewOrchestrator(
		stages.NewExecutor(time.Second, false),
		Stages{Ideation: f.ideation, Research: f.research, Scripting: f.scripting, Revision: f.revision},
		f.repo,
		nil,
	)
	return f
}

func (f *fixture) newChat(t *testing.T) string {
	t.Helper()
	chat, err := f.repo.CreateChat(context.Background(), "2024-03-01T10:00:00Z")
	require.NoError(t, err)
	return chat.ID.Hex()
}

func TestIdeateAndResearchPersistsOneIdeation(t *testing.T) {
	f := newFixture(t)
	chatID := f.newChat(t)

	res, err := f.orch.IdeateAndResearch(context.Background(), IdeateRequest{InitialInput: "cold showers", ChatID: chatID})
	require.NoError(t, err)

	assert.Equal(t, "Cold showers", res.IdeationResult["title"])
	assert.Contains(t, res.StageTimings, stages.NameIdeation)
	assert.Contains(t, res.StageTimings, stages.NameResearch)

	stored, err := f.repo.LatestIdeation(context.Background(), chatID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, res.IdeationID, stored.ID.Hex())
	assert.Equal(t, "cold showers", stored.InitialInput)
	assert.Equal(t, "30 seconds", stored.IdeationResult["hook"])
	assert.Equal(t, chatID, stored.ChatID.Hex())
}

func TestIdeateAndResearchWritesNothingWhenResearchFails(t *testing.T) {
	f := newFixture(t)
	f.research = failing(stages.NameResearch, errors.New("model overloaded"))
	f.orch.stages.Research = f.research
	chatID := f.newChat(t)
	insertsBefore := atomic.LoadInt32(&f.store.inserts)

	_, err := f.orch.IdeateAndResearch(context.Background(), IdeateRequest{InitialInput: "cold showers", ChatID: chatID})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrStageFailure)

	assert.Equal(t, 1, f.ideation.count())
	assert.Equal(t, insertsBefore, atomic.LoadInt32(&f.store.inserts))
	latest, err := f.repo.LatestIdeation(context.Background(), chatID)
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestIdeateAndResearchMalformedChatID(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.IdeateAndResearch(context.Background(), IdeateRequest{InitialInput: "x", ChatID: "not-hex"})
	assert.ErrorIs(t, err, models.ErrMalformedInput)
	assert.Zero(t, f.ideation.count())
	assert.Zero(t, atomic.LoadInt32(&f.store.finds))
	assert.Zero(t, atomic.LoadInt32(&f.store.inserts))
}

func TestIdeateAndResearchRequiresInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.IdeateAndResearch(context.Background(), IdeateRequest{InitialInput: "  ", ChatID: f.newChat(t)})
	assert.ErrorIs(t, err, models.ErrMalformedInput)
	assert.Zero(t, f.ideation.count())
}

func TestIdeateAndResearchUnknownChat(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.IdeateAndResearch(context.Background(), IdeateRequest{
		InitialInput: "cold showers",
		ChatID:       primitive.NewObjectID().Hex(),
	})
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Zero(t, f.ideation.count())
}

func TestIdeateAndResearchProgressEvents(t *testing.T) {
	f := newFixture(t)
	var events []Event

	_, err := f.orch.IdeateAndResearch(context.Background(), IdeateRequest{
		InitialInput: "cold showers",
		ChatID:       f.newChat(t),
		Progress:     func(ev Event) { events = append(events, ev) },
	})
	require.NoError(t, err)

	require.Len(t, events, 4)
	want := []struct{ stage, status string }{
		{stages.NameIdeation, EventStarted},
		{stages.NameIdeation, EventFinished},
		{stages.NameResearch, EventStarted},
		{stages.NameResearch, EventFinished},
	}
	for i, w := range want {
		assert.Equal(t, w.stage, events[i].Stage)
		assert.Equal(t, w.status, events[i].Status)
		assert.Equal(t, events[0].RunID, events[i].RunID)
	}
	assert.NotEmpty(t, events[0].RunID)
}

func (f *fixture) ideate(t *testing.T) (chatID, ideationID string) {
	t.Helper()
	chatID = f.newChat(t)
	res, err := f.orch.IdeateAndResearch(context.Background(), IdeateRequest{InitialInput: "cold showers", ChatID: chatID})
	require.NoError(t, err)
	return chatID, res.IdeationID
}

func TestGenerateScriptPersistsScores(t *testing.T) {
	f := newFixture(t)
	chatID, ideationID := f.ideate(t)

	res, err := f.orch.GenerateScript(context.Background(), ScriptRequest{
		IdeationResult: models.Payload{"title": "Cold showers"},
		ResearchResult: models.Payload{"facts": []interface{}{"dopamine"}},
		IdeationID:     ideationID,
		ChatID:         chatID,
	})
	require.NoError(t, err)
	assert.Equal(t, "Open cold. Stay cold.", res.Script)
	assert.Equal(t, 82.0, res.MrBeastScore)
	assert.Equal(t, 74.5, res.GeorgeBlackmanScore)

	scripts, err := f.repo.ScriptsForIdeation(context.Background(), ideationID, chatID)
	require.NoError(t, err)
	require.Len(t, scripts, 1)
	assert.Equal(t, res.ScriptID, scripts[0].ID.Hex())
	assert.Equal(t, 82.0, scripts[0].MrBeastScore)
	assert.Equal(t, "Cold showers", scripts[0].InitialInput["title"])
}

func TestGenerateScriptIdeationFromOtherChat(t *testing.T) {
	f := newFixture(t)
	_, ideationID := f.ideate(t)
	otherChat := f.newChat(t)

	_, err := f.orch.GenerateScript(context.Background(), ScriptRequest{
		IdeationResult: models.Payload{"title": "x"},
		ResearchResult: models.Payload{"facts": "y"},
		IdeationID:     ideationID,
		ChatID:         otherChat,
	})
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Zero(t, f.scripting.count())
}

func TestGenerateScriptInvalidOutput(t *testing.T) {
	f := newFixture(t)
	chatID, ideationID := f.ideate(t)
	f.orch.stages.Scripting = returning(stages.NameScripting, stages.Result{
		stages.FieldFinalScript:         "text",
		stages.FieldMrBeastScore:        "high",
		stages.FieldGeorgeBlackmanScore: 70,
	})

	_, err := f.orch.GenerateScript(context.Background(), ScriptRequest{
		IdeationResult: models.Payload{"title": "x"},
		ResearchResult: models.Payload{"facts": "y"},
		IdeationID:     ideationID,
		ChatID:         chatID,
	})
	assert.ErrorIs(t, err, models.ErrStageFailure)

	_, err = f.repo.ScriptsForIdeation(context.Background(), ideationID, chatID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestGenerateScriptMissingResults(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.GenerateScript(context.Background(), ScriptRequest{
		IdeationID: primitive.NewObjectID().Hex(),
		ChatID:     primitive.NewObjectID().Hex(),
	})
	assert.ErrorIs(t, err, models.ErrMalformedInput)
	assert.Zero(t, atomic.LoadInt32(&f.store.finds))
}

func TestScore(t *testing.T) {
	tests := []struct {
		name    string
		value   interface{}
		want    float64
		wantErr bool
	}{
		{"float", 81.5, 81.5, false},
		{"int", 80, 80, false},
		{"numeric string", " 77 ", 77, false},
		{"word", "great", 0, true},
		{"bool", true, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := score(stages.Result{"s": tt.value}, "s")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := score(stages.Result{}, "s")
	assert.Error(t, err)
}

func TestReviseScriptIsNotPersisted(t *testing.T) {
	f := newFixture(t)

	res, err := f.orch.ReviseScript(context.Background(), ReviseRequest{Script: "Open cold.", ModificationPrompt: "make it colder"})
	require.NoError(t, err)
	assert.Equal(t, "Open colder.", res.Script)
	assert.Zero(t, atomic.LoadInt32(&f.store.inserts))
}

func TestReviseScriptRejectsEmptyPrompt(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.ReviseScript(context.Background(), ReviseRequest{Script: "Open cold."})
	assert.ErrorIs(t, err, models.ErrMalformedInput)
	assert.Zero(t, f.revision.count())
}

func TestReviseScriptMissingOutputField(t *testing.T) {
	f := newFixture(t)
	f.orch.stages.Revision = returning(stages.NameRevision, stages.Result{"text": "wrong key"})

	_, err := f.orch.ReviseScript(context.Background(), ReviseRequest{Script: "a", ModificationPrompt: "b"})
	assert.ErrorIs(t, err, models.ErrStageFailure)
}

type fakeUpserter struct {
	got ingestion.Request
}

func (u *fakeUpserter) Upsert(_ context.Context, req ingestion.Request) (*ingestion.Summary, error) {
	u.got = req
	return &ingestion.Summary{
		TotalVectors:  2,
		EmbeddingCost: 0.004,
		Items: []ingestion.ItemResult{
			{ChunkID: "a", PageID: "p", Status: "inserted"},
			{ChunkID: "b", PageID: "p", Status: "inserted"},
		},
	}, nil
}

func TestUpsert(t *testing.T) {
	f := newFixture(t)
	up := &fakeUpserter{}
	f.orch.upserter = up

	res, err := f.orch.Upsert(context.Background(), UpsertRequest{NotionID: "abc", DocType: "database", LastUpdateTime: "2024-03-01"})
	require.NoError(t, err)

	assert.Equal(t, ingestion.CleanupNone, up.got.CleanupMode)
	assert.Equal(t, ingestion.DocTypeDatabase, up.got.DocType)
	assert.Equal(t, 2, res.TotalVectors)
	assert.Equal(t, "none", res.CleanupMode)
	assert.Equal(t, "2024-03-01", res.LastUpdateTime)
	assert.Len(t, res.UpsertDetails, 2)
}

func TestUpsertValidation(t *testing.T) {
	f := newFixture(t)
	f.orch.upserter = &fakeUpserter{}

	tests := []UpsertRequest{
		{DocType: "page"},
		{NotionID: "abc", DocType: "block"},
		{NotionID: "abc", DocType: "page", CleanupMode: "partial"},
	}
	for _, req := range tests {
		_, err := f.orch.Upsert(context.Background(), req)
		assert.ErrorIs(t, err, models.ErrMalformedInput)
	}
}

func TestUpsertNotConfigured(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.Upsert(context.Background(), UpsertRequest{NotionID: "abc", DocType: "page"})
	assert.Error(t, err)
}
