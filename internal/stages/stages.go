package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/content-agent/backend/internal/llm"
	"github.com/content-agent/backend/internal/search/web"
	"github.com/content-agent/backend/pkg/logger"
)

// Stage names, also used as metric labels.
const (
	NameIdeation  = "ideation"
	NameResearch  = "research"
	NameScripting = "scripting"
	NameRevision  = "revision"
)

// Scripting output fields.
const (
	FieldFinalScript         = "Final_Script"
	FieldMrBeastScore        = "MR_BEAST_SCORE"
	FieldGeorgeBlackmanScore = "GEORGE_BLACKMAN_SCORE"
	FieldRevisedScript       = "script"
)

// Completer is the slice of the LLM client the stages need.
type Completer interface {
	CompleteJSON(ctx context.Context, req llm.CompletionRequest) (map[string]interface{}, error)
}

// Searcher finds source material for the research stage.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]web.SearchResult, error)
}

type IdeationStage struct {
	llm Completer
}

func NewIdeationStage(c Completer) *IdeationStage {
	return &IdeationStage{llm: c}
}

func (s *IdeationStage) Name() string { return NameIdeation }

func (s *IdeationStage) Run(ctx context.Context, in Input) (Result, error) {
	systemPrompt := `You are a senior content strategist for a YouTube channel.
Given a topic, develop video ideas that can hold attention for the whole runtime.

Return a JSON object with:
- "title_options": 3-5 clickable titles
- "angles": distinct angles to approach the topic
- "hooks": opening lines for the first 10 seconds
- "audience": who the video is for
- "key_questions": questions the video must answer`

	userPrompt := fmt.Sprintf("Topic: %s", in.Topic)

	return s.llm.CompleteJSON(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  0.8,
	})
}

type ResearchStage struct {
	llm        Completer
	search     Searcher
	maxResults int
}

// NewResearchStage builds the research stage. search may be nil, in which
// case the model works from its own knowledge.
func NewResearchStage(c Completer, search Searcher, maxResults int) *ResearchStage {
	return &ResearchStage{llm: c, search: search, maxResults: maxResults}
}

func (s *ResearchStage) Name() string { return NameResearch }

func (s *ResearchStage) Run(ctx context.Context, in Input) (Result, error) {
	ideation, err := json.Marshal(in.Ideation)
	if err != nil {
		return nil, fmt.Errorf("failed to encode ideation: %w", err)
	}

	var sources []web.SearchResult
	if s.search != nil {
		sources, err = s.search.Search(ctx, in.Topic, s.maxResults)
		if err != nil {
			// research can proceed without live sources
			logger.Warn("Research web search failed", zap.String("topic", in.Topic), zap.Error(err))
			sources = nil
		}
	}

	systemPrompt := `You are a meticulous researcher supporting a video script writer.
Verify claims, collect concrete facts, numbers and examples, and flag anything uncertain.

Return a JSON object with:
- "findings": facts that support the ideas, each with a short explanation
- "sources": where each finding comes from (URLs when available)
- "open_questions": claims that could not be verified`

	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n\nIdeation:\n%s\n", in.Topic, ideation)
	if len(sources) > 0 {
		b.WriteString("\nWeb sources:\n")
		for i, src := range sources {
			fmt.Fprintf(&b, "[%d] %s (%s)\n%s\n\n", i+1, src.Title, src.URL, src.Content)
		}
	}

	result, err := s.llm.CompleteJSON(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   b.String(),
		Temperature:  0.3,
	})
	if err != nil {
		return nil, err
	}

	if _, ok := result["sources"]; !ok && len(sources) > 0 {
		urls := make([]interface{}, 0, len(sources))
		for _, src := range sources {
			urls = append(urls, src.URL)
		}
		result["sources"] = urls
	}
	return result, nil
}

type ScriptingStage struct {
	llm Completer
}

func NewScriptingStage(c Completer) *ScriptingStage {
	return &ScriptingStage{llm: c}
}

func (s *ScriptingStage) Name() string { return NameScripting }

func (s *ScriptingStage) Run(ctx context.Context, in Input) (Result, error) {
	ideation, err := json.Marshal(in.Ideation)
	if err != nil {
		return nil, fmt.Errorf("failed to encode ideation: %w", err)
	}
	research, err := json.Marshal(in.Research)
	if err != nil {
		return nil, fmt.Errorf("failed to encode research: %w", err)
	}

	systemPrompt := fmt.Sprintf(`You are a YouTube script writer. Write a complete, spoken-word script
from the ideation and research you are given, then grade it.

Grade the script twice from 0 to 100:
- as MrBeast would, for retention and pacing
- as George Blackman would, for storytelling and structure

Return a JSON object with exactly these keys:
- "%s": the full script
- "%s": number
- "%s": number`, FieldFinalScript, FieldMrBeastScore, FieldGeorgeBlackmanScore)

	userPrompt := fmt.Sprintf("Ideation:\n%s\n\nResearch:\n%s", ideation, research)

	return s.llm.CompleteJSON(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  0.7,
	})
}

type RevisionStage struct {
	llm Completer
}

func NewRevisionStage(c Completer) *RevisionStage {
	return &RevisionStage{llm: c}
}

func (s *RevisionStage) Name() string { return NameRevision }

func (s *RevisionStage) Run(ctx context.Context, in Input) (Result, error) {
	systemPrompt := fmt.Sprintf(`You are a script editor. Apply the requested change to the script and
keep everything else intact. Return a JSON object with one key, "%s", holding the full revised script.`,
		FieldRevisedScript)

	userPrompt := fmt.Sprintf("Script:\n%s\n\nRequested change:\n%s", in.Script, in.Instruction)

	return s.llm.CompleteJSON(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  0.5,
	})
}
