package rag

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/bgunyel/ragnar/llm"
	"github.com/bgunyel/ragnar/workflow"
)

// nodes holds the collaborators shared by every RAG node.
type nodes struct {
	provider  llm.Provider
	retriever Retriever
	opts      Options
	logger    *zap.Logger

	// answerContext picks the documents the answer is written from.
	answerContext func(*State) []Document
}

func (n *nodes) complete(ctx context.Context, s *State, model string, jsonMode bool, msgs ...llm.Message) (string, error) {
	resp, err := n.provider.Completion(ctx, &llm.ChatRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: float32(n.opts.Temperature),
		JSONMode:    jsonMode,
	})
	if err != nil {
		return "", err
	}
	s.addUsage(resp)
	return strings.TrimSpace(resp.Message().Content), nil
}

func (n *nodes) grade(ctx context.Context, s *State, prompt string) (Grade, error) {
	content, err := n.complete(ctx, s, n.opts.ReasoningModel, true, llm.UserMessage(prompt))
	if err != nil {
		return GradeUnset, err
	}
	var out struct {
		Score string `json:"score"`
	}
	if err := llm.DecodeJSON(content, &out); err != nil {
		return GradeUnset, fmt.Errorf("grader reply: %w", err)
	}
	return Grade(strings.ToLower(strings.TrimSpace(out.Score))), nil
}

func (n *nodes) routeQuestion(ctx context.Context, s *State, _ workflow.RunConfig) (*State, error) {
	content, err := n.complete(ctx, s, n.opts.ReasoningModel, true,
		llm.UserMessage(fmt.Sprintf(routerPrompt, topicList(n.opts.Topics), s.Question)))
	if err != nil {
		return s, err
	}
	var out struct {
		Datasource string `json:"datasource"`
	}
	if err := llm.DecodeJSON(content, &out); err != nil {
		return s, fmt.Errorf("question router reply: %w", err)
	}
	s.Datasource = Datasource(strings.ToLower(strings.TrimSpace(out.Datasource)))
	s.step(NodeRouteQuestion)
	return s, nil
}

func (n *nodes) internalAnswer(ctx context.Context, s *State, _ workflow.RunConfig) (*State, error) {
	s.GenerationIteration++
	answer, err := n.complete(ctx, s, n.opts.LanguageModel, false,
		llm.UserMessage(fmt.Sprintf(internalAnswerPrompt, s.Question)))
	if err != nil {
		return s, err
	}
	s.Generation = answer
	s.step(NodeInternalAnswer)
	return s, nil
}

// retrieve starts a new retrieval pass, which also restarts the
// generation count for the answers written from it.
func (n *nodes) retrieve(ctx context.Context, s *State, cfg workflow.RunConfig) (*State, error) {
	k := cfg.Int(KeyRetrievedDocuments, n.opts.RetrievedDocuments)
	docs, err := n.retriever.Retrieve(ctx, s.Query, k)
	if err != nil {
		return s, err
	}
	s.Documents = docs
	s.RetrievalIteration++
	s.GenerationIteration = 0
	s.step(NodeRetrieve)
	n.logger.Debug("documents retrieved",
		zap.String("query", s.Query),
		zap.Int("documents", len(docs)),
		zap.Int("retrieval_iteration", s.RetrievalIteration))
	return s, nil
}

// gradeDocuments appends relevant documents to GoodDocuments. The pass is
// graded yes only when every retrieved document is relevant.
func (n *nodes) gradeDocuments(ctx context.Context, s *State, _ workflow.RunConfig) (*State, error) {
	s.step(NodeGradeDocuments)
	if len(s.Documents) == 0 {
		s.DocumentsGrade = GradeNo
		return s, nil
	}

	s.DocumentsGrade = GradeYes
	for _, d := range s.Documents {
		g, err := n.grade(ctx, s, fmt.Sprintf(documentGraderPrompt, s.Question, d.Content))
		if err != nil {
			return s, err
		}
		switch g {
		case GradeYes:
			if !containsDocument(s.GoodDocuments, d) {
				s.GoodDocuments = append(s.GoodDocuments, d)
			}
		case GradeNo:
			s.DocumentsGrade = GradeNo
		default:
			return s, workflow.StateError("unknown document grade %q", g)
		}
	}
	return s, nil
}

func containsDocument(docs []Document, d Document) bool {
	for _, have := range docs {
		if d.ID != "" && have.ID == d.ID {
			return true
		}
		if d.ID == "" && have.ID == "" && have.Content == d.Content {
			return true
		}
	}
	return false
}

func (n *nodes) rewriteQuestion(ctx context.Context, s *State, _ workflow.RunConfig) (*State, error) {
	rewritten, err := n.complete(ctx, s, n.opts.ReasoningModel, false,
		llm.SystemMessage(rewriterSystemPrompt),
		llm.UserMessage(fmt.Sprintf(rewriterUserPrompt, s.Question)))
	if err != nil {
		return s, err
	}
	if rewritten != "" {
		s.Query = rewritten
	}
	s.step(NodeRewriteQuestion)
	return s, nil
}

func (n *nodes) generate(ctx context.Context, s *State, _ workflow.RunConfig) (*State, error) {
	s.GenerationIteration++
	answer, err := n.complete(ctx, s, n.opts.LanguageModel, false,
		llm.UserMessage(fmt.Sprintf(answerPrompt, s.Question, joinContent(n.answerContext(s)))))
	if err != nil {
		return s, err
	}
	s.Generation = answer
	s.step(NodeGenerate)
	return s, nil
}

func (n *nodes) gradeHallucination(ctx context.Context, s *State, _ workflow.RunConfig) (*State, error) {
	g, err := n.grade(ctx, s, fmt.Sprintf(hallucinationGraderPrompt, joinContent(n.answerContext(s)), s.Generation))
	if err != nil {
		return s, err
	}
	s.HallucinationGrade = g
	s.step(NodeGradeHallucination)
	return s, nil
}

func (n *nodes) gradeAnswer(ctx context.Context, s *State, _ workflow.RunConfig) (*State, error) {
	g, err := n.grade(ctx, s, fmt.Sprintf(answerGraderPrompt, s.Generation, s.Question))
	if err != nil {
		return s, err
	}
	s.AnswerGrade = g
	s.step(NodeGradeAnswer)
	return s, nil
}

func reset(_ context.Context, s *State, _ workflow.RunConfig) (*State, error) {
	s.Generation = ResetGeneration
	s.step(NodeReset)
	return s, nil
}
