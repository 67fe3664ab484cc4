package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GenAIEngine generates embeddings using Google's Gemini API.
type GenAIEngine struct {
	client *genai.Client
	model  string
	dims   int
}

// NewGenAIEngine creates a new Gemini embedding engine.
func NewGenAIEngine(apiKey, model string, dims int) (*GenAIEngine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = "text-embedding-004"
	}
	if dims <= 0 {
		dims = 768
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GenAIEngine{
		client: client,
		model:  model,
		dims:   dims,
	}, nil
}

const (
	taskRetrievalDocument = "RETRIEVAL_DOCUMENT"
	taskRetrievalQuery    = "RETRIEVAL_QUERY"
)

func (e *GenAIEngine) embed(ctx context.Context, texts []string, task string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	result, err := e.client.Models.EmbedContent(ctx,
		e.model,
		contents,
		&genai.EmbedContentConfig{
			TaskType: task,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("genai embed failed: %w", err)
	}

	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("genai returned %d embeddings for %d texts", len(result.Embeddings), len(texts))
	}

	embeddings := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		if err := checkDims(emb.Values, e.dims, texts[i]); err != nil {
			return nil, err
		}
		embeddings[i] = emb.Values
	}
	return embeddings, nil
}

// EmbedDocument embeds stored memory text with the retrieval-document task.
func (e *GenAIEngine) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	out, err := e.embed(ctx, []string{text}, taskRetrievalDocument)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedQuery embeds a search query with the retrieval-query task.
func (e *GenAIEngine) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	out, err := e.embed(ctx, []string{text}, taskRetrievalQuery)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedDocumentBatch embeds multiple documents in one call. Gemini has
// native batch support.
func (e *GenAIEngine) EmbedDocumentBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return e.embed(ctx, texts, taskRetrievalDocument)
}

// Dimensions returns the dimensionality of embeddings.
func (e *GenAIEngine) Dimensions() int {
	return e.dims
}

// Name returns the engine name.
func (e *GenAIEngine) Name() string {
	return fmt.Sprintf("gemini:%s", e.model)
}
