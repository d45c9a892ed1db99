package embed

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ModelOpenAI3Small supports shortened output vectors.
const ModelOpenAI3Small = "text-embedding-3-small"

// OpenAI embeds text with the OpenAI embeddings API or any compatible
// endpoint.
type OpenAI struct {
	client openai.Client
	model  string
	dim    int
}

var _ Embedder = (*OpenAI)(nil)

// Option configures an OpenAI embedder.
type Option func(*openAIConfig)

type openAIConfig struct {
	model      string
	dim        int
	baseURL    string
	httpClient *http.Client
}

// WithModel sets the embedding model.
func WithModel(model string) Option {
	return func(c *openAIConfig) { c.model = model }
}

// WithDimension sets the output dimension.
func WithDimension(dim int) Option {
	return func(c *openAIConfig) { c.dim = dim }
}

// WithBaseURL points the client at a compatible endpoint.
func WithBaseURL(url string) Option {
	return func(c *openAIConfig) { c.baseURL = url }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *openAIConfig) { c.httpClient = hc }
}

// NewOpenAI returns an embedder using apiKey.
func NewOpenAI(apiKey string, opts ...Option) *OpenAI {
	cfg := openAIConfig{
		model:      ModelOpenAI3Small,
		dim:        DefaultDimension,
		httpClient: http.DefaultClient,
	}
	for _, o := range opts {
		o(&cfg)
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(cfg.httpClient),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	return &OpenAI{
		client: openai.NewClient(reqOpts...),
		model:  cfg.model,
		dim:    cfg.dim,
	}
}

func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model:          o.model,
		Input:          openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Dimensions:     openai.Int(int64(o.dim)),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embed: empty response")
	}
	src := resp.Data[0].Embedding
	if len(src) != o.dim {
		return nil, fmt.Errorf("embed: got %d dimensions, want %d", len(src), o.dim)
	}
	vec := make([]float32, len(src))
	for i, f := range src {
		vec[i] = float32(f)
	}
	return normalize(vec), nil
}

func (o *OpenAI) Dimension() int { return o.dim }

// Validate checks the API key by listing models.
func (o *OpenAI) Validate(ctx context.Context) error {
	if _, err := o.client.Models.List(ctx); err != nil {
		return fmt.Errorf("embed: validate api key: %w", err)
	}
	return nil
}
