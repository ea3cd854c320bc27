package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

// Provider configuration
const (
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"

	// Environment variables
	EnvProvider     = "CPPGRAPH_EMBEDDING_PROVIDER"
	EnvJinaAPIKey   = "JINA_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"

	// Default models
	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultLocalModel  = "local-hash-v1"

	// Endpoints
	JinaEndpoint   = "https://api.jina.ai/v1/embeddings"
	OpenAIEndpoint = "https://api.openai.com/v1/embeddings"

	// Dimensions
	JinaDimension   = 1024
	OpenAIDimension = 1536
	LocalDimension  = 384

	// MaxBatchSize is the most texts sent in one API request
	MaxBatchSize = 100

	// Retry configuration
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0

	DefaultTimeout = 30 * time.Second
)

// ProviderOption configures a provider
type ProviderOption func(*providerOptions)

type providerOptions struct {
	endpoint  string
	model     string
	dimension int
	timeout   time.Duration
	retry     RetryConfig
	logger    *zap.Logger
}

func defaultProviderOptions() providerOptions {
	return providerOptions{
		timeout: DefaultTimeout,
		retry:   DefaultRetryConfig(),
		logger:  zap.NewNop(),
	}
}

// WithEndpoint overrides the embeddings endpoint URL
func WithEndpoint(url string) ProviderOption {
	return func(o *providerOptions) { o.endpoint = url }
}

// WithModel overrides the provider's default model
func WithModel(model string) ProviderOption {
	return func(o *providerOptions) {
		if model != "" {
			o.model = model
		}
	}
}

// WithDimension requests vectors of the given width
func WithDimension(d int) ProviderOption {
	return func(o *providerOptions) {
		if d > 0 {
			o.dimension = d
		}
	}
}

// WithTimeout sets the HTTP client timeout
func WithTimeout(d time.Duration) ProviderOption {
	return func(o *providerOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithRetryConfig replaces the default backoff settings
func WithRetryConfig(cfg RetryConfig) ProviderOption {
	return func(o *providerOptions) { o.retry = cfg }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) ProviderOption {
	return func(o *providerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// RemoteProvider implements Embedder against an OpenAI-compatible
// embeddings endpoint. Jina and OpenAI share the request format.
type RemoteProvider struct {
	name             string
	endpoint         string
	apiKey           string
	model            string
	dimension        int
	defaultDimension int
	httpClient       *http.Client
	cache            *Cache
	retry            RetryConfig
	logger           *zap.Logger
}

// NewJinaProvider creates a new Jina AI embedder
func NewJinaProvider(apiKey string, cache *Cache, opts ...ProviderOption) (*RemoteProvider, error) {
	return newRemoteProvider(ProviderJina, EnvJinaAPIKey, JinaEndpoint, DefaultJinaModel, JinaDimension, apiKey, cache, opts)
}

// NewOpenAIProvider creates a new OpenAI embedder
func NewOpenAIProvider(apiKey string, cache *Cache, opts ...ProviderOption) (*RemoteProvider, error) {
	return newRemoteProvider(ProviderOpenAI, EnvOpenAIAPIKey, OpenAIEndpoint, DefaultOpenAIModel, OpenAIDimension, apiKey, cache, opts)
}

func newRemoteProvider(name, keyEnv, endpoint, model string, dimension int, apiKey string, cache *Cache, opts []ProviderOption) (*RemoteProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv(keyEnv)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, keyEnv)
	}

	o := defaultProviderOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.endpoint != "" {
		endpoint = o.endpoint
	}
	if o.model != "" {
		model = o.model
	}
	defaultDimension := dimension
	if o.dimension > 0 {
		dimension = o.dimension
	}

	return &RemoteProvider{
		name:             name,
		endpoint:         endpoint,
		apiKey:           apiKey,
		model:            model,
		dimension:        dimension,
		defaultDimension: defaultDimension,
		httpClient:       &http.Client{Timeout: o.timeout},
		cache:            cache,
		retry:            o.retry,
		logger:           o.logger.With(zap.String("provider", name)),
	}, nil
}

func (p *RemoteProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	resp, err := p.GenerateBatch(ctx, BatchEmbeddingRequest{
		Texts: []string{req.Text},
		Model: req.Model,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", ErrProviderFailed)
	}

	return resp.Embeddings[0], nil
}

// GenerateBatch embeds every text, serving cache hits locally and sending
// the rest in requests of at most MaxBatchSize texts
func (p *RemoteProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = p.model
	}

	embeddings := make([]*Embedding, len(req.Texts))
	hashes := make([]string, len(req.Texts))
	missing := make([]int, 0, len(req.Texts))
	for i, text := range req.Texts {
		hashes[i] = ComputeHash(text)
		if p.cache != nil {
			if emb, ok := p.cache.Get(hashes[i]); ok {
				embeddings[i] = emb
				continue
			}
		}
		missing = append(missing, i)
	}

	for start := 0; start < len(missing); start += MaxBatchSize {
		end := min(start+MaxBatchSize, len(missing))
		idx := missing[start:end]

		texts := make([]string, len(idx))
		for j, i := range idx {
			texts[j] = req.Texts[i]
		}

		batch, err := retryWithBackoff(ctx, p.retry, func() ([]*Embedding, error) {
			return p.callAPI(ctx, texts, model)
		})
		if err != nil {
			p.logger.Warn("embedding request failed",
				zap.Int("texts", len(texts)),
				zap.Error(err))
			return nil, fmt.Errorf("%w: %s: %w", ErrProviderFailed, p.name, err)
		}

		for j, i := range idx {
			emb := batch[j]
			emb.Hash = hashes[i]
			if p.cache != nil {
				p.cache.Set(emb.Hash, emb)
			}
			embeddings[i] = emb
		}
	}

	p.logger.Debug("embedded batch",
		zap.Int("texts", len(req.Texts)),
		zap.Int("cache_hits", len(req.Texts)-len(missing)))

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   p.name,
		Model:      model,
	}, nil
}

// APIError is a non-200 response from the embeddings endpoint
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the request may succeed if repeated
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func (p *RemoteProvider) callAPI(ctx context.Context, texts []string, model string) ([]*Embedding, error) {
	reqBody := map[string]interface{}{
		"input": texts,
		"model": model,
	}
	if p.dimension != p.defaultDimension {
		reqBody["dimensions"] = p.dimension
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Model string `json:"model"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(apiResp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(apiResp.Data))
	}
	sort.SliceStable(apiResp.Data, func(i, j int) bool {
		return apiResp.Data[i].Index < apiResp.Data[j].Index
	})

	respModel := apiResp.Model
	if respModel == "" {
		respModel = model
	}

	embeddings := make([]*Embedding, len(apiResp.Data))
	for i, data := range apiResp.Data {
		emb := &Embedding{
			Vector:    data.Embedding,
			Dimension: len(data.Embedding),
			Provider:  p.name,
			Model:     respModel,
		}
		if err := CheckDimension(emb, p.dimension); err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}

	return embeddings, nil
}

func (p *RemoteProvider) Dimension() int {
	return p.dimension
}

func (p *RemoteProvider) Provider() string {
	return p.name
}

func (p *RemoteProvider) Model() string {
	return p.model
}

func (p *RemoteProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

// LocalProvider embeds text offline by hashing identifier tokens into a
// fixed number of buckets. Texts sharing vocabulary land near each other.
type LocalProvider struct {
	model     string
	dimension int
	cache     *Cache
}

// NewLocalProvider creates a new local embedder
func NewLocalProvider(cache *Cache, opts ...ProviderOption) (*LocalProvider, error) {
	o := defaultProviderOptions()
	o.dimension = LocalDimension
	o.model = DefaultLocalModel
	for _, opt := range opts {
		opt(&o)
	}

	return &LocalProvider{
		model:     o.model,
		dimension: o.dimension,
		cache:     cache,
	}, nil
}

func (l *LocalProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hash := ComputeHash(req.Text)
	if l.cache != nil {
		if emb, ok := l.cache.Get(hash); ok {
			return emb, nil
		}
	}

	emb := &Embedding{
		Vector:    hashVector(req.Text, l.dimension),
		Dimension: l.dimension,
		Provider:  ProviderLocal,
		Model:     l.model,
		Hash:      hash,
	}

	if l.cache != nil {
		l.cache.Set(hash, emb)
	}

	return emb, nil
}

func (l *LocalProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	embeddings := make([]*Embedding, len(req.Texts))
	for i, text := range req.Texts {
		emb, err := l.GenerateEmbedding(ctx, EmbeddingRequest{Text: text, Model: req.Model})
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		embeddings[i] = emb
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderLocal,
		Model:      l.model,
	}, nil
}

func (l *LocalProvider) Dimension() int {
	return l.dimension
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return l.model
}

func (l *LocalProvider) Close() error {
	return nil
}

// hashVector builds a unit vector from signed token hashes. Text without
// identifier tokens hashes as a whole.
func hashVector(text string, dimension int) []float32 {
	vector := make([]float32, dimension)
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		tokens = []string{text}
	}

	for _, tok := range tokens {
		h := xxhash.Sum64String(tok)
		bucket := h % uint64(dimension)
		if h>>63 == 0 {
			vector[bucket]++
		} else {
			vector[bucket]--
		}
	}

	normalized := NormalizeVector(vector)
	if isZero(normalized) {
		// every token cancelled out
		normalized[xxhash.Sum64String(text)%uint64(dimension)] = 1
	}
	return normalized
}

// Tokenize splits text into lower-cased identifier words, breaking
// snake_case and camelCase apart
func Tokenize(text string) []string {
	var tokens []string
	var word []rune

	flush := func() {
		if len(word) > 0 {
			tokens = append(tokens, strings.ToLower(string(word)))
			word = word[:0]
		}
	}

	runes := []rune(text)
	for i, r := range runes {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if unicode.IsUpper(r) && len(word) > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					flush()
				}
			}
			word = append(word, r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// NormalizeVector normalizes a vector to unit length (for cosine similarity)
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}

	result := make([]float32, len(v))
	if sum == 0 {
		return result
	}

	norm := float32(math.Sqrt(sum))
	for i, val := range v {
		result[i] = val / norm
	}

	return result
}
