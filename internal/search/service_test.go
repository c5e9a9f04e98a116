package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cherrors "github.com/ofriw/chunkhound-sub000/internal/errors"
	"github.com/ofriw/chunkhound-sub000/internal/model"
)

type fakeStoreEngine struct {
	regexRows       []model.SearchRow
	regexPagination model.Pagination
	regexErr        error
	gotPattern      string
	gotPageSize     int
	gotOffset       int
	gotPathFilter   string

	semanticRows       []model.SearchRow
	semanticPagination model.Pagination
	semanticErr        error
	gotQueryVec        []float32
	gotProvider        string
	gotModel           string
}

func (f *fakeStoreEngine) SearchRegex(pattern string, pageSize, offset int, rawPathFilter string) ([]model.SearchRow, model.Pagination, error) {
	f.gotPattern = pattern
	f.gotPageSize = pageSize
	f.gotOffset = offset
	f.gotPathFilter = rawPathFilter
	return f.regexRows, f.regexPagination, f.regexErr
}

func (f *fakeStoreEngine) SearchSemantic(queryVec []float32, provider, modelName string, pageSize, offset int, threshold *float64, rawPathFilter string) ([]model.SearchRow, model.Pagination, error) {
	f.gotQueryVec = queryVec
	f.gotProvider = provider
	f.gotModel = modelName
	f.gotPageSize = pageSize
	f.gotOffset = offset
	f.gotPathFilter = rawPathFilter
	return f.semanticRows, f.semanticPagination, f.semanticErr
}

type fakeEmbedder struct {
	vec      []float32
	err      error
	provider string
	model    string
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return f.vec, f.err
}

func (f *fakeEmbedder) Provider() string { return f.provider }
func (f *fakeEmbedder) ModelName() string { return f.model }

func TestService_Regex_EmptyPattern_ReturnsConfigError(t *testing.T) {
	svc := NewService(&fakeStoreEngine{}, nil)

	_, err := svc.Regex(context.Background(), RegexParams{Pattern: ""})

	require.Error(t, err)
	var chErr *cherrors.CHError
	require.ErrorAs(t, err, &chErr)
	assert.Equal(t, cherrors.KindConfig, chErr.Kind)
}

func TestService_Regex_ClampsPageSizeAndOffset(t *testing.T) {
	engine := &fakeStoreEngine{regexPagination: model.NewPagination(0, 10, 0, 0)}
	svc := NewService(engine, nil)

	_, err := svc.Regex(context.Background(), RegexParams{Pattern: "foo", PageSize: 10000, Offset: -5})

	require.NoError(t, err)
	assert.Equal(t, MaxPageSize, engine.gotPageSize)
	assert.Equal(t, 0, engine.gotOffset)
}

func TestService_Regex_DefaultsZeroPageSize(t *testing.T) {
	engine := &fakeStoreEngine{}
	svc := NewService(engine, nil)

	_, err := svc.Regex(context.Background(), RegexParams{Pattern: "foo", PageSize: 0})

	require.NoError(t, err)
	assert.Equal(t, DefaultPageSize, engine.gotPageSize)
}

func TestService_Regex_PropagatesRows(t *testing.T) {
	rows := []model.SearchRow{{ChunkID: 1, Symbol: "Foo", FilePath: "a.go"}}
	pagination := model.NewPagination(0, 10, 1, 1)
	engine := &fakeStoreEngine{regexRows: rows, regexPagination: pagination}
	svc := NewService(engine, nil)

	result, err := svc.Regex(context.Background(), RegexParams{Pattern: "Foo"})

	require.NoError(t, err)
	assert.Equal(t, rows, result.Rows)
	assert.Equal(t, pagination, result.Pagination)
}

func TestService_Regex_WrapsStoreError(t *testing.T) {
	engine := &fakeStoreEngine{regexErr: errors.New("boom")}
	svc := NewService(engine, nil)

	_, err := svc.Regex(context.Background(), RegexParams{Pattern: "foo"})

	require.Error(t, err)
	var chErr *cherrors.CHError
	require.ErrorAs(t, err, &chErr)
	assert.Equal(t, cherrors.KindStorage, chErr.Kind)
}

func TestService_Semantic_NoEmbedder_ReturnsConfigError(t *testing.T) {
	svc := NewService(&fakeStoreEngine{}, nil)

	_, err := svc.Semantic(context.Background(), SemanticParams{Query: "foo"})

	require.Error(t, err)
	var chErr *cherrors.CHError
	require.ErrorAs(t, err, &chErr)
	assert.Equal(t, cherrors.KindConfig, chErr.Kind)
	assert.False(t, svc.HasSemanticSearch())
}

func TestService_Semantic_EmptyQuery_ReturnsConfigError(t *testing.T) {
	svc := NewService(&fakeStoreEngine{}, &fakeEmbedder{})

	_, err := svc.Semantic(context.Background(), SemanticParams{Query: ""})

	require.Error(t, err)
	var chErr *cherrors.CHError
	require.ErrorAs(t, err, &chErr)
	assert.Equal(t, cherrors.KindConfig, chErr.Kind)
}

func TestService_Semantic_EmbedFailure_ReturnsEmbedError(t *testing.T) {
	embedder := &fakeEmbedder{err: errors.New("provider down")}
	svc := NewService(&fakeStoreEngine{}, embedder)

	_, err := svc.Semantic(context.Background(), SemanticParams{Query: "foo"})

	require.Error(t, err)
	var chErr *cherrors.CHError
	require.ErrorAs(t, err, &chErr)
	assert.Equal(t, cherrors.KindEmbed, chErr.Kind)
}

func TestService_Semantic_PassesEmbeddingAndProviderModel(t *testing.T) {
	engine := &fakeStoreEngine{}
	embedder := &fakeEmbedder{vec: []float32{0.1, 0.2, 0.3}, provider: "openai", model: "text-embedding-3-small"}
	svc := NewService(engine, embedder)

	_, err := svc.Semantic(context.Background(), SemanticParams{Query: "foo", PageSize: 5})

	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, engine.gotQueryVec)
	assert.Equal(t, "openai", engine.gotProvider)
	assert.Equal(t, "text-embedding-3-small", engine.gotModel)
	assert.Equal(t, 5, engine.gotPageSize)
	assert.True(t, svc.HasSemanticSearch())
}

func TestService_Semantic_WrapsStoreError(t *testing.T) {
	engine := &fakeStoreEngine{semanticErr: errors.New("boom")}
	embedder := &fakeEmbedder{vec: []float32{0.1}}
	svc := NewService(engine, embedder)

	_, err := svc.Semantic(context.Background(), SemanticParams{Query: "foo"})

	require.Error(t, err)
	var chErr *cherrors.CHError
	require.ErrorAs(t, err, &chErr)
	assert.Equal(t, cherrors.KindStorage, chErr.Kind)
}

func TestService_ConcurrentSearch_RunsBoth(t *testing.T) {
	regexRows := []model.SearchRow{{ChunkID: 1, FilePath: "a.go"}}
	semanticRows := []model.SearchRow{{ChunkID: 2, FilePath: "b.go"}}
	engine := &fakeStoreEngine{regexRows: regexRows, semanticRows: semanticRows}
	embedder := &fakeEmbedder{vec: []float32{0.1}}
	svc := NewService(engine, embedder)

	result, err := svc.ConcurrentSearch(context.Background(),
		&RegexParams{Pattern: "foo"},
		&SemanticParams{Query: "bar"},
	)

	require.NoError(t, err)
	assert.Equal(t, regexRows, result.Regex.Rows)
	assert.Equal(t, semanticRows, result.Semantic.Rows)
}

func TestService_ConcurrentSearch_SkipsNilParams(t *testing.T) {
	engine := &fakeStoreEngine{regexRows: []model.SearchRow{{ChunkID: 1}}}
	svc := NewService(engine, nil)

	result, err := svc.ConcurrentSearch(context.Background(), &RegexParams{Pattern: "foo"}, nil)

	require.NoError(t, err)
	assert.NotEmpty(t, result.Regex.Rows)
	assert.Empty(t, result.Semantic.Rows)
}

func TestService_ConcurrentSearch_PropagatesFailure(t *testing.T) {
	engine := &fakeStoreEngine{regexErr: errors.New("boom")}
	svc := NewService(engine, nil)

	_, err := svc.ConcurrentSearch(context.Background(), &RegexParams{Pattern: "foo"}, nil)

	require.Error(t, err)
}
