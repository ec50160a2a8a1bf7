package knowledge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/kitadake/concierge/types"
)

// fakeCorpus 是测试用的存储替身, 记录调用参数与次数
type fakeCorpus struct {
	mu sync.Mutex

	similarResults []types.SearchResult
	similarErr     error
	entries        []types.KnowledgeEntry
	listErr        error
	listDelay      time.Duration

	similarCalls  int
	listCalls     int
	lastThreshold float64
	lastCount     int
}

func (f *fakeCorpus) SearchSimilar(ctx context.Context, embedding []float64, threshold float64, count int) ([]types.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.similarCalls++
	f.lastThreshold = threshold
	f.lastCount = count
	if f.similarErr != nil {
		return nil, f.similarErr
	}
	out := make([]types.SearchResult, 0, len(f.similarResults))
	for _, r := range f.similarResults {
		if r.Similarity >= threshold {
			out = append(out, r)
		}
	}
	if len(out) > count {
		out = out[:count]
	}
	return out, nil
}

func (f *fakeCorpus) ListEntries(ctx context.Context, language types.Language, category string) ([]types.KnowledgeEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listDelay > 0 {
		time.Sleep(f.listDelay)
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]types.KnowledgeEntry, 0, len(f.entries))
	for _, e := range f.entries {
		if language != "" && e.Language != language {
			continue
		}
		if category != "" && e.Category != category {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeCorpus) addEntry(e types.KnowledgeEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
}

func (f *fakeCorpus) counts() (similar, list int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.similarCalls, f.listCalls
}

func jaEntry(id, content, category string, embedding []float64) types.KnowledgeEntry {
	return types.KnowledgeEntry{
		ID:        id,
		Content:   content,
		Language:  types.LanguageJapanese,
		Category:  category,
		Embedding: embedding,
	}
}

func TestNewRetriever(t *testing.T) {
	_, err := NewRetriever(nil, DefaultRetrieverConfig(), zap.NewNop())
	assert.Error(t, err)

	r, err := NewRetriever(&fakeCorpus{}, RetrieverConfig{}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "v1", r.Name())
	// 零值配置回填默认值
	assert.Equal(t, DefaultRetrieverConfig().DefaultLimit, r.cfg.DefaultLimit)
}

func TestRetriever_EmptyEmbedding(t *testing.T) {
	r, err := NewRetriever(&fakeCorpus{}, DefaultRetrieverConfig(), zap.NewNop())
	require.NoError(t, err)

	_, err = r.Search(context.Background(), nil, SearchOptions{})
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))
}

func TestRetriever_AcceleratedPath(t *testing.T) {
	corpus := &fakeCorpus{
		similarResults: []types.SearchResult{
			{Entry: jaEntry("ja-hours", "営業時間は9時から", types.CategoryHours, nil), Similarity: 0.91},
			{Entry: types.KnowledgeEntry{ID: "en-hours", Content: "open from 9am", Language: types.LanguageEnglish, Category: types.CategoryHours}, Similarity: 0.88},
			{Entry: jaEntry("ja-wifi", "wifiは無料", types.CategoryWifi, nil), Similarity: 0.80},
			{Entry: jaEntry("ja-low", "低相似度", types.CategoryHours, nil), Similarity: 0.55},
		},
	}
	r, err := NewRetriever(corpus, DefaultRetrieverConfig(), zap.NewNop())
	require.NoError(t, err)

	results, err := r.Search(context.Background(), []float64{1, 0}, SearchOptions{
		Language:  types.LanguageJapanese,
		Category:  types.CategoryHours,
		Limit:     3,
		Threshold: 0.7,
	})
	require.NoError(t, err)

	// 语言与分类都在内存侧过滤, 英文条目和 wifi 条目被剔除
	require.Len(t, results, 1)
	assert.Equal(t, "ja-hours", results[0].Entry.ID)

	// 候选按 limit × k 放大
	assert.Equal(t, 3*DefaultRetrieverConfig().CandidateMultiplier, corpus.lastCount)

	similar, list := corpus.counts()
	assert.Equal(t, 1, similar)
	assert.Zero(t, list)
}

func TestRetriever_FallbackOnAcceleratedFailure(t *testing.T) {
	corpus := &fakeCorpus{
		similarErr: errors.New("operator does not exist: <=>"),
		entries: []types.KnowledgeEntry{
			jaEntry("match", "営業時間は9時から22時", types.CategoryHours, []float64{1, 0}),
			jaEntry("far", "全然関係ない内容", types.CategoryHours, []float64{0, 1}),
		},
	}
	r, err := NewRetriever(corpus, DefaultRetrieverConfig(), zap.NewNop())
	require.NoError(t, err)

	results, err := r.Search(context.Background(), []float64{1, 0}, SearchOptions{
		Language:  types.LanguageJapanese,
		Limit:     5,
		Threshold: 0.7,
	})
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "match", results[0].Entry.ID)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-9)

	_, list := corpus.counts()
	assert.Equal(t, 1, list)
}

func TestRetriever_BothPathsFail(t *testing.T) {
	corpus := &fakeCorpus{
		similarErr: errors.New("accelerated path down"),
		listErr:    errors.New("database down"),
	}
	r, err := NewRetriever(corpus, DefaultRetrieverConfig(), zap.NewNop())
	require.NoError(t, err)

	_, err = r.Search(context.Background(), []float64{1, 0}, SearchOptions{Limit: 3, Threshold: 0.5})
	assert.True(t, types.IsErrorCode(err, types.ErrRetrievalFailed))
}

func TestRetriever_EmptyResultIsNotAnError(t *testing.T) {
	corpus := &fakeCorpus{}
	r, err := NewRetriever(corpus, DefaultRetrieverConfig(), zap.NewNop())
	require.NoError(t, err)

	results, err := r.Search(context.Background(), []float64{1, 0}, SearchOptions{
		Language:  types.LanguageJapanese,
		Limit:     3,
		Threshold: 0.9,
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetriever_RetryWithLoweredThreshold(t *testing.T) {
	// 候选相似度 0.45: 首轮阈值 0.9 拿不到, 降到 0.4 后命中
	corpus := &fakeCorpus{
		similarResults: []types.SearchResult{
			{Entry: jaEntry("weak", "弱い一致", types.CategoryGeneral, nil), Similarity: 0.45},
		},
	}
	r, err := NewRetriever(corpus, DefaultRetrieverConfig(), zap.NewNop())
	require.NoError(t, err)

	results, err := r.Search(context.Background(), []float64{1, 0}, SearchOptions{
		Language:            types.LanguageJapanese,
		Limit:               3,
		Threshold:           0.9,
		RetryLowerThreshold: true,
	})
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "weak", results[0].Entry.ID)

	// 恰好两次: 原阈值一次 + 降阈值一次, 不再继续
	similar, _ := corpus.counts()
	assert.Equal(t, 2, similar)
	assert.InDelta(t, DefaultRetrieverConfig().RetryThreshold, corpus.lastThreshold, 1e-9)
}

func TestRetriever_NoRetryWhenDisabled(t *testing.T) {
	corpus := &fakeCorpus{
		similarResults: []types.SearchResult{
			{Entry: jaEntry("weak", "弱い一致", types.CategoryGeneral, nil), Similarity: 0.45},
		},
	}
	r, err := NewRetriever(corpus, DefaultRetrieverConfig(), zap.NewNop())
	require.NoError(t, err)

	results, err := r.Search(context.Background(), []float64{1, 0}, SearchOptions{
		Language:  types.LanguageJapanese,
		Limit:     3,
		Threshold: 0.9,
	})
	require.NoError(t, err)
	assert.Empty(t, results)

	similar, _ := corpus.counts()
	assert.Equal(t, 1, similar)
}

// Property: 返回的结果恒满足 similarity ≥ threshold
func TestRetriever_ThresholdInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		dims := 4
		entryCount := rapid.IntRange(0, 20).Draw(t, "entries")
		entries := make([]types.KnowledgeEntry, entryCount)
		for i := range entries {
			vec := rapid.SliceOfN(rapid.Float64Range(-1, 1), dims, dims).Draw(t, "vec")
			entries[i] = jaEntry(string(rune('a'+i)), "内容", types.CategoryGeneral, vec)
		}

		corpus := &fakeCorpus{
			similarErr: errors.New("force fallback"),
			entries:    entries,
		}
		r, err := NewRetriever(corpus, DefaultRetrieverConfig(), zap.NewNop())
		if err != nil {
			t.Fatal(err)
		}

		threshold := rapid.Float64Range(0.05, 0.99).Draw(t, "threshold")
		query := rapid.SliceOfN(rapid.Float64Range(-1, 1), dims, dims).Draw(t, "query")

		results, err := r.Search(context.Background(), query, SearchOptions{
			Language:  types.LanguageJapanese,
			Limit:     rapid.IntRange(1, 10).Draw(t, "limit"),
			Threshold: threshold,
		})
		if err != nil {
			t.Fatal(err)
		}
		for _, res := range results {
			if res.Similarity < threshold {
				t.Fatalf("result below threshold: %v < %v", res.Similarity, threshold)
			}
		}
	})
}

func TestCategoryMatches(t *testing.T) {
	hours := types.KnowledgeEntry{Category: types.CategoryHours}
	compound := types.KnowledgeEntry{Category: types.CompoundCategory(types.EntitySaino, types.CategoryHours)}
	split := types.KnowledgeEntry{Category: types.CategoryHours, Subcategory: types.EntitySaino}

	// 空分类与 general 不过滤
	assert.True(t, categoryMatches("", hours))
	assert.True(t, categoryMatches(types.CategoryGeneral, compound))

	// 精确与复合展开
	assert.True(t, categoryMatches(types.CategoryHours, hours))
	assert.True(t, categoryMatches(types.CategoryHours, compound))
	assert.True(t, categoryMatches(types.EntitySaino, compound))
	assert.True(t, categoryMatches("saino-hours", compound))
	assert.True(t, categoryMatches("saino-hours", split))
	assert.True(t, categoryMatches(types.CategoryHours, split))

	// 不相关分类
	assert.False(t, categoryMatches(types.CategoryPricing, hours))
	assert.False(t, categoryMatches(types.CategoryPricing, compound))
}
