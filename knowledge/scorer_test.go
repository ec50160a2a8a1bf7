package knowledge

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/kitadake/concierge/types"
)

func mkResult(id, content, category, subcategory string, imp types.Importance, sim float64) types.SearchResult {
	return types.SearchResult{
		Entry: types.KnowledgeEntry{
			ID:          id,
			Content:     content,
			Language:    types.LanguageJapanese,
			Category:    category,
			Subcategory: subcategory,
			Importance:  imp,
		},
		Similarity: sim,
	}
}

func resultIDs(results []types.SearchResult) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.Entry.ID
	}
	return ids
}

func TestScorer_SimilarityOrderByDefault(t *testing.T) {
	s := NewScorer(zap.NewNop())

	results := []types.SearchResult{
		mkResult("low", "営業案内", types.CategoryHours, "", types.ImportanceUnspecified, 0.61),
		mkResult("high", "営業時間の詳細", types.CategoryHours, "", types.ImportanceUnspecified, 0.93),
		mkResult("mid", "開館時間", types.CategoryHours, "", types.ImportanceUnspecified, 0.75),
	}

	scored := s.Score(results, ScoreOptions{Category: types.CategoryHours})
	assert.Equal(t, []string{"high", "mid", "low"}, resultIDs(scored))
}

func TestScorer_ImportanceBeatsSimilarity(t *testing.T) {
	s := NewScorer(zap.NewNop())

	// 非实体特定查询: 重要度优先于相似度
	results := []types.SearchResult{
		mkResult("plain", "休館日のお知らせ", types.CategoryHours, "", types.ImportanceUnspecified, 0.92),
		mkResult("critical", "営業時間は9時から22時", types.CategoryHours, "", types.ImportanceCritical, 0.70),
	}

	scored := s.Score(results, ScoreOptions{Query: "営業時間", Category: types.CategoryHours})
	assert.Equal(t, []string{"critical", "plain"}, resultIDs(scored))
}

func TestScorer_SubstringBoostBreaksImportanceTie(t *testing.T) {
	s := NewScorer(zap.NewNop())

	results := []types.SearchResult{
		mkResult("nomatch", "施設の案内図", types.CategoryFacilities, "", types.ImportanceHigh, 0.80),
		mkResult("verbatim", "プリンターは2階にあります", types.CategoryFacilities, "", types.ImportanceHigh, 0.78),
	}

	scored := s.Score(results, ScoreOptions{Query: "プリンター", Category: types.CategoryFacilities})
	assert.Equal(t, []string{"verbatim", "nomatch"}, resultIDs(scored))
}

func TestScorer_EntityBucketsWhenGrouped(t *testing.T) {
	s := NewScorer(zap.NewNop())

	// 计价类: 主设施桶排在附属咖啡台前, 桶序压过相似度
	results := []types.SearchResult{
		mkResult("saino", "サイノのドリンク料金", types.CategoryPricing, types.EntitySaino, types.ImportanceUnspecified, 0.90),
		mkResult("cafe", "エンジニアカフェの利用は無料です", types.CategoryPricing, types.EntityEngineerCafe, types.ImportanceUnspecified, 0.72),
	}

	grouped := s.Score(results, ScoreOptions{Query: "料金", Category: types.CategoryPricing, GroupByEntity: true})
	assert.Equal(t, []string{"cafe", "saino"}, resultIDs(grouped))

	// 不分桶时回到相似度顺序
	plain := []types.SearchResult{
		mkResult("saino", "サイノのドリンク料金", types.CategoryPricing, types.EntitySaino, types.ImportanceUnspecified, 0.90),
		mkResult("cafe", "エンジニアカフェの利用は無料です", types.CategoryPricing, types.EntityEngineerCafe, types.ImportanceUnspecified, 0.72),
	}
	ungrouped := s.Score(plain, ScoreOptions{Query: "料金", Category: types.CategoryPricing})
	assert.Equal(t, []string{"saino", "cafe"}, resultIDs(ungrouped))
}

func TestScorer_EntitySpecificSimilarityOverridesImportance(t *testing.T) {
	s := NewScorer(zap.NewNop())

	// 查询点名サイノ: 相似度差距超过档位宽度时压过重要度
	results := []types.SearchResult{
		mkResult("generic", "エンジニアカフェ全体の案内", types.CategoryPricing, "", types.ImportanceCritical, 0.45),
		mkResult("specific", "サイノのコーヒーは400円", types.CategoryPricing, types.EntitySaino, types.ImportanceUnspecified, 0.88),
	}

	scored := s.Score(results, ScoreOptions{Query: "サイノの料金は？", Category: types.CategoryPricing})
	assert.Equal(t, []string{"specific", "generic"}, resultIDs(scored))

	// 同样的结果集, 通用查询下重要度仍占优
	again := []types.SearchResult{
		mkResult("generic", "エンジニアカフェ全体の案内", types.CategoryPricing, "", types.ImportanceCritical, 0.45),
		mkResult("specific", "サイノのコーヒーは400円", types.CategoryPricing, types.EntitySaino, types.ImportanceUnspecified, 0.88),
	}
	scored = s.Score(again, ScoreOptions{Query: "料金を教えて", Category: types.CategoryPricing})
	assert.Equal(t, []string{"generic", "specific"}, resultIDs(scored))
}

func TestScorer_FillsPriorityScore(t *testing.T) {
	s := NewScorer(zap.NewNop())

	results := []types.SearchResult{
		mkResult("a", "営業時間は9時から", types.CategoryHours, "", types.ImportanceHigh, 0.8),
		mkResult("b", "その他の案内", types.CategoryHours, "", types.ImportanceUnspecified, 0.6),
	}

	scored := s.Score(results, ScoreOptions{Query: "営業時間", Category: types.CategoryHours})
	for _, r := range scored {
		assert.Greater(t, r.PriorityScore, 0.0)
	}
	assert.Greater(t, scored[0].PriorityScore, scored[1].PriorityScore)
}

func TestScorer_EmptyAndSingle(t *testing.T) {
	s := NewScorer(zap.NewNop())

	assert.Empty(t, s.Score(nil, ScoreOptions{}))

	one := []types.SearchResult{mkResult("only", "内容", types.CategoryGeneral, "", types.ImportanceLow, 0.5)}
	assert.Equal(t, []string{"only"}, resultIDs(s.Score(one, ScoreOptions{})))
}

func TestEntitySpecific(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"サイノの料金は？", true},
		{"エンジニアカフェの営業時間", true},
		{"engineer cafe hours", true},
		{"2階の会議室を予約したい", true},
		{"営業時間は？", false},
		{"wifiのパスワード", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, EntitySpecific(tt.query))
		})
	}
}

// Property: 重排是幂等的, 对已排好的结果集再跑一次顺序不变
func TestProperty_ScorerIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	importances := []types.Importance{
		types.ImportanceCritical,
		types.ImportanceHigh,
		types.ImportanceMedium,
		types.ImportanceLow,
		types.ImportanceUnspecified,
	}
	contents := []string{
		"エンジニアカフェの営業時間は9時から22時",
		"サイノのコーヒーは400円",
		"2階の会議室は予約制",
		"地下の会議室は防音",
		"wifiは無料で使えます",
	}

	properties.Property("rescoring a scored set preserves order", prop.ForAll(
		func(sims []float64, impIdx []int, query string, grouped bool) bool {
			n := len(sims)
			if len(impIdx) < n {
				n = len(impIdx)
			}
			results := make([]types.SearchResult, n)
			for i := 0; i < n; i++ {
				results[i] = mkResult(
					string(rune('a'+i)),
					contents[i%len(contents)],
					types.CategoryPricing,
					"",
					importances[impIdx[i]%len(importances)],
					sims[i],
				)
			}

			s := NewScorer(zap.NewNop())
			opts := ScoreOptions{Query: query, Category: types.CategoryPricing, GroupByEntity: grouped}

			once := s.Score(results, opts)
			first := resultIDs(once)
			twice := s.Score(once, opts)
			second := resultIDs(twice)

			if len(first) != len(second) {
				return false
			}
			for i := range first {
				if first[i] != second[i] {
					t.Logf("order changed at %d: %v vs %v", i, first, second)
					return false
				}
			}
			return true
		},
		gen.SliceOfN(8, gen.Float64Range(0, 1)),
		gen.SliceOfN(8, gen.IntRange(0, 4)),
		gen.OneConstOf("サイノの料金は？", "料金を教えて", "営業時間", ""),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
