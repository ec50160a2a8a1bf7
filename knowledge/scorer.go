package knowledge

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/kitadake/concierge/types"
)

// similarityMargin 实体特定查询下相似度压过重要度所需的差距。
// 实现上把相似度量化成 0.2 宽的档位: 同档比重要度, 跨档比相似度。
// 档位是逐元素的纯函数, 保证排序传递且可重入。
const similarityMargin = 0.2

// ====== 静态优先级表 ======

// categoryEntityPriority 把分类映射到期望实体的有序列表,
// 排前的实体优先。计价/营业时间类问题主设施优先于附属咖啡台。
var categoryEntityPriority = map[string][]string{
	types.CategoryPricing:    {types.EntityEngineerCafe, types.EntitySaino},
	types.CategoryHours:      {types.EntityEngineerCafe, types.EntitySaino},
	types.CategoryLocation:   {types.EntityEngineerCafe, types.EntitySaino},
	types.CategoryFacilities: {types.EntityEngineerCafe, types.EntityMeetingRoom2F, types.EntityMeetingRoomBasement, types.EntitySaino},

	types.CompoundCategory(types.EntityEngineerCafe, types.CategoryHours):   {types.EntityEngineerCafe},
	types.CompoundCategory(types.EntityEngineerCafe, types.CategoryPricing): {types.EntityEngineerCafe},
	types.CompoundCategory(types.EntitySaino, types.CategoryHours):          {types.EntitySaino},
	types.CompoundCategory(types.EntitySaino, types.CategoryPricing):        {types.EntitySaino},

	types.EntityEngineerCafe:        {types.EntityEngineerCafe},
	types.EntitySaino:               {types.EntitySaino},
	types.EntityMeetingRoom2F:       {types.EntityMeetingRoom2F},
	types.EntityMeetingRoomBasement: {types.EntityMeetingRoomBasement},
}

// entityAliases 实体在正文/查询里的书写变体, 用于包含匹配
var entityAliases = map[string][]string{
	types.EntityEngineerCafe:        {"エンジニアカフェ", "engineer cafe", "engineer café"},
	types.EntitySaino:               {"サイノ", "saino", "彩の"},
	types.EntityMeetingRoom2F:       {"2階", "２階", "2f", "second floor"},
	types.EntityMeetingRoomBasement: {"地下", "basement", "b1"},
}

// EntitySpecific 判断查询是否点名了某个已知实体。
// 点名实体的查询里, 相似度差距优先于重要度排名。
func EntitySpecific(query string) bool {
	q := strings.ToLower(query)
	for _, aliases := range entityAliases {
		for _, alias := range aliases {
			if strings.Contains(q, strings.ToLower(alias)) {
				return true
			}
		}
	}
	return false
}

// ====== 优先级重排 ======

// ScoreOptions 控制一次重排。
type ScoreOptions struct {
	// 原始查询文本, 用于字面命中与实体特定性判断
	Query string

	// 已分类的目标分类, 决定实体优先级表
	Category string

	// 是否按实体分桶(桶序优先于其余信号)
	GroupByEntity bool
}

// Scorer 按静态实体优先级、重要度与字面命中重排检索结果。
// 重排是幂等的: 对已排好的同一结果集再跑一次, 顺序不变。
type Scorer struct {
	logger *zap.Logger
}

// NewScorer 创建优先级重排器
func NewScorer(logger *zap.Logger) *Scorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scorer{
		logger: logger.With(zap.String("component", "priority_scorer")),
	}
}

// scoreKey 是每个结果的排序键, 只依赖结果自身与选项
type scoreKey struct {
	bucket     int
	simBand    int
	importance int
	substring  bool
	similarity float64
}

// Score 重排结果集并填充 PriorityScore 诊断值。原地排序后返回。
func (s *Scorer) Score(results []types.SearchResult, opts ScoreOptions) []types.SearchResult {
	if len(results) <= 1 {
		return results
	}

	priorities := categoryEntityPriority[opts.Category]
	entitySpecific := EntitySpecific(opts.Query)
	query := strings.ToLower(opts.Query)

	keys := make([]scoreKey, len(results))
	for i, res := range results {
		key := scoreKey{
			bucket:     len(priorities),
			importance: res.Entry.Importance.Rank(),
			substring:  query != "" && strings.Contains(strings.ToLower(res.Entry.Content), query),
			similarity: res.Similarity,
		}
		if opts.GroupByEntity {
			key.bucket = entityBucket(priorities, res.Entry)
		}
		if entitySpecific {
			key.simBand = int(res.Similarity / similarityMargin)
		}
		keys[i] = key
		results[i].PriorityScore = key.priority(len(priorities))
	}

	order := make([]int, len(results))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return keys[order[a]].less(keys[order[b]], opts.GroupByEntity, entitySpecific)
	})

	sorted := make([]types.SearchResult, len(results))
	for pos, idx := range order {
		sorted[pos] = results[idx]
	}
	copy(results, sorted)

	return results
}

// less 按 实体桶 → 相似度档位 → 重要度 → 字面命中 → 相似度 比较
func (k scoreKey) less(other scoreKey, grouped, entitySpecific bool) bool {
	if grouped && k.bucket != other.bucket {
		return k.bucket < other.bucket
	}
	if entitySpecific && k.simBand != other.simBand {
		return k.simBand > other.simBand
	}
	if k.importance != other.importance {
		return k.importance > other.importance
	}
	if k.substring != other.substring {
		return k.substring
	}
	return k.similarity > other.similarity
}

// priority 把排序键折叠成一个诊断分值, 仅用于观测, 不参与排序
func (k scoreKey) priority(buckets int) float64 {
	p := k.similarity
	if buckets > 0 && k.bucket < buckets {
		p += 0.1 * float64(buckets-k.bucket) / float64(buckets)
	}
	p += 0.05 * float64(k.importance) / 4
	if k.substring {
		p += 0.05
	}
	return p
}

// entityBucket 返回条目命中的最高优先实体序号, 未命中排到末尾
func entityBucket(priorities []string, e types.KnowledgeEntry) int {
	for i, entity := range priorities {
		if entityMatches(entity, e) {
			return i
		}
	}
	return len(priorities)
}

// entityMatches 通过分类字段或正文别名判断条目归属
func entityMatches(entity string, e types.KnowledgeEntry) bool {
	if e.Category == entity || e.Subcategory == entity {
		return true
	}
	if strings.HasPrefix(e.Category, entity+"-") {
		return true
	}
	content := strings.ToLower(e.Content)
	for _, alias := range entityAliases[entity] {
		if strings.Contains(content, strings.ToLower(alias)) {
			return true
		}
	}
	return false
}
