package knowledge

import (
	"math"
	"sort"

	"github.com/kitadake/concierge/types"
)

// Cosine 计算两个向量的余弦相似度。
// 长度不一致或任一向量范数为零时返回 0, 避免除零。
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0.0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// sortBySimilarity 按相似度降序排序
func sortBySimilarity(results []types.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
}

// toFloat32 把 float64 向量转为 HNSW 图需要的 float32
func toFloat32(vec []float64) []float32 {
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(v)
	}
	return out
}
