package intent

import "strings"

// ContextKeyHistoricalData 是上下文中历史数据标记的键名。
// 携带该键说明调用方提供了历史参考，可提升决策置信度。
const ContextKeyHistoricalData = "historical_data"

const (
	baseConfidence  = 0.70
	historicalBonus = 0.10
	lengthBonus     = 0.05
	emergencyBonus  = 0.10
	lengthThreshold = 10
)

// Scorer 为 (文本, 意图, 上下文) 三元组计算有界的置信度。
type Scorer struct{}

// NewScorer 创建置信度打分器。
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score 从基础分出发独立累加各项加成，最终裁剪到 [0, 1] 区间。
// 纯函数语义：无副作用，结果只取决于输入。
func (s *Scorer) Score(text string, it Intent, context map[string]any) float64 {
	confidence := baseConfidence

	if context != nil {
		if _, ok := context[ContextKeyHistoricalData]; ok {
			confidence += historicalBonus
		}
	}
	if len(strings.Fields(text)) > lengthThreshold {
		confidence += lengthBonus
	}
	if it == EmergencyResponse {
		confidence += emergencyBonus
	}

	return clamp(confidence)
}

func clamp(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
