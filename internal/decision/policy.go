package decision

import (
	"fmt"
	"time"

	xerrors "github.com/raider-express-inc/RaiderBot-Production-sub000/internal/errors"
	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/intent"
)

// Policy 描述单个意图的处置策略，加载后不可变。
type Policy struct {
	ConfidenceThreshold float64       `json:"confidence_threshold" yaml:"confidence_threshold"`
	EscalationRequired  bool          `json:"escalation_required" yaml:"escalation_required"`
	ResponseTimeLimit   time.Duration `json:"response_time_limit" yaml:"response_time_limit"`
}

// PolicySet 按意图索引策略表。
type PolicySet map[intent.Intent]Policy

// FallbackIntent 是策略查找失败时使用的兜底意图。
// general_inquiry 没有独立策略行，沿用 fleet_management 的策略。
const FallbackIntent = intent.FleetManagement

// DefaultPolicies 返回内置的决策策略表。
func DefaultPolicies() PolicySet {
	return PolicySet{
		intent.EmergencyResponse: {
			ConfidenceThreshold: 0.85,
			EscalationRequired:  true,
			ResponseTimeLimit:   300 * time.Second,
		},
		intent.RouteOptimization: {
			ConfidenceThreshold: 0.75,
			EscalationRequired:  false,
			ResponseTimeLimit:   600 * time.Second,
		},
		intent.FleetManagement: {
			ConfidenceThreshold: 0.80,
			EscalationRequired:  false,
			ResponseTimeLimit:   900 * time.Second,
		},
		intent.MaintenanceScheduling: {
			ConfidenceThreshold: 0.70,
			EscalationRequired:  false,
			ResponseTimeLimit:   1800 * time.Second,
		},
		intent.CustomerService: {
			ConfidenceThreshold: 0.75,
			EscalationRequired:  true,
			ResponseTimeLimit:   600 * time.Second,
		},
	}
}

// Lookup 返回意图对应的策略，未注册的意图回退到兜底策略。
func (p PolicySet) Lookup(it intent.Intent) (Policy, bool) {
	if policy, ok := p[it]; ok {
		return policy, true
	}
	return p[FallbackIntent], false
}

// Validate 在启动阶段校验策略表的合法性。
func (p PolicySet) Validate() error {
	if len(p) == 0 {
		return xerrors.New(xerrors.CodeConfiguration, "策略表不能为空")
	}
	if _, ok := p[FallbackIntent]; !ok {
		return xerrors.New(xerrors.CodeConfiguration,
			fmt.Sprintf("策略表缺少兜底意图 %s", FallbackIntent))
	}
	for it, policy := range p {
		if !intent.IsValid(it) {
			return xerrors.New(xerrors.CodeConfiguration,
				fmt.Sprintf("策略表包含未知意图 %s", it))
		}
		if policy.ConfidenceThreshold < 0 || policy.ConfidenceThreshold > 1 {
			return xerrors.New(xerrors.CodeConfiguration,
				fmt.Sprintf("意图 %s 的置信度阈值 %v 超出 [0,1]", it, policy.ConfidenceThreshold))
		}
		if policy.ResponseTimeLimit <= 0 {
			return xerrors.New(xerrors.CodeConfiguration,
				fmt.Sprintf("意图 %s 的响应时限必须为正", it))
		}
	}
	return nil
}

// DefaultActions 返回各意图的静态推荐动作表。
// 与策略表保持同一维度，新增意图时需要同时补全两张表。
func DefaultActions() map[intent.Intent][]string {
	return map[intent.Intent][]string{
		intent.EmergencyResponse: {
			"Notify dispatch immediately",
			"Contact emergency services if needed",
			"Update fleet status",
			"Document incident details",
		},
		intent.RouteOptimization: {
			"Analyze traffic patterns",
			"Calculate fuel efficiency",
			"Update driver routes",
			"Monitor delivery times",
		},
		intent.FleetManagement: {
			"Check vehicle status",
			"Review driver assignments",
			"Update maintenance schedules",
			"Monitor performance metrics",
		},
		intent.MaintenanceScheduling: {
			"Review maintenance history",
			"Schedule service appointments",
			"Order required parts",
			"Update vehicle availability",
		},
		intent.CustomerService: {
			"Review customer history",
			"Prepare response templates",
			"Escalate if necessary",
			"Follow up on resolution",
		},
	}
}
