package intent

// Intent 表示一条运营请求的规范化意图类别。
type Intent string

// 系统支持的意图集合，顺序与匹配优先级无关，优先级由规则表决定。
const (
	EmergencyResponse     Intent = "emergency_response"
	RouteOptimization     Intent = "route_optimization"
	FleetManagement       Intent = "fleet_management"
	MaintenanceScheduling Intent = "maintenance_scheduling"
	CustomerService       Intent = "customer_service"
	GeneralInquiry        Intent = "general_inquiry"
)

// IsValid 检查给定的意图是否为支持的枚举值。
func IsValid(it Intent) bool {
	switch it {
	case EmergencyResponse, RouteOptimization, FleetManagement,
		MaintenanceScheduling, CustomerService, GeneralInquiry:
		return true
	default:
		return false
	}
}
