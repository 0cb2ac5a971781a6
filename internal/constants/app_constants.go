package constants

const (
	// ExtractorVersion 写入归档对象元数据，便于之后重新提取
	ExtractorVersion = "1.0"

	// ResumeObjectPrefix MinIO 中简历归档的对象前缀
	ResumeObjectPrefix = "resume"
)

// 面试事件类型，同时作为 RabbitMQ 路由键
const (
	EventInterviewStarted       = "interview.started"
	EventInterviewTurnCompleted = "interview.turn_completed"
	EventInterviewTurnFailed    = "interview.turn_failed"
	EventReportGenerated        = "report.generated"
)
