package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "interview"

	// SessionModulePrefix 面试会话模块
	SessionModulePrefix = "session"

	// EntityLock 分布式锁实体
	EntityLock = "lock"

	// KeySessionLock 会话轮次锁 (STRING)，同一会话同时只允许一个轮次在处理
	// 格式: interview:session:lock:{sessionID}
	KeySessionLock = AppPrefix + ":" + SessionModulePrefix + ":" + EntityLock + ":%s"
)
