package constance

const (
	ManagerServiceName = "testcli-job-manager"
)

// 由Agent拉起的worker进程，通过环境变量拿到自己的身份以及连接协调存储的方式
const (
	EnvJobIdentity    = "TESTCLI_JOB_IDENTITY"
	EnvJobLog         = "TESTCLI_JOB_LOG"
	EnvJobCredentials = "TESTCLI_JOB_CREDENTIALS"
	EnvJobCommandMap  = "TESTCLI_JOB_COMMAND_MAP"
	EnvJobStore       = "TESTCLI_JOB_STORE"
	EnvJobTrace       = "TESTCLI_JOB_TRACE"
)

type StoreType string

const (
	StoreTypeMysql  StoreType = "mysql"
	StoreTypeSqlite StoreType = "sqlite"
	StoreTypeMemory StoreType = "memory"
)

func (t StoreType) Valid() bool {
	switch t {
	case StoreTypeMysql, StoreTypeSqlite, StoreTypeMemory:
		return true
	default:
		return false
	}
}
