package conf

// SqliteConf 单机多进程场景下使用的协调存储，所有worker进程打开同一个文件
type SqliteConf struct {
	Path          string `yaml:"path" json:"path"`
	BusyTimeoutMs int    `yaml:"busyTimeoutMs" json:"busyTimeoutMs"`
}

var DevSqliteConfig = &SqliteConf{
	Path:          "testcli-jobs.db",
	BusyTimeoutMs: 5000,
}
