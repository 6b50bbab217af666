package process_operator

// LaunchSpec 拉起一个worker进程需要的全部信息
type LaunchSpec struct {
	ScriptPath    string
	IdentityLabel string
	LogPath       string            //为空时输出只保留在内存的尾部缓冲中
	Credentials   string            //原样交给子进程
	CommandMap    map[string]string //编码为json交给子进程
	Store         string            //子进程连回协调存储的配置，为空时子进程不能使用timer point
	TraceContext  string
}

// Launcher Agent只负责拉起和监督进程，从不在自己的goroutine里执行脚本内容
type Launcher interface {
	Launch(spec *LaunchSpec) (int, error)
	// Status 进程已经结束时alive为false，exitCode为退出码；不是本Launcher拉起的进程拿不到退出码
	Status(pid int) (alive bool, exitCode int)
	// Output 进程输出的尾部
	Output(pid int) string
	// Terminate 强制结束进程所在的整个进程组
	Terminate(pid int) error
	// Release 归档之后释放该进程的记录
	Release(pid int)
}
