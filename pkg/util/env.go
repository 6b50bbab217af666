package util

import "os"

// GetEnv 部署环境，决定默认配置
func GetEnv() string {
	if os.Getenv("TESTCLI_ENV") == "k8s" || os.Getenv("env") == "k8s" {
		return "k8s"
	}

	return "dev"
}
