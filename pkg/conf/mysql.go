package conf

type MysqlConf struct {
	Host               string `yaml:"host" json:"host"`
	Port               string `yaml:"port" json:"port"`
	UserName           string `yaml:"userName" json:"userName"`
	Password           string `yaml:"password" json:"password"`
	DbName             string `yaml:"dbName" json:"dbName"`
	MaxIdleConnections int    `yaml:"maxIdleConnections" json:"maxIdleConnections"`
	MaxOpenConnections int    `yaml:"maxOpenConnections" json:"maxOpenConnections"`
}

var DevMysqlConfig = &MysqlConf{
	Host:               "localhost",
	Port:               "3306",
	UserName:           "root",
	Password:           "password",
	DbName:             "testcli",
	MaxIdleConnections: 4,
	MaxOpenConnections: 16,
}
