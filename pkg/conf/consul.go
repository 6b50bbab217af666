package conf

var DevConsulConfig = &ConsulConf{
	Host: "localhost",
	Port: 8500,
}

type ConsulConf struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
}
