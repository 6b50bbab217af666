package conf

var DevTraceConfig = &OTelConf{
	ExportEndpointHost: "localhost",
	ExportEndpointPort: "4317",
}

type OTelConf struct {
	EnableTrace        bool   `yaml:"enableTrace" json:"enableTrace"`
	EnableMetrics      bool   `yaml:"enableMetrics" json:"enableMetrics"`
	ExportEndpointHost string `yaml:"exportEndpointHost" json:"exportEndpointHost"`
	ExportEndpointPort string `yaml:"exportEndpointPort" json:"exportEndpointPort"`
}
