package middleware

import (
	"github.com/cloudwego/kitex/pkg/klog"
	"github.com/gin-gonic/gin"
	"github.com/robotslacker/testcli-sub000/pkg/util"
)

// TraceHeader 远端调用方把自己的trace信息放在这个header中
const TraceHeader = "X-Testcli-Trace"

func PrintGinHeader(c *gin.Context) {
	headers := c.Request.Header
	for key, values := range headers {
		for _, value := range values {
			klog.Tracef("%s: %s\n", key, value)
		}
	}
	c.Next()
}

// ExtractTrace 让handler中的ctx接上调用方的trace
func ExtractTrace(c *gin.Context) {
	if traceContext := c.GetHeader(TraceHeader); traceContext != "" {
		c.Request = c.Request.WithContext(util.String2TraceCtx(c.Request.Context(), traceContext))
	}
	c.Next()
}
