package util

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

type MapCarrier map[string]string

func (mc MapCarrier) Get(key string) string {
	return mc[key]
}

func (mc MapCarrier) Set(key, value string) {
	mc[key] = value
}

func (mc MapCarrier) Keys() []string {
	keys := make([]string, 0, len(mc))
	for k := range mc {
		keys = append(keys, k)
	}
	return keys
}

// TraceCtx2String 把ctx中的trace信息编码成字符串，Agent通过环境变量交给worker进程
func TraceCtx2String(ctx context.Context) string {
	tmp := make(MapCarrier)
	otel.GetTextMapPropagator().Inject(ctx, tmp)
	if len(tmp) == 0 {
		return ""
	}
	b, err := json.Marshal(tmp)
	if err != nil {
		return ""
	}
	return string(b)
}

// String2TraceCtx 解不出来时返回parent本身
func String2TraceCtx(parent context.Context, traceContext string) context.Context {
	if traceContext == "" {
		return parent
	}
	var tmp MapCarrier
	if err := json.Unmarshal([]byte(traceContext), &tmp); err != nil {
		return parent
	}
	return otel.GetTextMapPropagator().Extract(parent, tmp)
}

func StartSpan(ctx context.Context, tracer trace.Tracer, name string) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name)
}
