package trace

import (
	"context"
	"fmt"

	"github.com/cloudwego/kitex/pkg/klog"
	"github.com/robotslacker/testcli-sub000/pkg/conf"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Providers 持有初始化好的provider，进程退出前需要Shutdown把缓冲中的数据推出去
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
}

func (p *Providers) Shutdown(ctx context.Context) {
	if p == nil {
		return
	}
	if p.TracerProvider != nil {
		if err := p.TracerProvider.Shutdown(ctx); err != nil {
			klog.Warnf("shutdown tracer provider error:%v", err)
		}
	}
	if p.MeterProvider != nil {
		if err := p.MeterProvider.Shutdown(ctx); err != nil {
			klog.Warnf("shutdown meter provider error:%v", err)
		}
	}
}

func InitProvider(ctx context.Context, serviceName, instanceID string, oTelConf *conf.OTelConf) (*Providers, error) {
	endpoint := oTelConf.ExportEndpointHost + ":" + oTelConf.ExportEndpointPort
	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("service.instance.id", instanceID),
	)
	ret := new(Providers)

	if oTelConf.EnableTrace {
		exporter, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("create trace exporter error:%w", err)
		}
		ret.TracerProvider = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(ret.TracerProvider)
		otel.SetTextMapPropagator(propagation.TraceContext{})
	}

	if oTelConf.EnableMetrics {
		exporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(endpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			ret.Shutdown(ctx)
			return nil, fmt.Errorf("create metric exporter error:%w", err)
		}
		ret.MeterProvider = sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
			sdkmetric.WithResource(res),
		)
		otel.SetMeterProvider(ret.MeterProvider)
	}

	klog.Infof("init otel success with exporter address: %s, name:%s", endpoint, serviceName)
	return ret, nil
}
