package output

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"edrwatch/config"
	"edrwatch/logger"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	otelLog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
)

type otelLogger struct {
	provider *sdklog.LoggerProvider
	logger   otelLog.Logger
	timeout  time.Duration
	endpoint string
	policy   otelPolicy
}

// otelPolicy controls which host-identifying fields leave the machine.
type otelPolicy struct {
	includePaths bool
}

func newOtelLogger(cfg *config.Config) (*otelLogger, error) {
	if cfg == nil {
		return nil, nil
	}
	endpoint := resolveOtelEndpoint(cfg)
	if endpoint == "" {
		return nil, nil
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return nil, fmt.Errorf("otel endpoint must include scheme (http or https)")
	}

	opts := []otlploghttp.Option{otlploghttp.WithEndpointURL(endpoint)}
	if len(cfg.OtelHeaders) > 0 {
		opts = append(opts, otlploghttp.WithHeaders(cfg.OtelHeaders))
	}
	if cfg.OtelTimeout > 0 {
		opts = append(opts, otlploghttp.WithTimeout(cfg.OtelTimeout))
	}

	exp, err := otlploghttp.New(context.Background(), opts...)
	if err != nil {
		return nil, err
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(cfg.OtelServiceName),
	)
	provider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)),
		sdklog.WithResource(res),
	)

	return &otelLogger{
		provider: provider,
		logger:   provider.Logger("edrwatch"),
		timeout:  cfg.OtelTimeout,
		endpoint: endpoint,
		policy: otelPolicy{
			includePaths: cfg.OtelExportPaths,
		},
	}, nil
}

func resolveOtelEndpoint(cfg *config.Config) string {
	if cfg == nil {
		return ""
	}
	if endpoint := strings.TrimSpace(cfg.OtelEndpoint); endpoint != "" {
		return endpoint
	}
	if !cfg.OtelFromEnv {
		return ""
	}
	if endpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_LOGS_ENDPOINT")); endpoint != "" {
		return endpoint
	}
	return strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
}

func (o *otelLogger) Endpoint() string {
	if o == nil {
		return ""
	}
	return o.endpoint
}

func (o *otelLogger) Emit(recordType string, payload interface{}) {
	if o == nil || o.logger == nil {
		return
	}
	safePayload := sanitizePayload(recordType, payload, o.policy)

	var rec otelLog.Record
	rec.SetTimestamp(time.Now())
	rec.SetObservedTimestamp(time.Now())
	rec.SetEventName("edrwatch." + recordType)
	rec.AddAttributes(
		otelLog.String("record_type", recordType),
		otelLog.String("schema_version", SchemaVersion),
	)
	if attrs := semanticAttributes(recordType, safePayload, o.policy); len(attrs) > 0 {
		rec.AddAttributes(attrs...)
	}

	value := toLogValue(safePayload)
	if value.Kind() == otelLog.KindEmpty {
		if data, err := json.Marshal(safePayload); err == nil {
			var decoded interface{}
			if err := json.Unmarshal(data, &decoded); err == nil {
				decodedValue := toLogValue(decoded)
				if decodedValue.Kind() != otelLog.KindEmpty {
					rec.SetBody(decodedValue)
				} else {
					rec.SetBody(otelLog.StringValue(string(data)))
				}
			} else {
				rec.SetBody(otelLog.StringValue(string(data)))
			}
		}
	} else {
		rec.SetBody(value)
	}

	o.logger.Emit(context.Background(), rec)
}

func (o *otelLogger) Shutdown() {
	if o == nil || o.provider == nil {
		return
	}
	timeout := o.timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := o.provider.Shutdown(ctx); err != nil {
		logger.Debugf("OTEL shutdown failed: %v", err)
	}
}

func sanitizePayload(recordType string, payload interface{}, policy otelPolicy) interface{} {
	if policy.includePaths {
		return payload
	}
	data := payloadToMap(payload)
	if len(data) == 0 {
		return payload
	}

	switch recordType {
	case "alert":
		sanitized := cloneMap(data)
		delete(sanitized, "path")
		return sanitized
	case "host":
		sanitized := cloneMap(data)
		delete(sanitized, "network_interfaces")
		delete(sanitized, "trusted_processes")
		addSliceCount(sanitized, "network_interfaces_count", getFieldValue(data, "network_interfaces"))
		addSliceCount(sanitized, "trusted_processes_count", getFieldValue(data, "trusted_processes"))
		return sanitized
	default:
		return payload
	}
}

func addSliceCount(dst map[string]interface{}, key string, value interface{}) {
	if count, ok := valueCount(value); ok {
		dst[key] = count
	}
}

func valueCount(value interface{}) (int, bool) {
	switch v := value.(type) {
	case []interface{}:
		return len(v), true
	case []string:
		return len(v), true
	case []map[string]interface{}:
		return len(v), true
	default:
		return 0, false
	}
}

func cloneMap(src map[string]interface{}) map[string]interface{} {
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func toLogValue(value interface{}) otelLog.Value {
	switch v := value.(type) {
	case nil:
		return otelLog.Value{}
	case string:
		return otelLog.StringValue(v)
	case []byte:
		return otelLog.BytesValue(v)
	case bool:
		return otelLog.BoolValue(v)
	case int:
		return otelLog.IntValue(v)
	case int64:
		return otelLog.Int64Value(v)
	case float64:
		return otelLog.Float64Value(v)
	case float32:
		return otelLog.Float64Value(float64(v))
	case map[string]interface{}:
		return otelLog.MapValue(toLogKeyValues(v)...)
	case map[string]string:
		kvs := make([]otelLog.KeyValue, 0, len(v))
		for k, val := range v {
			kvs = append(kvs, otelLog.String(k, val))
		}
		return otelLog.MapValue(kvs...)
	case []string:
		values := make([]otelLog.Value, 0, len(v))
		for _, item := range v {
			values = append(values, otelLog.StringValue(item))
		}
		return otelLog.SliceValue(values...)
	case []int:
		values := make([]otelLog.Value, 0, len(v))
		for _, item := range v {
			values = append(values, otelLog.IntValue(item))
		}
		return otelLog.SliceValue(values...)
	case []int64:
		values := make([]otelLog.Value, 0, len(v))
		for _, item := range v {
			values = append(values, otelLog.Int64Value(item))
		}
		return otelLog.SliceValue(values...)
	case []float64:
		values := make([]otelLog.Value, 0, len(v))
		for _, item := range v {
			values = append(values, otelLog.Float64Value(item))
		}
		return otelLog.SliceValue(values...)
	case []bool:
		values := make([]otelLog.Value, 0, len(v))
		for _, item := range v {
			values = append(values, otelLog.BoolValue(item))
		}
		return otelLog.SliceValue(values...)
	case []interface{}:
		values := make([]otelLog.Value, 0, len(v))
		for _, item := range v {
			values = append(values, toLogValue(item))
		}
		return otelLog.SliceValue(values...)
	default:
		_ = v
		return otelLog.Value{}
	}
}

func toLogKeyValues(values map[string]interface{}) []otelLog.KeyValue {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	kvs := make([]otelLog.KeyValue, 0, len(values))
	for _, key := range keys {
		kvs = append(kvs, otelLog.KeyValue{Key: key, Value: toLogValue(values[key])})
	}
	return kvs
}

func semanticAttributes(recordType string, payload interface{}, policy otelPolicy) []otelLog.KeyValue {
	data := payloadToMap(payload)
	if len(data) == 0 {
		return nil
	}

	switch recordType {
	case "alert":
		return alertSemanticAttributes(data, policy)
	case "host":
		return hostSemanticAttributes(data)
	case "metrics":
		return metricsSemanticAttributes(data)
	default:
		return nil
	}
}

func alertSemanticAttributes(data map[string]interface{}, policy otelPolicy) []otelLog.KeyValue {
	var kvs []otelLog.KeyValue

	path := getStringField(data, "path")
	if path != "" {
		if policy.includePaths {
			kvs = append(kvs, otelLog.String(string(semconv.FilePathKey), path))
			kvs = append(kvs, otelLog.String(string(semconv.FileDirectoryKey), filepath.Dir(path)))
		}
		kvs = append(kvs, otelLog.String(string(semconv.FileNameKey), filepath.Base(path)))
		if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext != "" {
			kvs = append(kvs, otelLog.String(string(semconv.FileExtensionKey), ext))
		}
	}
	if size, ok := getInt64Field(data, "size"); ok && size > 0 {
		kvs = append(kvs, otelLog.Int64(string(semconv.FileSizeKey), size))
	}

	kvs = appendStringAttr(kvs, "edrwatch.alert.verdict", getStringField(data, "verdict"))
	kvs = appendStringAttr(kvs, "edrwatch.alert.trigger", getStringField(data, "trigger"))
	kvs = appendStringAttr(kvs, "edrwatch.alert.checker", getStringField(data, "checker"))
	score, ok := getInt64Field(data, "score")
	kvs = appendInt64Attr(kvs, "edrwatch.alert.score", score, ok)
	if cached, ok := data["cached"].(bool); ok {
		kvs = append(kvs, otelLog.Bool("edrwatch.alert.cached", cached))
	}
	if reasons := getStringSliceField(data, "reasons"); len(reasons) > 0 {
		values := make([]otelLog.Value, 0, len(reasons))
		for _, item := range reasons {
			values = append(values, otelLog.StringValue(item))
		}
		kvs = append(kvs, otelLog.KeyValue{Key: "edrwatch.alert.reasons", Value: otelLog.SliceValue(values...)})
	}
	kvs = appendStringAttr(kvs, "edrwatch.file.fingerprint", getStringField(data, "fingerprint"))
	kvs = appendStringAttr(kvs, "edrwatch.file.lookup_hash", getStringField(data, "lookup_hash"))
	kvs = appendStringAttr(kvs, "edrwatch.file.mime_type", getStringField(data, "mime_type"))
	kvs = appendStringAttr(kvs, "edrwatch.file.fuzzy_hash", getStringField(data, "fuzzy_hash"))

	if hashes := getStringMapField(data, "hashes"); len(hashes) > 0 {
		algos := make([]string, 0, len(hashes))
		for algo := range hashes {
			algos = append(algos, algo)
		}
		sort.Strings(algos)
		for _, algo := range algos {
			kvs = appendStringAttr(kvs, fmt.Sprintf("edrwatch.file.hash.%s", algo), hashes[algo])
		}
	}
	kvs = appendStringAttr(kvs, "edrwatch.alert.error", getStringField(data, "error"))

	return kvs
}

func hostSemanticAttributes(data map[string]interface{}) []otelLog.KeyValue {
	var kvs []otelLog.KeyValue

	kvs = appendStringAttr(kvs, string(semconv.HostNameKey), getStringField(data, "hostname"))
	kvs = appendStringAttr(kvs, string(semconv.HostIDKey), getStringField(data, "host_id"))
	kvs = appendStringAttr(kvs, string(semconv.HostArchKey), getStringField(data, "kernel_arch"))
	kvs = appendStringAttr(kvs, string(semconv.OSTypeKey), getStringField(data, "os"))
	kvs = appendStringAttr(kvs, string(semconv.OSNameKey), getStringField(data, "platform"))
	kvs = appendStringAttr(kvs, string(semconv.OSVersionKey), getStringField(data, "platform_version"))
	kvs = appendStringAttr(kvs, "edrwatch.agent.version", getStringField(data, "agent_version"))
	kvs = appendCountAttr(
		kvs,
		"edrwatch.host.network_interfaces_count",
		getCountFieldOrSliceLength(data, "network_interfaces_count", "network_interfaces"),
	)
	kvs = appendCountAttr(
		kvs,
		"edrwatch.host.trusted_processes_count",
		getCountFieldOrSliceLength(data, "trusted_processes_count", "trusted_processes"),
	)

	return kvs
}

var metricsCounterKeys = []string{
	"events_handled",
	"events_exempt",
	"events_skipped",
	"suspicious",
	"escalated",
	"deleted",
	"tracked_paths",
	"watched_dirs",
	"overflows",
	"checks_completed",
	"checks_dropped",
	"checks_failed",
	"malicious_verdicts",
	"alerts_written",
}

func metricsSemanticAttributes(data map[string]interface{}) []otelLog.KeyValue {
	var kvs []otelLog.KeyValue

	kvs = appendStringAttr(kvs, "edrwatch.metrics.start_time", getStringField(data, "start_time"))
	kvs = appendStringAttr(kvs, "edrwatch.metrics.end_time", getStringField(data, "end_time"))
	for _, key := range metricsCounterKeys {
		value, ok := getInt64Field(data, key)
		kvs = appendInt64Attr(kvs, "edrwatch.metrics."+key, value, ok)
	}

	return kvs
}

func payloadToMap(payload interface{}) map[string]interface{} {
	switch v := payload.(type) {
	case map[string]interface{}:
		return v
	case map[string]string:
		out := make(map[string]interface{}, len(v))
		for key, value := range v {
			out[key] = value
		}
		return out
	default:
		data, err := json.Marshal(payload)
		if err != nil {
			return nil
		}
		var decoded map[string]interface{}
		if err := json.Unmarshal(data, &decoded); err != nil {
			return nil
		}
		return decoded
	}
}

func getFieldValue(values map[string]interface{}, key string) interface{} {
	if values == nil {
		return nil
	}
	return values[key]
}

func getStringField(values map[string]interface{}, key string) string {
	value, ok := values[key]
	if !ok {
		return ""
	}
	if str, ok := value.(string); ok {
		return str
	}
	if value == nil {
		return ""
	}
	return fmt.Sprint(value)
}

func getInt64Field(values map[string]interface{}, key string) (int64, bool) {
	value, ok := values[key]
	if !ok || value == nil {
		return 0, false
	}
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case float32:
		return int64(v), true
	case json.Number:
		if parsed, err := v.Int64(); err == nil {
			return parsed, true
		}
	}
	return 0, false
}

func getStringSliceField(values map[string]interface{}, key string) []string {
	value, ok := values[key]
	if !ok || value == nil {
		return nil
	}
	switch v := value.(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if item == nil {
				continue
			}
			out = append(out, fmt.Sprint(item))
		}
		return out
	default:
		return nil
	}
}

func getStringMapField(values map[string]interface{}, key string) map[string]string {
	value, ok := values[key]
	if !ok || value == nil {
		return nil
	}
	switch v := value.(type) {
	case map[string]string:
		return v
	case map[string]interface{}:
		out := make(map[string]string, len(v))
		for k, val := range v {
			if val == nil {
				continue
			}
			out[k] = fmt.Sprint(val)
		}
		return out
	default:
		return nil
	}
}

func getSliceLength(values map[string]interface{}, key string) int64 {
	value, ok := values[key]
	if !ok || value == nil {
		return 0
	}
	switch v := value.(type) {
	case []interface{}:
		return int64(len(v))
	case []string:
		return int64(len(v))
	default:
		return 0
	}
}

func getCountFieldOrSliceLength(values map[string]interface{}, countKey, sliceKey string) int64 {
	if count, ok := getInt64Field(values, countKey); ok {
		return count
	}
	return getSliceLength(values, sliceKey)
}

func appendStringAttr(kvs []otelLog.KeyValue, key, value string) []otelLog.KeyValue {
	if value == "" {
		return kvs
	}
	return append(kvs, otelLog.String(key, value))
}

func appendInt64Attr(kvs []otelLog.KeyValue, key string, value int64, ok bool) []otelLog.KeyValue {
	if !ok {
		return kvs
	}
	return append(kvs, otelLog.Int64(key, value))
}

func appendCountAttr(kvs []otelLog.KeyValue, key string, count int64) []otelLog.KeyValue {
	if count <= 0 {
		return kvs
	}
	return append(kvs, otelLog.Int64(key, count))
}
