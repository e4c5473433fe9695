package output

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"edrwatch/config"
	"edrwatch/logger"
	"edrwatch/systeminfo"
)

const SchemaVersion = "1.0.0"

const (
	flushEveryRecords = 64
	flushMaxInterval  = 2 * time.Second
)

// Metrics summarises a monitoring session. It is written as the last record
// of the stream.
type Metrics struct {
	StartTime         string `json:"start_time"`
	EndTime           string `json:"end_time"`
	EventsHandled     int64  `json:"events_handled"`
	EventsExempt      int64  `json:"events_exempt"`
	EventsSkipped     int64  `json:"events_skipped"`
	Suspicious        int64  `json:"suspicious"`
	Escalated         int64  `json:"escalated"`
	Deleted           int64  `json:"deleted"`
	TrackedPaths      int    `json:"tracked_paths"`
	WatchedDirs       int    `json:"watched_dirs"`
	Overflows         int64  `json:"overflows"`
	ChecksCompleted   int64  `json:"checks_completed"`
	ChecksDropped     int64  `json:"checks_dropped"`
	ChecksFailed      int64  `json:"checks_failed"`
	MaliciousVerdicts int64  `json:"malicious_verdicts"`
	RecordsWritten    int64  `json:"records_written"`
	AlertsWritten     int64  `json:"alerts_written"`
	OutputRotations   int    `json:"output_rotations"`
}

type record struct {
	RecordType    string      `json:"record_type"`
	SchemaVersion string      `json:"schema_version"`
	Timestamp     string      `json:"timestamp"`
	Payload       interface{} `json:"payload"`
}

// Writer appends NDJSON records to a rotating file and mirrors them to an
// OTLP log endpoint when one is configured. It is safe for concurrent use.
type Writer struct {
	mu      sync.Mutex
	file    *os.File
	buf     *bufio.Writer
	metrics *Metrics
	host    *systeminfo.HostInfo
	otel    *otelLogger
	base    string
	ext     string
	index   int
	maxSize int64
	written int64
	closed  bool
	broken  bool

	recordsSinceSync int
	lastSyncAt       time.Time

	records atomic.Int64
	alerts  atomic.Int64
}

func New(cfg *config.Config, host *systeminfo.HostInfo, m *Metrics) (*Writer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("output: nil config")
	}
	ext := filepath.Ext(cfg.OutputFileName)
	base := strings.TrimSuffix(cfg.OutputFileName, ext)
	if host == nil {
		host = &systeminfo.HostInfo{}
	}

	w := &Writer{
		metrics: m,
		host:    host,
		base:    base,
		ext:     ext,
		maxSize: cfg.MaxOutputFileSize,
	}
	otel, err := newOtelLogger(cfg)
	if err != nil {
		logger.Warnf("OTEL export disabled: %v", err)
	} else if otel != nil {
		w.otel = otel
		logger.Infof("Exporting alerts to %s", otel.Endpoint())
	}
	if err := w.openFile(); err != nil {
		return nil, err
	}
	w.emitRecordLocked("host", w.host)
	return w, nil
}

// Name returns the file currently being written.
func (w *Writer) Name() string {
	if w.index > 0 {
		return fmt.Sprintf("%s.%d%s", w.base, w.index, w.ext)
	}
	return w.base + w.ext
}

func (w *Writer) openFile() error {
	f, err := os.OpenFile(w.Name(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	w.file = f
	w.buf = bufio.NewWriterSize(f, 64*1024)
	w.written = 0
	w.recordsSinceSync = 0
	w.lastSyncAt = time.Now()
	if err := w.writeLineLocked("host", w.host); err != nil {
		return err
	}
	return w.buf.Flush()
}

// WriteRecord appends one record of the given type. Alerts are flushed
// immediately; other records are batched.
func (w *Writer) WriteRecord(recordType string, payload interface{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.broken {
		return
	}
	if err := w.writeLineLocked(recordType, payload); err != nil {
		logger.Warnf("Failed to write %s record: %v", recordType, err)
		return
	}
	if recordType == "alert" {
		w.alerts.Add(1)
	}
	w.emitRecordLocked(recordType, payload)

	w.recordsSinceSync++
	if recordType == "alert" || w.shouldSync() {
		w.flush()
	}
	if w.maxSize > 0 && w.written >= w.maxSize {
		w.rotate()
	}
}

func (w *Writer) writeLineLocked(recordType string, payload interface{}) error {
	line, err := encodeLine(record{
		RecordType:    recordType,
		SchemaVersion: SchemaVersion,
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
		Payload:       payload,
	})
	if err != nil {
		return err
	}
	n, err := w.buf.Write(line)
	w.written += int64(n)
	if err != nil {
		return err
	}
	w.records.Add(1)
	return nil
}

func (w *Writer) shouldSync() bool {
	if w.recordsSinceSync <= 1 {
		return w.recordsSinceSync == 1
	}
	if w.recordsSinceSync >= flushEveryRecords {
		return true
	}
	return time.Since(w.lastSyncAt) >= flushMaxInterval
}

// SetMetrics replaces the session summary written on Close. Record counters
// are kept by the writer itself.
func (w *Writer) SetMetrics(m Metrics) {
	w.mu.Lock()
	defer w.mu.Unlock()
	m.RecordsWritten = w.records.Load()
	m.AlertsWritten = w.alerts.Load()
	m.OutputRotations = w.index
	w.metrics = &m
}

// AlertsWritten returns the number of alert records written so far.
func (w *Writer) AlertsWritten() int64 {
	return w.alerts.Load()
}

func (w *Writer) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	if w.broken {
		w.otel.Shutdown()
		return
	}
	if w.metrics != nil {
		w.metrics.RecordsWritten = w.records.Load()
		w.metrics.AlertsWritten = w.alerts.Load()
		w.metrics.OutputRotations = w.index
		if err := w.writeLineLocked("metrics", w.metrics); err != nil {
			logger.Warnf("Failed to write metrics record: %v", err)
		}
		w.emitRecordLocked("metrics", w.metrics)
	}
	w.closeFile()
	w.otel.Shutdown()
}

func (w *Writer) rotate() {
	w.closeFile()
	w.index++
	if err := w.openFile(); err != nil {
		logger.Errorf("Output rotation to %s failed: %v", w.Name(), err)
		w.broken = true
	}
}

func (w *Writer) closeFile() {
	w.flush()
	_ = w.file.Sync()
	_ = w.file.Close()
}

func (w *Writer) flush() {
	if w.buf != nil {
		_ = w.buf.Flush()
	}
	w.recordsSinceSync = 0
	w.lastSyncAt = time.Now()
}

func (w *Writer) emitRecordLocked(recordType string, payload interface{}) {
	if w.otel == nil {
		return
	}
	w.otel.Emit(recordType, payload)
}
