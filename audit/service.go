// Package audit persists an audit trail of reward-bearing actions. Entries are
// queued and written in batches by a background worker.
package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/shi0417/kongfuworld-sub004/hook"
	"github.com/shi0417/kongfuworld-sub004/model"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditEntry holds one audit event to be logged.
type AuditEntry struct {
	TraceID    string
	UserID     *int64
	Action     string
	Request    interface{}
	Response   interface{}
	Error      string
	IP         string
	DurationMs int
}

type Options struct {
	Buffer        int
	BatchSize     int
	FlushInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.Buffer <= 0 {
		o.Buffer = 1024
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 2 * time.Second
	}
	return o
}

// Service logs audit entries asynchronously in batches.
type Service struct {
	db       *gorm.DB
	opts     Options
	ch       chan *model.AuditLog
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	logger   *zap.Logger
}

// New creates a new audit Service with default options and starts its worker.
func New(db *gorm.DB, logger *zap.Logger) *Service {
	return NewWithOptions(db, logger, Options{})
}

func NewWithOptions(db *gorm.DB, logger *zap.Logger, opts Options) *Service {
	opts = opts.withDefaults()
	svc := &Service{
		db:     db,
		opts:   opts,
		ch:     make(chan *model.AuditLog, opts.Buffer),
		stopCh: make(chan struct{}),
		logger: logger,
	}
	svc.wg.Add(1)
	go svc.worker()
	return svc
}

// TraceID returns the OpenTelemetry trace id carried by ctx, or "".
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

func marshal(v interface{}) datatypes.JSON {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		b, _ = json.Marshal(map[string]string{"marshal_error": err.Error()})
	}
	return datatypes.JSON(b)
}

// Log enqueues an audit entry for async DB write. A full queue drops the entry.
func (svc *Service) Log(entry AuditEntry) {
	record := &model.AuditLog{
		TraceID:    entry.TraceID,
		UserID:     entry.UserID,
		Action:     entry.Action,
		Request:    marshal(entry.Request),
		Response:   marshal(entry.Response),
		Error:      entry.Error,
		IP:         entry.IP,
		DurationMs: entry.DurationMs,
	}
	select {
	case svc.ch <- record:
	default:
		svc.logger.Warn("audit channel full, dropping entry",
			zap.String("action", entry.Action))
	}
}

// Subscribe records every activity event after the other subscribers ran,
// together with what they attached to it.
func (svc *Service) Subscribe(hc *hook.Center) {
	for _, ev := range hook.Events {
		hc.Register(ev, 100, "audit", func(ctx context.Context, act *hook.Activity) error {
			uid := act.UserID
			var req map[string]interface{}
			if act.ChapterID != nil {
				req = map[string]interface{}{"chapter_id": *act.ChapterID}
			}
			svc.Log(AuditEntry{
				TraceID:  TraceID(ctx),
				UserID:   &uid,
				Action:   "activity." + act.Event,
				Request:  req,
				Response: act.Outputs(),
			})
			return nil
		})
	}
}

// Stop flushes remaining entries and shuts down the worker.
// It blocks until the worker goroutine has finished.
func (svc *Service) Stop(_ context.Context) {
	svc.stopOnce.Do(func() { close(svc.stopCh) })
	svc.wg.Wait()
}

func (svc *Service) worker() {
	defer svc.wg.Done()
	ticker := time.NewTicker(svc.opts.FlushInterval)
	defer ticker.Stop()

	batch := make([]*model.AuditLog, 0, svc.opts.BatchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := svc.db.Create(&batch).Error; err != nil {
			svc.logger.Error("audit batch write failed", zap.Int("entries", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-svc.ch:
			batch = append(batch, entry)
			if len(batch) >= svc.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-svc.stopCh:
			// Drain remaining entries.
			for {
				select {
				case entry := <-svc.ch:
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}
