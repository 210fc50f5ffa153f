package logworker

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/localdns/localdns/pkg/db"
	"github.com/localdns/localdns/pkg/model"
	"github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/wait"
)

// DefaultCapacity sizes the channel for a short query burst.
const DefaultCapacity = 1024

const sweepInterval = 3600 * time.Second

// Message is one query observation headed for the query_logs table.
type Message struct {
	QueryName  string
	QType      string
	ResultType string
	DurationMs int64
}

// Worker decouples the query path from durable log writes. Producers
// enqueue without blocking; a single consumer drains into the store in
// send order.
type Worker struct {
	db   db.Database
	ch   chan Message
	done chan struct{}
	once sync.Once

	dropped        atomic.Uint64
	appendFailures atomic.Uint64
}

func New(database db.Database, capacity int) *Worker {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Worker{
		db:   database,
		ch:   make(chan Message, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue offers a message to the worker. A full channel drops the
// message and reports false; the responder path is never stalled here.
func (w *Worker) Enqueue(msg Message) bool {
	select {
	case w.ch <- msg:
		return true
	default:
		w.dropped.Add(1)
		logrus.Debugf("query log channel full, dropped entry for %q", msg.QueryName)
		return false
	}
}

// Run consumes messages until Close, persisting each one in send
// order. Append failures are counted and logged, never fatal.
func (w *Worker) Run() {
	logrus.Debug("log worker started")

	for {
		select {
		case msg := <-w.ch:
			w.append(msg)
		case <-w.done:
			for {
				select {
				case msg := <-w.ch:
					w.append(msg)
				default:
					logrus.Debug("log worker stopped")
					return
				}
			}
		}
	}
}

func (w *Worker) append(msg Message) {
	entry := db.QueryLog{
		QueryName:  msg.QueryName,
		QType:      msg.QType,
		ResultType: msg.ResultType,
		DurationMs: msg.DurationMs,
	}

	if err := w.db.AppendLog(entry); err != nil {
		w.appendFailures.Add(1)
		logrus.Errorf("failed to append query log: %v", err)
	}
}

// Close stops the worker after the remaining messages drain.
func (w *Worker) Close() {
	w.once.Do(func() {
		close(w.done)
	})
}

// Dropped returns the number of messages discarded on a full channel.
func (w *Worker) Dropped() uint64 {
	return w.dropped.Load()
}

// AppendFailures returns the number of failed store writes.
func (w *Worker) AppendFailures() uint64 {
	return w.appendFailures.Load()
}

// StartRetentionSweeper deletes logs past the retention horizon once an
// hour until stopCh closes.
func (w *Worker) StartRetentionSweeper(stopCh <-chan struct{}) {
	logrus.Infof("starting log retention sweeper. Sweep interval: %v", sweepInterval)
	wait.JitterUntil(w.sweep, sweepInterval, .002, true, stopCh)
}

func (w *Worker) sweep() {
	days := w.retentionDays()

	deleted, err := w.db.CleanupLogs(time.Duration(days) * 24 * time.Hour)
	if err != nil {
		logrus.Errorf("problem cleaning up old query logs: %v", err)
		return
	}
	if deleted > 0 {
		logrus.Infof("query logs purged: %v (retention: %v days)", deleted, days)
	}
}

// retentionDays reads log_retention_days fresh each sweep so settings
// changes apply without restart. Anything unparsable falls back to the
// default.
func (w *Worker) retentionDays() int {
	value, err := w.db.GetSetting(model.SettingLogRetentionDays)
	if err != nil {
		logrus.Warnf("could not read %s, using default of %d days: %v",
			model.SettingLogRetentionDays, model.DefaultRetentionDays, err)
		return model.DefaultRetentionDays
	}

	days, err := strconv.Atoi(value)
	if err != nil || days <= 0 {
		logrus.Warnf("invalid %s value %q, using default of %d days",
			model.SettingLogRetentionDays, value, model.DefaultRetentionDays)
		return model.DefaultRetentionDays
	}

	return days
}
