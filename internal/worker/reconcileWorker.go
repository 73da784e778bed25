package worker

import (
	"context"
	"time"

	"github.com/ds124wfegd/bookit/internal/service"
	"github.com/ds124wfegd/bookit/pkg/scheduler"

	"github.com/sirupsen/logrus"
)

const reconcileJob = "capacity_reconcile"

// ReconcileWorker periodically checks that reserved seats match booked seats.
type ReconcileWorker struct {
	auditor   service.CapacityAuditor
	scheduler *scheduler.Scheduler
	interval  time.Duration
}

func NewReconcileWorker(auditor service.CapacityAuditor, sched *scheduler.Scheduler, interval time.Duration) *ReconcileWorker {
	return &ReconcileWorker{
		auditor:   auditor,
		scheduler: sched,
		interval:  interval,
	}
}

func (w *ReconcileWorker) Start(ctx context.Context) error {
	if err := w.scheduler.Every(ctx, reconcileJob, w.interval, w.RunOnce); err != nil {
		return err
	}
	w.scheduler.Start()

	logrus.WithField("interval", w.interval.String()).Info("Capacity reconcile worker started")
	return nil
}

// RunOnce сверяет счётчики мест с бронированиями и логирует расхождения
func (w *ReconcileWorker) RunOnce(ctx context.Context) {
	drifts, err := w.auditor.AuditCapacity(ctx)
	if err != nil {
		logrus.WithError(err).Error("Capacity audit failed")
		return
	}

	if len(drifts) == 0 {
		logrus.Debug("Capacity audit found no drift")
		return
	}

	for _, d := range drifts {
		entry := logrus.WithFields(logrus.Fields{
			"slot_id":  d.SlotID,
			"capacity": d.Capacity,
			"reserved": d.Reserved,
			"booked":   d.Booked,
		})
		if d.Oversold() {
			entry.Error("Slot oversold: more seats booked than reserved")
		} else {
			entry.Warn("Slot holds reserved seats without bookings")
		}
	}
	logrus.WithField("slots", len(drifts)).Warn("Capacity audit found drift")
}

// Stop останавливает планировщик и ждёт завершения текущей проверки
func (w *ReconcileWorker) Stop() {
	if err := w.scheduler.Shutdown(); err != nil {
		logrus.WithError(err).Warn("Reconcile worker shutdown")
	}
	logrus.Info("Capacity reconcile worker stopped")
}
