package job

import (
	"context"
	"time"

	"ridepay/internal/service"

	"github.com/sirupsen/logrus"
)

// PendingReconciler is the slice of the deposit service the reconciler drives.
type PendingReconciler interface {
	ReconcilePending(ctx context.Context, olderThan time.Time, limit int) (*service.ReconcileSummary, error)
}

// PendingDepositJob re-verifies deposits whose webhook never arrived.
type PendingDepositJob struct {
	deposits  PendingReconciler
	log       logrus.FieldLogger
	stopCh    chan struct{}
	interval  time.Duration
	minAge    time.Duration
	batchSize int
	now       func() time.Time
}

func NewPendingDepositJob(deposits PendingReconciler, log logrus.FieldLogger) *PendingDepositJob {
	return &PendingDepositJob{
		deposits:  deposits,
		log:       log.WithField("job", "pending_deposit_reconciler"),
		stopCh:    make(chan struct{}),
		interval:  30 * time.Second,
		minAge:    5 * time.Minute,
		batchSize: 50,
		now:       time.Now,
	}
}

func (j *PendingDepositJob) Start(ctx context.Context) {
	j.log.Info("started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.log.Info("context cancelled, exiting")
			return
		case <-j.stopCh:
			j.log.Info("stopped")
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *PendingDepositJob) Stop() {
	close(j.stopCh)
}

func (j *PendingDepositJob) runOnce(ctx context.Context) {
	summary, err := j.deposits.ReconcilePending(ctx, j.now().Add(-j.minAge), j.batchSize)
	if err != nil {
		j.log.WithError(err).Error("reconcile pass failed")
		return
	}
	if summary.Checked == 0 {
		return
	}
	j.log.WithFields(logrus.Fields{
		"checked":   summary.Checked,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"expired":   summary.Expired,
	}).Info("reconcile pass finished")
}
