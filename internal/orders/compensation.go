package orders

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/ecovivashop/ecoviva-backend/pkg/config"
	"github.com/ecovivashop/ecoviva-backend/pkg/enums"
	pkgerrors "github.com/ecovivashop/ecoviva-backend/pkg/errors"
	"github.com/ecovivashop/ecoviva-backend/pkg/logger"
	"github.com/ecovivashop/ecoviva-backend/pkg/metrics"
	"github.com/ecovivashop/ecoviva-backend/pkg/redis"
)

// CompensationTask is a stock restore that failed during cancellation and
// waits in the queue for the reconciliation worker.
type CompensationTask struct {
	OrderNumber string `json:"order_number"`
	ProductID   uint   `json:"product_id"`
	Quantity    int    `json:"quantity"`
	Attempts    int    `json:"attempts"`
}

type taskQueue interface {
	Enqueue(ctx context.Context, queue string, payload string) error
	Dequeue(ctx context.Context, queue string) (string, error)
	QueueLen(ctx context.Context, queue string) (int64, error)
}

type restorer interface {
	Increment(ctx context.Context, productID uint, quantity int, actor string, reason enums.MovementReason) error
}

// Compensation queues and drains failed stock restores through redis so
// a cancellation never blocks on, or loses, a reversal.
type Compensation struct {
	queue   taskQueue
	stock   restorer
	logg    *logger.Logger
	metrics *metrics.StoreMetrics
	cfg     config.CompensationConfig
}

func NewCompensation(queue taskQueue, stock restorer, logg *logger.Logger, m *metrics.StoreMetrics, cfg config.CompensationConfig) (*Compensation, error) {
	if queue == nil || stock == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "task queue and stock ledger required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &Compensation{queue: queue, stock: stock, logg: logg, metrics: m, cfg: cfg}, nil
}

// EnqueueRestore pushes the task onto the pending queue.
func (c *Compensation) EnqueueRestore(ctx context.Context, task CompensationTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode compensation task")
	}
	if err := c.queue.Enqueue(ctx, c.cfg.QueueKey, string(payload)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeCompensation, err, "enqueue compensation task")
	}
	c.logg.Info(c.logg.WithOrderNumber(ctx, task.OrderNumber), "compensation task queued")
	return nil
}

// ReconciliationReport summarizes one drain pass.
type ReconciliationReport struct {
	Restored int `json:"restored"`
	Requeued int `json:"requeued"`
	Dropped  int `json:"dropped"`
}

// DrainOnce pops every task currently pending and retries the restore.
// Tasks that fail again go back to the queue with a bumped attempt count
// until the attempt ceiling drops them. Only the tasks present at the
// start of the pass are processed; requeued tasks wait for the next one.
func (c *Compensation) DrainOnce(ctx context.Context) (ReconciliationReport, error) {
	var report ReconciliationReport

	pending, err := c.queue.QueueLen(ctx, c.cfg.QueueKey)
	if err != nil {
		return report, pkgerrors.Wrap(pkgerrors.CodeCompensation, err, "read queue length")
	}

	for i := int64(0); i < pending; i++ {
		raw, err := c.queue.Dequeue(ctx, c.cfg.QueueKey)
		if errors.Is(err, redis.ErrQueueEmpty) {
			break
		}
		if err != nil {
			return report, pkgerrors.Wrap(pkgerrors.CodeCompensation, err, "dequeue compensation task")
		}

		var task CompensationTask
		if err := json.Unmarshal([]byte(raw), &task); err != nil {
			report.Dropped++
			c.metrics.IncCompensationTask("dropped")
			c.logg.Warn(ctx, "dropping undecodable compensation task: "+err.Error())
			continue
		}

		taskCtx := c.logg.WithOrderNumber(ctx, task.OrderNumber)
		actor := "compensation:" + task.OrderNumber
		err = c.stock.Increment(taskCtx, task.ProductID, task.Quantity, actor, enums.MovementReasonCancellationReversal)
		if err == nil {
			report.Restored++
			c.metrics.IncCompensationTask("restored")
			c.logg.Info(taskCtx, "compensation restore applied")
			continue
		}

		task.Attempts++
		if c.cfg.MaxAttempts > 0 && task.Attempts >= c.cfg.MaxAttempts {
			report.Dropped++
			c.metrics.IncCompensationTask("dropped")
			c.logg.Error(taskCtx, "compensation task exhausted attempts", err)
			continue
		}

		payload, marshalErr := json.Marshal(task)
		if marshalErr != nil {
			report.Dropped++
			c.metrics.IncCompensationTask("dropped")
			continue
		}
		if qErr := c.queue.Enqueue(taskCtx, c.cfg.QueueKey, string(payload)); qErr != nil {
			return report, pkgerrors.Wrap(pkgerrors.CodeCompensation, qErr, "requeue compensation task")
		}
		report.Requeued++
		c.metrics.IncCompensationTask("requeued")
		c.logg.Warn(taskCtx, "compensation restore failed, requeued: "+err.Error())
	}

	return report, nil
}
