package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type WithdrawalTask interface {
	CheckBacklog()
}

type CodeStockTask interface {
	RefreshStock()
}

type FairnessTask interface {
	RemindRotation()
}

type HostTask interface {
	Sample()
}

type CurrencyTask interface {
	Warm()
}

type Deps struct {
	WithdrawalJob WithdrawalTask
	CodeStockJob  CodeStockTask
	FairnessJob   FairnessTask
	HostJob       HostTask
	CurrencyJob   CurrencyTask
}

// job specs use the six-field form with seconds, evaluated in UTC.
type job struct {
	name string
	spec string
	run  func()
}

func (d Deps) jobs() []job {
	var out []job
	if d.WithdrawalJob != nil {
		out = append(out, job{"withdrawal.backlog_check", "0 0 * * * *", d.WithdrawalJob.CheckBacklog})
	}
	if d.CodeStockJob != nil {
		out = append(out, job{"codes.stock_refresh", "0 */10 * * * *", d.CodeStockJob.RefreshStock})
	}
	if d.FairnessJob != nil {
		out = append(out, job{"fairness.rotation_reminder", "0 0 9 * * 1", d.FairnessJob.RemindRotation})
	}
	if d.HostJob != nil {
		out = append(out, job{"host.sample", "*/15 * * * * *", d.HostJob.Sample})
	}
	if d.CurrencyJob != nil {
		out = append(out, job{"currency.warm", "0 */30 * * * *", d.CurrencyJob.Warm})
	}
	return out
}

// NewScheduler registers every provided job. A run that panics is logged and
// recovered; a run still going when its next tick fires skips that tick.
func NewScheduler(deps Deps, logger *zap.Logger) *cron.Cron {
	if logger == nil {
		logger = zap.NewNop()
	}
	cronLogger := zapCronLogger{logger.Sugar()}

	c := cron.New(
		cron.WithSeconds(),
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	for _, j := range deps.jobs() {
		register(c, j, logger)
	}
	return c
}

func register(c *cron.Cron, j job, logger *zap.Logger) {
	run := j.run
	if _, err := c.AddFunc(j.spec, func() {
		start := time.Now()
		run()
		logger.Debug("scheduler job finished", zap.String("job", j.name), zap.Duration("cost", time.Since(start)))
	}); err != nil {
		logger.Error("register scheduler job failed",
			zap.String("job", j.name),
			zap.String("spec", j.spec),
			zap.Error(err),
		)
	}
}

// zapCronLogger routes cron's own messages, including recovered panics,
// through zap. Routine info lines are demoted to debug.
type zapCronLogger struct {
	sugar *zap.SugaredLogger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw("cron: "+msg, keysAndValues...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
