package jobs

import (
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"go.uber.org/zap"

	"lootbox-hub/internal/metrics"
)

type hostProvider interface {
	CPUPercent() (float64, error)
	MemoryPercent() (float64, error)
}

type gopsutilProvider struct{}

func (gopsutilProvider) CPUPercent() (float64, error) {
	values, err := cpu.Percent(500*time.Millisecond, false)
	if err != nil || len(values) == 0 {
		return 0, err
	}
	return values[0], nil
}

func (gopsutilProvider) MemoryPercent() (float64, error) {
	stat, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return stat.UsedPercent, nil
}

type HostJob struct {
	provider hostProvider
	logger   *zap.Logger
}

func NewHostJob(logger *zap.Logger) *HostJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HostJob{provider: gopsutilProvider{}, logger: logger}
}

func (j *HostJob) Sample() {
	if j == nil || j.provider == nil {
		return
	}

	cpuPercent, err := j.provider.CPUPercent()
	if err != nil {
		j.logger.Debug("sample cpu failed", zap.Error(err))
		return
	}
	memPercent, err := j.provider.MemoryPercent()
	if err != nil {
		j.logger.Debug("sample memory failed", zap.Error(err))
		return
	}
	metrics.SetHostUsage(cpuPercent, memPercent)
}
