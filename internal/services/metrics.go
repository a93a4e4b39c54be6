package services

import (
	"context"
	"os"
	"runtime"
	"time"

	"tradehub-admin/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

type MetricSample struct {
	CapturedAt        time.Time `json:"capturedAt"`
	HeapUsedBytes     int64     `json:"heapUsedBytes"`
	HeapMaxBytes      int64     `json:"heapMaxBytes"`
	SystemMemoryTotal int64     `json:"systemMemoryTotalBytes"`
	SystemMemoryUsed  int64     `json:"systemMemoryUsedBytes"`
	DiskTotalBytes    int64     `json:"diskTotalBytes"`
	DiskUsedBytes     int64     `json:"diskUsedBytes"`
	ProcessCpuLoad    float64   `json:"processCpuLoad"`
	SystemCpuLoad     float64   `json:"systemCpuLoad"`
	Goroutines        int       `json:"goroutines"`
}

func sampleFromRow(r models.ServerMetricSample) MetricSample {
	return MetricSample{
		CapturedAt:        r.CapturedAt,
		HeapUsedBytes:     r.HeapUsedBytes,
		HeapMaxBytes:      r.HeapMaxBytes,
		SystemMemoryTotal: r.SystemMemoryTotal,
		SystemMemoryUsed:  r.SystemMemoryUsed,
		DiskTotalBytes:    r.DiskTotalBytes,
		DiskUsedBytes:     r.DiskUsedBytes,
		ProcessCpuLoad:    r.ProcessCpuLoad,
		SystemCpuLoad:     r.SystemCpuLoad,
	}
}

// ReadSystemMetrics samples the process and host. Individual probe failures
// leave their fields at zero.
func ReadSystemMetrics(ctx context.Context, diskPath string) MetricSample {
	var heap runtime.MemStats
	runtime.ReadMemStats(&heap)

	sample := MetricSample{
		CapturedAt:    time.Now().UTC(),
		HeapUsedBytes: int64(heap.HeapAlloc),
		HeapMaxBytes:  int64(heap.HeapSys),
		Goroutines:    runtime.NumGoroutine(),
	}
	if memStat, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		sample.SystemMemoryTotal = int64(memStat.Total)
		sample.SystemMemoryUsed = int64(memStat.Total - memStat.Available)
	}
	diskStat, err := disk.UsageWithContext(ctx, diskPath)
	if err != nil {
		diskStat, err = disk.UsageWithContext(ctx, "/")
	}
	if err == nil {
		sample.DiskTotalBytes = int64(diskStat.Total)
		sample.DiskUsedBytes = int64(diskStat.Used)
	}
	if proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid())); err == nil {
		if perc, err := proc.CPUPercentWithContext(ctx); err == nil {
			sample.ProcessCpuLoad = perc / 100.0
		}
	}
	if sysCPU, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(sysCPU) > 0 {
		sample.SystemCpuLoad = sysCPU[0] / 100.0
	}
	return sample
}

func CaptureMetrics(ctx context.Context, db *sqlx.DB, diskPath string) (MetricSample, error) {
	sample := ReadSystemMetrics(ctx, diskPath)
	row := models.ServerMetricSample{
		ID:                uuid.NewString(),
		CapturedAt:        sample.CapturedAt,
		HeapUsedBytes:     sample.HeapUsedBytes,
		HeapMaxBytes:      sample.HeapMaxBytes,
		SystemMemoryTotal: sample.SystemMemoryTotal,
		SystemMemoryUsed:  sample.SystemMemoryUsed,
		DiskTotalBytes:    sample.DiskTotalBytes,
		DiskUsedBytes:     sample.DiskUsedBytes,
		ProcessCpuLoad:    sample.ProcessCpuLoad,
		SystemCpuLoad:     sample.SystemCpuLoad,
	}
	_, err := db.NamedExecContext(ctx, `
INSERT INTO server_metric_samples (
  id, captured_at, heap_used_bytes, heap_max_bytes, system_memory_total_bytes,
  system_memory_used_bytes, disk_total_bytes, disk_used_bytes, process_cpu_load, system_cpu_load
) VALUES (:id, :captured_at, :heap_used_bytes, :heap_max_bytes, :system_memory_total_bytes,
  :system_memory_used_bytes, :disk_total_bytes, :disk_used_bytes, :process_cpu_load, :system_cpu_load)
`, row)
	if err != nil {
		return MetricSample{}, classify("server_metric_samples", "create", err)
	}
	return sample, nil
}

// LatestMetrics returns up to limit samples, oldest first.
func LatestMetrics(ctx context.Context, db *sqlx.DB, limit int) ([]MetricSample, error) {
	rows := []models.ServerMetricSample{}
	if err := db.SelectContext(ctx, &rows, `
SELECT id, captured_at, heap_used_bytes, heap_max_bytes, system_memory_total_bytes,
       system_memory_used_bytes, disk_total_bytes, disk_used_bytes, process_cpu_load, system_cpu_load
FROM server_metric_samples
ORDER BY captured_at DESC
LIMIT $1
`, limit); err != nil {
		return nil, classify("server_metric_samples", "list", err)
	}
	items := make([]MetricSample, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		items = append(items, sampleFromRow(rows[i]))
	}
	return items, nil
}

func PruneMetrics(ctx context.Context, db *sqlx.DB, olderThan time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM server_metric_samples WHERE captured_at < $1`, olderThan)
	if err != nil {
		return 0, classify("server_metric_samples", "delete", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
