// usage.go — ёмкость файловой системы корня загрузок (Unix).
package filestore

import (
	"fmt"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
)

// Usage возвращает общий и доступный объём файловой системы корня в байтах.
func (fs *FileStore) Usage() (total, available int64, err error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(fs.root, &stat); err != nil {
		return 0, 0, fmt.Errorf("statfs %s: %w", fs.root, err)
	}
	total = int64(stat.Blocks) * int64(stat.Bsize)
	available = int64(stat.Bavail) * int64(stat.Bsize)
	return total, available, nil
}

// RegisterUsageMetrics публикует od_upload_root_total_bytes и
// od_upload_root_available_bytes. Значения читаются при каждом scrape.
func (fs *FileStore) RegisterUsageMetrics(reg prometheus.Registerer) error {
	gauge := func(name, help string, pick func(total, available int64) int64) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, func() float64 {
			total, available, err := fs.Usage()
			if err != nil {
				return 0
			}
			return float64(pick(total, available))
		})
	}

	for _, c := range []prometheus.Collector{
		gauge("od_upload_root_total_bytes", "Объём файловой системы корня загрузок",
			func(total, _ int64) int64 { return total }),
		gauge("od_upload_root_available_bytes", "Свободный объём файловой системы корня загрузок",
			func(_, available int64) int64 { return available }),
	} {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("регистрация метрик ёмкости: %w", err)
		}
	}
	return nil
}
