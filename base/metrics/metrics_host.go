package metrics

import (
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/load"
	"github.com/shirou/gopsutil/mem"
	"github.com/shirou/gopsutil/process"

	"github.com/safing/scanguard/base/log"
)

const hostStatTTL = 1 * time.Second

// cachedStat rate limits reads of an expensive host statistic.
// A failed read is cached as nil for the same duration.
type cachedStat[T any] struct {
	name string
	read func() (*T, error)

	lock    sync.Mutex
	value   *T
	expires time.Time
}

func (c *cachedStat[T]) get() *T {
	c.lock.Lock()
	defer c.lock.Unlock()

	now := time.Now()
	if now.Before(c.expires) {
		return c.value
	}
	c.expires = now.Add(hostStatTTL)

	var err error
	c.value, err = c.read()
	if err != nil {
		log.Warningf("metrics: failed to get %s: %s", c.name, err)
		c.value = nil
	}
	return c.value
}

var (
	loadAvgStat = &cachedStat[load.AvgStat]{name: "load avg", read: load.Avg}
	memStat     = &cachedStat[mem.VirtualMemoryStat]{name: "memory stats", read: mem.VirtualMemory}
	procStat    = &cachedStat[ProcessStats]{name: "process stats", read: readProcessStats}
)

func registerHostMetrics() error {
	gauges := []struct {
		id   string
		name string
		get  func() float64
	}{
		{"host/load/avg/1", "Host Load Avg 1min", statOrZero(LoadAvg1)},
		{"host/load/avg/5", "Host Load Avg 5min", statOrZero(LoadAvg5)},
		{"host/mem/used/percent", "Host Memory Used in Percent", statOrZero(MemUsedPercent)},
		{"process/rss/bytes", "Resident Memory", func() float64 {
			return float64(GetProcessStats().RSS)
		}},
		{"process/cpu/percent", "CPU Usage in Percent", func() float64 {
			return GetProcessStats().CPUPercent
		}},
	}

	for _, g := range gauges {
		if _, err := NewGauge(g.id, nil, g.get, &Options{Name: g.name}); err != nil {
			return err
		}
	}
	return nil
}

func statOrZero(getStat func() (float64, bool)) func() float64 {
	return func() float64 {
		val, _ := getStat()
		return val
	}
}

// LoadAvg1 returns the 1-minute average system load per CPU.
func LoadAvg1() (loadAvg float64, ok bool) {
	if stat := loadAvgStat.get(); stat != nil {
		return stat.Load1 / float64(runtime.NumCPU()), true
	}
	return 0, false
}

// LoadAvg5 returns the 5-minute average system load per CPU.
func LoadAvg5() (loadAvg float64, ok bool) {
	if stat := loadAvgStat.get(); stat != nil {
		return stat.Load5 / float64(runtime.NumCPU()), true
	}
	return 0, false
}

// MemUsedPercent returns the percent of used system memory.
func MemUsedPercent() (usedPercent float64, ok bool) {
	if stat := memStat.get(); stat != nil {
		return stat.UsedPercent, true
	}
	return 0, false
}

// ProcessStats holds resource usage of the running process.
type ProcessStats struct {
	RSS        uint64
	CPUPercent float64
	Threads    int32
}

// GetProcessStats returns resource usage of the running process.
// Values that cannot be read are zero.
func GetProcessStats() ProcessStats {
	if stats := procStat.get(); stats != nil {
		return *stats
	}
	return ProcessStats{}
}

var (
	self     *process.Process
	selfOnce sync.Once
	selfErr  error
)

func readProcessStats() (*ProcessStats, error) {
	selfOnce.Do(func() {
		self, selfErr = process.NewProcess(int32(os.Getpid())) //nolint:gosec
	})
	if selfErr != nil {
		return nil, selfErr
	}

	stats := &ProcessStats{}
	if memInfo, err := self.MemoryInfo(); err == nil {
		stats.RSS = memInfo.RSS
	}
	if cpu, err := self.CPUPercent(); err == nil {
		stats.CPUPercent = cpu
	}
	if threads, err := self.NumThreads(); err == nil {
		stats.Threads = threads
	}
	return stats, nil
}
