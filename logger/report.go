package logger

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type counter struct {
	n int64
}

var (
	ticksRead         int64
	protocolErrors    int64
	reconnects        int64
	booksPublished    int64
	snapshotsDropped  int64
	warnsByComponent  sync.Map // map[string]*counter
	errorsByComponent sync.Map // map[string]*counter
)

func bump(m *sync.Map, key string) {
	v, _ := m.LoadOrStore(key, &counter{})
	atomic.AddInt64(&v.(*counter).n, 1)
}

func snapshot(m *sync.Map) map[string]int64 {
	out := map[string]int64{}
	m.Range(func(k, v any) bool {
		out[k.(string)] = atomic.LoadInt64(&v.(*counter).n)
		return true
	})
	return out
}

func recordWarn(component string) {
	bump(&warnsByComponent, component)
}

func recordError(component string) {
	bump(&errorsByComponent, component)
}

func IncrementTickRead() {
	atomic.AddInt64(&ticksRead, 1)
}

func IncrementProtocolError() {
	atomic.AddInt64(&protocolErrors, 1)
}

func IncrementReconnect() {
	atomic.AddInt64(&reconnects, 1)
}

func IncrementBookPublished() {
	atomic.AddInt64(&booksPublished, 1)
}

func AddSnapshotsDropped(n int64) {
	atomic.AddInt64(&snapshotsDropped, n)
}

// Counters returns the pipeline counters collected so far.
func Counters() map[string]int64 {
	return map[string]int64{
		"ticks_read":        atomic.LoadInt64(&ticksRead),
		"protocol_errors":   atomic.LoadInt64(&protocolErrors),
		"reconnects":        atomic.LoadInt64(&reconnects),
		"books_published":   atomic.LoadInt64(&booksPublished),
		"snapshots_dropped": atomic.LoadInt64(&snapshotsDropped),
	}
}

// StartReport begins periodic logging of system and pipeline statistics.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	var memUsed, diskUsed uint64
	if memStats, err := mem.VirtualMemory(); err == nil {
		memUsed = memStats.Used
	}
	if diskStats, err := disk.Usage("/"); err == nil {
		diskUsed = diskStats.Used
	}

	var bytesSent, bytesRecv uint64
	if netStats, err := gnet.IOCounters(false); err == nil && len(netStats) > 0 {
		bytesSent = netStats[0].BytesSent
		bytesRecv = netStats[0].BytesRecv
	}

	counters := Counters()
	fields := Fields{
		"goroutines":     runtime.NumGoroutine(),
		"cpu_percent":    cpuPct,
		"memory_mb":      int64(memUsed) / 1024 / 1024,
		"disk_mb":        int64(diskUsed) / 1024 / 1024,
		"net_bytes_sent": int64(bytesSent),
		"net_bytes_recv": int64(bytesRecv),
		"warns":          snapshot(&warnsByComponent),
		"errors":         snapshot(&errorsByComponent),
	}
	for k, v := range counters {
		fields[k] = v
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	data := []cwtypes.MetricDatum{
		{MetricName: aws.String("CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		{MetricName: aws.String("MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memUsed) / 1024 / 1024)},
		{MetricName: aws.String("DiskMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(diskUsed) / 1024 / 1024)},
		{MetricName: aws.String("NetBytesSent"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesSent))},
		{MetricName: aws.String("NetBytesRecv"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesRecv))},
	}

	names := make([]string, 0, len(counters))
	for k := range counters {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, name := range names {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String("Pipeline"),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{{Name: aws.String("Counter"), Value: aws.String(name)}},
			Value:      aws.Float64(float64(counters[name])),
		})
	}

	publishMetrics(ctx, data)
}
