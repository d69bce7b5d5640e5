package profiler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"runtime"
	"runtime/pprof"
	"sort"
	"time"

	"github.com/google/pprof/profile"
	"github.com/greymass/abicached/libraries/logger"
)

type Config struct {
	ServiceName string
	Interval    time.Duration
	TopN        int
}

// Profiler captures back to back CPU profiles and logs the hottest functions
// of each under the "profiler" category.
type Profiler struct {
	cfg Config
}

func New(cfg Config) *Profiler {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.TopN <= 0 {
		cfg.TopN = 20
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "unknown"
	}
	return &Profiler{cfg: cfg}
}

// Run profiles until ctx is cancelled.
func (p *Profiler) Run(ctx context.Context) error {
	logger.Printf("profiler", "Periodic CPU profiling every %v", p.cfg.Interval)
	for ctx.Err() == nil {
		if err := p.capture(ctx); err != nil {
			return err
		}
	}
	logger.Printf("profiler", "Stopped periodic CPU profiling")
	return nil
}

func (p *Profiler) capture(ctx context.Context) error {
	start := time.Now()
	var buf bytes.Buffer
	if err := pprof.StartCPUProfile(&buf); err != nil {
		return fmt.Errorf("start cpu profile: %w", err)
	}

	timer := time.NewTimer(p.cfg.Interval)
	select {
	case <-timer.C:
	case <-ctx.Done():
		timer.Stop()
	}
	pprof.StopCPUProfile()
	elapsed := time.Since(start)

	if buf.Len() == 0 {
		logger.Printf("profiler", "No CPU samples captured")
		return nil
	}
	summary, err := Summarize(&buf)
	if err != nil {
		logger.Warning("Could not parse CPU profile: %v", err)
		return nil
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	logger.Printf("profiler", "%s cpu profile at %s: %.1fs wall, %.2fs sampled, goroutines %d, heap %d MB, gc %d",
		p.cfg.ServiceName, start.Format("15:04:05"), elapsed.Seconds(), summary.Seconds(),
		runtime.NumGoroutine(), m.Alloc/1024/1024, m.NumGC)
	for _, line := range summary.Top(p.cfg.TopN) {
		logger.Printf("profiler", "%s", line)
	}
	return nil
}

type Summary struct {
	TotalSamples int64
	Period       int64
	Functions    []Function
}

type Function struct {
	Name string
	Flat int64
}

func (s *Summary) Seconds() float64 {
	return float64(s.TotalSamples*s.Period) / 1e9
}

// Top renders up to n rows of "flat flat% sum% name".
func (s *Summary) Top(n int) []string {
	var out []string
	var cum int64
	for i := 0; i < n && i < len(s.Functions); i++ {
		fn := s.Functions[i]
		cum += fn.Flat
		out = append(out, fmt.Sprintf("%10s %6.2f%% %6.2f%%  %s",
			formatDuration(time.Duration(fn.Flat*s.Period)),
			pct(fn.Flat, s.TotalSamples), pct(cum, s.TotalSamples), fn.Name))
	}
	return out
}

// Summarize aggregates self samples per leaf function.
func Summarize(r io.Reader) (*Summary, error) {
	prof, err := profile.Parse(r)
	if err != nil {
		return nil, err
	}

	s := &Summary{Period: 1_000_000}
	if len(prof.SampleType) > 0 && prof.SampleType[0].Unit == "nanoseconds" && prof.Period > 0 {
		s.Period = prof.Period
	}

	flat := make(map[string]int64)
	for _, sample := range prof.Sample {
		if len(sample.Value) == 0 {
			continue
		}
		s.TotalSamples += sample.Value[0]
		if len(sample.Location) == 0 || len(sample.Location[0].Line) == 0 {
			continue
		}
		if fn := sample.Location[0].Line[0].Function; fn != nil {
			flat[fn.Name] += sample.Value[0]
		}
	}

	for name, n := range flat {
		s.Functions = append(s.Functions, Function{Name: name, Flat: n})
	}
	sort.Slice(s.Functions, func(i, j int) bool {
		if s.Functions[i].Flat != s.Functions[j].Flat {
			return s.Functions[i].Flat > s.Functions[j].Flat
		}
		return s.Functions[i].Name < s.Functions[j].Name
	})
	return s, nil
}

func pct(n, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Second:
		return fmt.Sprintf("%.2fs", d.Seconds())
	case d >= time.Millisecond:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d >= time.Microsecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	return fmt.Sprintf("%dns", d.Nanoseconds())
}
