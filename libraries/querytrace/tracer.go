package querytrace

import (
	"fmt"
	"strings"
	"time"

	"github.com/greymass/abicached/libraries/logger"
)

const CategoryDebug = "debug-lookup"

// Tracer times the steps of one API request and logs them as a tree under
// the debug-lookup category. A disabled Tracer records nothing.
type Tracer struct {
	enabled  bool
	start    time.Time
	endpoint string
	subject  string
	outcome  string
	steps    []step
}

type step struct {
	component string
	action    string
	duration  time.Duration
	details   string
}

type StepTimer struct {
	tracer    *Tracer
	component string
	action    string
	start     time.Time
	details   string
}

type Output struct {
	TotalMs float64      `json:"total_ms"`
	Outcome string       `json:"outcome,omitempty"`
	Steps   []StepOutput `json:"steps"`
}

type StepOutput struct {
	Component  string  `json:"component"`
	Action     string  `json:"action"`
	DurationMs float64 `json:"duration_ms"`
	Details    string  `json:"details,omitempty"`
}

func Enabled() bool {
	return logger.IsCategoryEnabled(CategoryDebug)
}

func New(endpoint, subject string) *Tracer {
	if !Enabled() {
		return &Tracer{}
	}
	return &Tracer{
		enabled:  true,
		start:    time.Now(),
		endpoint: endpoint,
		subject:  subject,
		steps:    make([]step, 0, 4),
	}
}

func (t *Tracer) Enabled() bool {
	return t.enabled
}

func (t *Tracer) Step(component, action string) *StepTimer {
	if !t.enabled {
		return &StepTimer{}
	}
	return &StepTimer{tracer: t, component: component, action: action, start: time.Now()}
}

func (st *StepTimer) Details(format string, v ...interface{}) *StepTimer {
	if st.tracer != nil {
		st.details = fmt.Sprintf(format, v...)
	}
	return st
}

func (st *StepTimer) End() {
	if st.tracer == nil {
		return
	}
	st.tracer.steps = append(st.tracer.steps, step{
		component: st.component,
		action:    st.action,
		duration:  time.Since(st.start),
		details:   st.details,
	})
}

// SetOutcome records how the request was answered (found, absent, error).
func (t *Tracer) SetOutcome(outcome string) {
	if t.enabled {
		t.outcome = outcome
	}
}

func (t *Tracer) Log() {
	if !t.enabled {
		return
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "lookup endpoint=%s subject=%s total=%v", t.endpoint, t.subject, time.Since(t.start))
	if t.outcome != "" {
		fmt.Fprintf(&sb, " outcome=%s", t.outcome)
	}
	for i, s := range t.steps {
		prefix := "├─"
		if i == len(t.steps)-1 {
			prefix = "└─"
		}
		fmt.Fprintf(&sb, "\n  %s [%s] %s: %v", prefix, s.component, s.action, s.duration)
		if s.details != "" {
			fmt.Fprintf(&sb, " (%s)", s.details)
		}
	}
	logger.Printf(CategoryDebug, "%s", sb.String())
}

// Output is the trace in a form clients can receive with ?trace=true; nil
// when tracing is off.
func (t *Tracer) Output() *Output {
	if t == nil || !t.enabled {
		return nil
	}
	out := &Output{
		TotalMs: float64(time.Since(t.start).Microseconds()) / 1000.0,
		Outcome: t.outcome,
		Steps:   make([]StepOutput, 0, len(t.steps)),
	}
	for _, s := range t.steps {
		out.Steps = append(out.Steps, StepOutput{
			Component:  s.component,
			Action:     s.action,
			DurationMs: float64(s.duration.Microseconds()) / 1000.0,
			Details:    s.details,
		})
	}
	return out
}
