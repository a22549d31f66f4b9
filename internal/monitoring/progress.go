package monitoring

import "math"

// DefaultProgressInterval is the frame interval between progress lines.
const DefaultProgressInterval = 1000

// Progress reports loop completion as a percentage every Interval steps.
type Progress struct {
	Total    int
	Interval int
	Logf     func(format string, v ...interface{})
}

// NewProgress returns a reporter for total steps. interval <= 0 selects
// DefaultProgressInterval; a nil logf uses Logf at call time.
func NewProgress(total, interval int, logf func(format string, v ...interface{})) *Progress {
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	return &Progress{Total: total, Interval: interval, Logf: logf}
}

// Step reports after step i when i is a non-zero multiple of the interval.
// It returns true when a line was emitted.
func (p *Progress) Step(i int) bool {
	if i == 0 || p.Total <= 0 || i%p.Interval != 0 {
		return false
	}
	p.logf()("%.2f %%", Percent(i, p.Total))
	return true
}

// Done reports completion.
func (p *Progress) Done() {
	p.logf()("100%%")
}

func (p *Progress) logf() func(format string, v ...interface{}) {
	if p.Logf != nil {
		return p.Logf
	}
	return Logf
}

// Percent returns 100*i/total rounded to two decimals.
func Percent(i, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(i)/float64(total)*10000) / 100
}
