package downstream

import (
	"errors"
	"fmt"
	"time"

	"github.com/Resinat/Dashgate/internal/model"
)

// RegisterRequest is the body accepted by the auth service's /register.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

// LoginRequest is the body accepted by the auth service's /login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SetModeRequest is the body accepted by the flag service's POST /mode.
type SetModeRequest struct {
	Mode string `json:"mode"`
}

// PlotRequest is the caller-facing plot description. When Y is empty the
// current buffer is plotted instead.
type PlotRequest struct {
	Title  string    `json:"title"`
	XLabel string    `json:"x_label"`
	YLabel string    `json:"y_label"`
	X      []any     `json:"x"`
	Y      []float64 `json:"y"`
}

// PlotSeries is the nested data object the plot service requires.
type PlotSeries struct {
	X []any     `json:"x"`
	Y []float64 `json:"y"`
}

// PlotEnvelope is the body sent to POST /plots.
type PlotEnvelope struct {
	Title  string     `json:"title"`
	XLabel string     `json:"x_label"`
	YLabel string     `json:"y_label"`
	Data   PlotSeries `json:"data"`
}

const (
	defaultPlotTitle  = "Sensor readings"
	defaultPlotXLabel = "timestamp"
	defaultPlotYLabel = "value"
)

// ErrNoPlotData is returned when neither the request nor the buffer has points.
var ErrNoPlotData = errors.New("y: no data points to plot")

// Empty reports whether env has no points to plot.
func (env PlotEnvelope) Empty() bool {
	return len(env.Data.Y) == 0
}

// NewPlotEnvelope reshapes req into the plot service envelope. points is
// used when req carries no series. With neither, the zero envelope is
// returned together with ErrNoPlotData.
func NewPlotEnvelope(req PlotRequest, points []model.MeasurementPoint) (PlotEnvelope, error) {
	env := PlotEnvelope{
		Title:  orDefault(req.Title, defaultPlotTitle),
		XLabel: orDefault(req.XLabel, defaultPlotXLabel),
		YLabel: orDefault(req.YLabel, defaultPlotYLabel),
	}

	if len(req.Y) == 0 {
		if len(req.X) > 0 {
			return PlotEnvelope{}, fmt.Errorf("x: given without y")
		}
		if len(points) == 0 {
			return PlotEnvelope{}, ErrNoPlotData
		}
		env.Data.X = make([]any, len(points))
		env.Data.Y = make([]float64, len(points))
		for i, p := range points {
			env.Data.X[i] = p.Timestamp
			env.Data.Y[i] = p.Value
		}
		return env, nil
	}

	env.Data.Y = append([]float64(nil), req.Y...)
	switch {
	case len(req.X) == 0:
		env.Data.X = make([]any, len(req.Y))
		for i := range req.Y {
			env.Data.X[i] = i
		}
	case len(req.X) != len(req.Y):
		return PlotEnvelope{}, fmt.Errorf("x: length %d does not match y length %d", len(req.X), len(req.Y))
	default:
		env.Data.X = append([]any(nil), req.X...)
	}
	return env, nil
}

// ReportRequest is the caller-facing report description.
type ReportRequest struct {
	Title               string `json:"title"`
	IncludeMeasurements bool   `json:"include_measurements"`
}

// ReportEnvelope is the body sent to POST /compile.
type ReportEnvelope struct {
	Title        string                   `json:"title"`
	GeneratedAt  string                   `json:"generated_at"`
	Stats        model.StatsSnapshot      `json:"stats"`
	Measurements []model.MeasurementPoint `json:"measurements,omitempty"`
}

const defaultReportTitle = "Rolling statistics report"

// NewReportEnvelope builds the compile body from the buffer contents.
func NewReportEnvelope(req ReportRequest, stats model.StatsSnapshot, points []model.MeasurementPoint, now time.Time) ReportEnvelope {
	env := ReportEnvelope{
		Title:       orDefault(req.Title, defaultReportTitle),
		GeneratedAt: now.Format(time.RFC3339),
		Stats:       stats,
	}
	if req.IncludeMeasurements {
		env.Measurements = append([]model.MeasurementPoint{}, points...)
	}
	return env
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
