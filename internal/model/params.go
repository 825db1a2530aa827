package model

import (
	"fmt"
	"strconv"

	"github.com/rotisserie/eris"
)

// Kernel is the KDE kernel family.
type Kernel string

const (
	KernelGaussian     Kernel = "gaussian"
	KernelEpanechnikov Kernel = "epanechnikov"
)

// Metric is the distance metric used by the KDE.
type Metric string

const (
	MetricEuclidean Metric = "euclidean"
	MetricHaversine Metric = "haversine"
	MetricNone      Metric = "none"
)

// ParseKernel validates a kernel name.
func ParseKernel(s string) (Kernel, error) {
	switch k := Kernel(s); k {
	case KernelGaussian, KernelEpanechnikov:
		return k, nil
	}
	return "", eris.Wrapf(ErrConfiguration, "model: unsupported kernel %q", s)
}

// ParseMetric validates a metric name.
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(s); m {
	case MetricEuclidean, MetricHaversine, MetricNone:
		return m, nil
	}
	return "", eris.Wrapf(ErrConfiguration, "model: unsupported metric %q", s)
}

// Params is the run's parameter signature. Every persisted file name is
// derived from it so later stages can locate files without an index.
type Params struct {
	Bandwidth       float64
	Kernel          Kernel
	Metric          Metric
	LimitMovement   bool
	MovementLimitKM float64
	EPSG            int
}

// Validate checks every enumerated and numeric option.
func (p Params) Validate() error {
	if !(p.Bandwidth > 0) {
		return eris.Wrapf(ErrConfiguration, "model: bandwidth must be positive, got %v", p.Bandwidth)
	}
	if _, err := ParseKernel(string(p.Kernel)); err != nil {
		return err
	}
	if _, err := ParseMetric(string(p.Metric)); err != nil {
		return err
	}
	if p.LimitMovement && !(p.MovementLimitKM > 0) {
		return eris.Wrapf(ErrConfiguration, "model: movement limit must be positive, got %v", p.MovementLimitKM)
	}
	if p.EPSG <= 0 {
		return eris.Wrapf(ErrConfiguration, "model: invalid epsg %d", p.EPSG)
	}
	return nil
}

// MovementLimitLabel is the movement-limit part of the signature: the limit in
// kilometers, or "no" when movements are not limited.
func (p Params) MovementLimitLabel() string {
	if !p.LimitMovement {
		return "no"
	}
	return formatNumber(p.MovementLimitKM)
}

// Signature renders the parameters as used in file names, e.g.
// "25000BW_200movelimit_gaussian_euclidean".
func (p Params) Signature() string {
	return fmt.Sprintf("%sBW_%smovelimit_%s_%s", formatNumber(p.Bandwidth), p.MovementLimitLabel(), p.Kernel, p.Metric)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
