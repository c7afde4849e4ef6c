package confusion

// Metric names, in the order MetricSet.Values reports them.
const (
	Accuracy    = "Accuracy"
	Precision   = "Precision"
	Recall      = "Recall"
	Specificity = "Specificity"
	F1Score     = "F1-Score"
	IoU         = "IoU"
	Dice        = "Dice"
	FPR         = "FPR"
)

// MetricNames lists every derived metric.
var MetricNames = []string{Accuracy, Precision, Recall, Specificity, F1Score, IoU, Dice, FPR}

// ReportMetricNames lists the metrics shown in per-class tables. FPR only
// feeds the ROC curves.
var ReportMetricNames = []string{Accuracy, Precision, Recall, Specificity, F1Score, IoU, Dice}

// HeadlineMetricNames lists the metrics averaged in macro tables.
var HeadlineMetricNames = []string{Precision, Recall, F1Score, IoU}

// MetricSet holds the metrics derived from one Quadruple.
type MetricSet struct {
	Accuracy    float64
	Precision   float64
	Recall      float64
	Specificity float64
	F1          float64
	IoU         float64
	Dice        float64
	FPR         float64
}

// Derive computes every metric from q. A metric whose denominator is zero
// is reported as 0.
func Derive(q Quadruple) MetricSet {
	m := MetricSet{
		Accuracy:    ratio(q.TP+q.TN, q.Total()),
		Precision:   ratio(q.TP, q.TP+q.FP),
		Recall:      ratio(q.TP, q.TP+q.FN),
		Specificity: ratio(q.TN, q.TN+q.FP),
		IoU:         ratio(q.TP, q.TP+q.FN+q.FP),
		Dice:        ratio(2*q.TP, 2*q.TP+q.FN+q.FP),
		FPR:         ratio(q.FP, q.FP+q.TN),
	}
	m.F1 = ratio(2*m.Precision*m.Recall, m.Precision+m.Recall)
	return m
}

// Get returns the metric called name.
func (m MetricSet) Get(name string) (float64, bool) {
	switch name {
	case Accuracy:
		return m.Accuracy, true
	case Precision:
		return m.Precision, true
	case Recall:
		return m.Recall, true
	case Specificity:
		return m.Specificity, true
	case F1Score:
		return m.F1, true
	case IoU:
		return m.IoU, true
	case Dice:
		return m.Dice, true
	case FPR:
		return m.FPR, true
	}
	return 0, false
}

// Values returns the metrics in MetricNames order.
func (m MetricSet) Values() []float64 {
	return m.Select(MetricNames)
}

// ReportValues returns the metrics in ReportMetricNames order.
func (m MetricSet) ReportValues() []float64 {
	return m.Select(ReportMetricNames)
}

// Select returns the named metrics in order. Unknown names yield 0.
func (m MetricSet) Select(names []string) []float64 {
	out := make([]float64, len(names))
	for i, name := range names {
		out[i], _ = m.Get(name)
	}
	return out
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
