package evaluation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/modelbay-labs/modelbay-go/internal/domain"
)

// Threshold keys select which metric a minimum applies to. Plain keys
// ("precision", "recall", "f1") check the aggregate; "slice:<name>:<metric>"
// keys opt the named slice into gating. Slices without a threshold are
// reported but never block.
const slicePrefix = "slice:"

// Verdict compares a report's metrics against thresholds and returns whether
// every minimum was met, plus one human-readable line per violation.
func Verdict(overall domain.Metrics, slices map[string]domain.Metrics, thresholds map[string]float64) (bool, []string, error) {
	keys := make([]string, 0, len(thresholds))
	for k := range thresholds {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var failures []string
	for _, key := range keys {
		minimum := thresholds[key]
		actual, err := lookupMetric(overall, slices, key)
		if err != nil {
			return false, nil, err
		}
		if actual < minimum {
			failures = append(failures, fmt.Sprintf("%s=%.4f below minimum %.4f", key, actual, minimum))
		}
	}
	return len(failures) == 0, failures, nil
}

func lookupMetric(overall domain.Metrics, slices map[string]domain.Metrics, key string) (float64, error) {
	if strings.HasPrefix(key, slicePrefix) {
		parts := strings.SplitN(strings.TrimPrefix(key, slicePrefix), ":", 2)
		if len(parts) != 2 {
			return 0, fmt.Errorf("threshold key %q: want slice:<name>:<metric>", key)
		}
		m, ok := slices[parts[0]]
		if !ok {
			return 0, fmt.Errorf("threshold key %q names unknown slice %q", key, parts[0])
		}
		return metricField(m, parts[1], key)
	}
	return metricField(overall, key, key)
}

func metricField(m domain.Metrics, name, key string) (float64, error) {
	switch name {
	case "precision":
		return m.Precision, nil
	case "recall":
		return m.Recall, nil
	case "f1":
		return m.F1, nil
	default:
		return 0, fmt.Errorf("threshold key %q names unknown metric %q", key, name)
	}
}
