package eval

import "math"

// InfiniteBurnRate is the saturation value reported when the normal
// burn rate denominator is zero but errors were observed. The
// calculator never divides by zero and never panics.
const InfiniteBurnRate = math.MaxFloat64

// ErrorRate returns failed/total over a window. A window with no
// outcomes reports a 0 rate and noData=true so idle services do not
// false-alarm but are still distinguishable in diagnostics.
func ErrorRate(failed, total int) (rate float64, noData bool) {
	if total <= 0 {
		return 0, true
	}
	if failed < 0 {
		failed = 0
	}
	if failed > total {
		failed = total
	}
	return float64(failed) / float64(total), false
}

// NormalBurnRate returns the fraction of the long-term error budget a
// short window may consume when errors arrive at exactly the allowed
// long-term rate:
//
//	target_error_rate / (long_window / short_window)
func NormalBurnRate(targetPercent float64, longWindowMinutes, shortWindowMinutes int) float64 {
	if longWindowMinutes <= 0 || shortWindowMinutes <= 0 {
		return 0
	}
	targetErrorRate := (100 - targetPercent) / 100
	if targetErrorRate <= 0 {
		return 0
	}
	return targetErrorRate / (float64(longWindowMinutes) / float64(shortWindowMinutes))
}

// BurnRateMultiple is the observed error rate expressed as a multiple
// of the normal burn rate. A zero denominator with observed errors
// saturates to InfiniteBurnRate.
func BurnRateMultiple(currentErrorRate, normalBurnRate float64) float64 {
	if normalBurnRate <= 0 {
		if currentErrorRate <= 0 {
			return 0
		}
		return InfiniteBurnRate
	}
	return currentErrorRate / normalBurnRate
}

// BudgetConsumedPercent is the share of the long-term error budget
// consumed, from the error rate accumulated over the long-term
// measurement window. A 100% target leaves no budget: any observed
// error means the budget is fully consumed.
func BudgetConsumedPercent(longTermErrorRate, targetPercent float64) float64 {
	targetErrorRate := (100 - targetPercent) / 100
	if longTermErrorRate < 0 {
		longTermErrorRate = 0
	}
	if targetErrorRate <= 0 {
		if longTermErrorRate == 0 {
			return 0
		}
		return 100
	}
	return longTermErrorRate / targetErrorRate * 100
}

// BudgetRemainingPercent clamps the remaining budget to [0, 100].
func BudgetRemainingPercent(consumedPercent float64) float64 {
	remaining := 100 - consumedPercent
	if remaining < 0 {
		return 0
	}
	if remaining > 100 {
		return 100
	}
	return remaining
}
