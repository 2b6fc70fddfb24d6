package sizing

import (
	"fmt"
	"math"
	"strconv"

	"spotFlipBot/internal/domain"
	"spotFlipBot/internal/ports"
)

// relTol absorbs binary float error in the quantity/step division so that an
// exact multiple of the step is never floored down a whole step. It is
// relative to the quantity, so it can never lift a quantity across a step
// boundary by more than float noise.
const relTol = 1e-12

// StepPrecision returns the number of decimal places implied by a step size,
// e.g. 0.001 -> 3, 1 -> 0.
func StepPrecision(step float64) int {
	p := int(math.Ceil(-math.Log10(step)))
	if p < 0 {
		p = 0
	}
	return p
}

// FloorToStep returns the largest quantity <= qty that is an exact multiple
// of the step size, rounded to the step's decimal precision. It only floors;
// callers must already have cleared the exchange minimums. A step that is not
// yet known fails closed with ErrRulesUnavailable.
func FloorToStep(qty, step float64) (float64, error) {
	if step <= 0 {
		return 0, fmt.Errorf("step size %v: %w", step, ports.ErrRulesUnavailable)
	}
	if qty < 0 {
		return 0, fmt.Errorf("quantity %v is negative: %w", qty, ports.ErrInvalidRequest)
	}
	precision := StepPrecision(step)
	steps := math.Floor(qty / step * (1 + relTol))
	floored, err := roundToPrecision(steps*step, precision)
	if err != nil {
		return 0, err
	}
	// The tolerance may have crossed a step boundary when qty sits just
	// below a multiple; take the step below so the result never exceeds qty.
	if floored > qty {
		floored, err = roundToPrecision((steps-1)*step, precision)
		if err != nil {
			return 0, err
		}
	}
	return floored, nil
}

func roundToPrecision(v float64, precision int) (float64, error) {
	out, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', precision, 64), 64)
	if err != nil {
		return 0, fmt.Errorf("rounding quantity %v to precision %d: %w", v, precision, err)
	}
	return out, nil
}

// RoundForOrder floors qty to the rule step and formats it for the exchange
// API at step precision.
func RoundForOrder(qty float64, rules *domain.SymbolRules) (rounded float64, formatted string, err error) {
	if rules == nil {
		return 0, "", ports.ErrRulesUnavailable
	}
	rounded, err = FloorToStep(qty, rules.StepSize)
	if err != nil {
		return 0, "", err
	}
	return rounded, strconv.FormatFloat(rounded, 'f', StepPrecision(rules.StepSize), 64), nil
}
