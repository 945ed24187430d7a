package closing

import (
	"fmt"
	"time"
)

// DateLayout is the canonical business-date format
const DateLayout = "2006-01-02"

// ResolveBusinessDate validates an explicit YYYY-MM-DD argument, or when the
// argument is empty computes yesterday in the business timezone. The business
// date is an accounting label, distinct from wall-clock processing time.
func ResolveBusinessDate(arg, timezone string, now time.Time) (string, error) {
	if arg != "" {
		if _, err := time.Parse(DateLayout, arg); err != nil {
			return "", fmt.Errorf("invalid business date %q: %w", arg, err)
		}
		return arg, nil
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return "", fmt.Errorf("invalid business timezone %q: %w", timezone, err)
	}
	return now.In(loc).AddDate(0, 0, -1).Format(DateLayout), nil
}

// WindowForDate builds the half-open window [00:00, 24:00) of the business
// date in the business timezone, expressed as UTC instants.
func WindowForDate(businessDate, timezone string) (Window, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return Window{}, fmt.Errorf("invalid business timezone %q: %w", timezone, err)
	}

	start, err := time.ParseInLocation(DateLayout, businessDate, loc)
	if err != nil {
		return Window{}, fmt.Errorf("invalid business date %q: %w", businessDate, err)
	}

	from := start.UTC()
	to := start.AddDate(0, 0, 1).UTC()
	return Window{
		From:    from,
		To:      to,
		FromISO: from.Format(time.RFC3339),
		ToISO:   to.Format(time.RFC3339),
	}, nil
}
