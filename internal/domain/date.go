package domain

import "time"

// tradeDateLayout is the exchange-native YYYYMMDD form used throughout the
// pipeline. Lexical order equals chronological order.
const tradeDateLayout = "20060102"

// ValidTradeDate reports whether s is a parseable YYYYMMDD date.
func ValidTradeDate(s string) bool {
	_, err := time.Parse(tradeDateLayout, s)
	return err == nil
}

// NextTradeDate returns the calendar day after a YYYYMMDD date. Used to pick
// the start of an incremental fetch; non-trading days come back empty from
// the data source, which is fine.
func NextTradeDate(s string) (string, error) {
	t, err := time.Parse(tradeDateLayout, s)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, 1).Format(tradeDateLayout), nil
}

// DisplayDate formats YYYYMMDD as YYYY-MM-DD for report output. Invalid
// input is returned unchanged.
func DisplayDate(s string) string {
	t, err := time.Parse(tradeDateLayout, s)
	if err != nil {
		return s
	}
	return t.Format("2006-01-02")
}

// TradeDate formats a time as YYYYMMDD.
func TradeDate(t time.Time) string {
	return t.Format(tradeDateLayout)
}
