package ps360

import (
	"fmt"
	"time"
)

// Order is a completed order returned by Explorer.BrowseOrders. Only the
// fields the poller needs are modelled.
type Order struct {
	ReportID         int64
	LastModifiedDate time.Time
}

// ReportEvent is one entry from Report.GetReportEvents.
type ReportEvent struct {
	Type           string
	EventTime      time.Time
	Workstation    string
	AdditionalInfo string
	AccountID      int64
	AccountName    string
}

// SignInInfo identifies the service account session.
type SignInInfo struct {
	AccountID int64
	FirstName string
	LastName  string
	SessionID string
}

// rasTime unmarshals the timestamp formats the RAS services emit:
// ISO 8601 with or without fractional seconds, zoned or naive.
type rasTime struct {
	time.Time
}

var rasTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func (t *rasTime) UnmarshalText(b []byte) error {
	s := string(b)
	for _, layout := range rasTimeLayouts {
		parsed, err := time.ParseInLocation(layout, s, time.Local)
		if err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("cannot parse RAS timestamp %q", s)
}
