package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ===========================================
// HOURLY FUNNEL RECORD
// ===========================================

// HourlyRecord is one upstream row: PIN generation and verification
// counts for one service, on one day, in one hour.
type HourlyRecord struct {
	AppServiceID string `json:"appServiceId"`

	// ActDate carries the business day. Some feeds only send Timestamp
	// ("2006-01-02 15:04:05"); DateValue picks whichever is present.
	ActDate   string `json:"actDate,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`

	Hrs            int   `json:"hrs"`
	PinGenSucCount int64 `json:"pinGenSucCount"`
	PinVerSucCount int64 `json:"pinVerSucCount"`

	// Descriptive attributes, uppercased once at ingestion.
	ServiceName  string `json:"serviceName"`
	Territory    string `json:"territory"`
	OperatorName string `json:"operatorname"`
	PartnerName  string `json:"partnerName"`
	ServiceOwner string `json:"service_owner"`
}

// rawHourlyRecord mirrors the loosely typed upstream payload.
type rawHourlyRecord struct {
	AppServiceID    json.RawMessage `json:"appServiceId"`
	ActDate         json.RawMessage `json:"actDate"`
	Timestamp       json.RawMessage `json:"timestamp"`
	Hrs             json.RawMessage `json:"hrs"`
	PinGenSucCount  json.RawMessage `json:"pinGenSucCount"`
	PinVerSucCount  json.RawMessage `json:"pinVerSucCount"`
	ServiceName     json.RawMessage `json:"serviceName"`
	Territory       json.RawMessage `json:"territory"`
	OperatorName    json.RawMessage `json:"operatorname"`
	OperatorNameAlt json.RawMessage `json:"operatorName"`
	PartnerName     json.RawMessage `json:"partnerName"`
	ServiceOwner    json.RawMessage `json:"service_owner"`
	ServiceOwnerAlt json.RawMessage `json:"serviceOwner"`
}

// UnmarshalJSON accepts ids and counts as either JSON numbers or strings,
// and the operatorName/serviceOwner spellings used by the partner feed.
func (r *HourlyRecord) UnmarshalJSON(data []byte) error {
	var raw rawHourlyRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var err error
	out := HourlyRecord{
		AppServiceID: flexString(raw.AppServiceID),
		ActDate:      flexString(raw.ActDate),
		Timestamp:    flexString(raw.Timestamp),
		ServiceName:  flexString(raw.ServiceName),
		Territory:    flexString(raw.Territory),
		OperatorName: firstNonEmpty(flexString(raw.OperatorName), flexString(raw.OperatorNameAlt)),
		PartnerName:  flexString(raw.PartnerName),
		ServiceOwner: firstNonEmpty(flexString(raw.ServiceOwner), flexString(raw.ServiceOwnerAlt)),
	}

	// A row without an hour has no slot.
	if flexString(raw.Hrs) == "" {
		return errors.New("missing hrs")
	}
	hrs, err := flexInt(raw.Hrs)
	if err != nil {
		return errors.Wrap(err, "hrs")
	}
	out.Hrs = int(hrs)

	if out.PinGenSucCount, err = flexInt(raw.PinGenSucCount); err != nil {
		return errors.Wrap(err, "pinGenSucCount")
	}
	if out.PinVerSucCount, err = flexInt(raw.PinVerSucCount); err != nil {
		return errors.Wrap(err, "pinVerSucCount")
	}

	*r = out
	return nil
}

// DateValue returns the raw date string the day key is derived from.
func (r HourlyRecord) DateValue() string {
	if v := strings.TrimSpace(r.ActDate); v != "" {
		return v
	}
	return strings.TrimSpace(r.Timestamp)
}

// Validate reports why a record cannot take part in grouping.
func (r HourlyRecord) Validate() error {
	switch {
	case r.AppServiceID == "":
		return errors.New("missing appServiceId")
	case r.DateValue() == "":
		return errors.New("missing actDate/timestamp")
	case r.Hrs < 0 || r.Hrs > 23:
		return errors.Errorf("hrs %d out of range 0-23", r.Hrs)
	case r.PinGenSucCount < 0 || r.PinVerSucCount < 0:
		return errors.New("negative count")
	}
	if _, err := ParseDay(r.DateValue()); err != nil {
		return err
	}
	return nil
}

// Normalized returns a copy with the id trimmed and every categorical
// field trimmed and uppercased, so comparisons never have to fold case.
func (r HourlyRecord) Normalized() HourlyRecord {
	r.AppServiceID = strings.TrimSpace(r.AppServiceID)
	r.ActDate = strings.TrimSpace(r.ActDate)
	r.Timestamp = strings.TrimSpace(r.Timestamp)
	r.ServiceName = NormalizeValue(r.ServiceName)
	r.Territory = NormalizeValue(r.Territory)
	r.OperatorName = NormalizeValue(r.OperatorName)
	r.PartnerName = NormalizeValue(r.PartnerName)
	r.ServiceOwner = NormalizeValue(r.ServiceOwner)
	return r
}

// NormalizeValue is the canonical form for categorical values.
func NormalizeValue(v string) string {
	return strings.ToUpper(strings.TrimSpace(v))
}

func flexString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	}
	// Numbers and anything else keep their literal text ("123" for 123).
	return string(raw)
}

func flexInt(raw json.RawMessage) (int64, error) {
	s := strings.TrimSpace(flexString(raw))
	if s == "" {
		return 0, nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.Errorf("not a number: %q", s)
	}
	return int64(f), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
