package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TaskTypeDownloadCrypto tags historical crypto candle downloads.
const TaskTypeDownloadCrypto = "download_crypto"

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTime parses a user supplied time in UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: cannot parse time %q", ErrInvalidParams, s)
}

// DownloadParams describes one crypto candle download request.
// Zero values fall back to collector defaults. CheckDataLength is a pointer
// so that an explicit 0 (threshold off) differs from unset.
type DownloadParams struct {
	Exchange        string   `json:"exchange"`
	Intervals       []string `json:"intervals"`
	Start           string   `json:"start_time,omitempty"`
	End             string   `json:"end_time,omitempty"`
	MaxWorkers      int      `json:"max_workers,omitempty"`
	MaxRounds       int      `json:"max_collector_count,omitempty"`
	DelaySeconds    float64  `json:"delay,omitempty"`
	CheckDataLength *int     `json:"check_data_length,omitempty"`
	LimitNums       int      `json:"limit_nums,omitempty"`
	CandleType      string   `json:"candle_type,omitempty"`
	Symbols         []string `json:"symbols,omitempty"`
	SaveDir         string   `json:"save_dir,omitempty"`
}

func (p DownloadParams) TaskType() string { return TaskTypeDownloadCrypto }

// Validate checks everything that can be checked without network access.
func (p DownloadParams) Validate() error {
	if strings.TrimSpace(p.Exchange) == "" {
		return fmt.Errorf("%w: exchange is required", ErrInvalidParams)
	}
	if len(p.Intervals) == 0 {
		return fmt.Errorf("%w: at least one interval is required", ErrInvalidParams)
	}
	for _, iv := range p.Intervals {
		if _, err := ParseInterval(iv); err != nil {
			return err
		}
	}
	if _, err := ParseContractKind(p.CandleType); err != nil {
		return err
	}
	if p.MaxWorkers < 0 || p.MaxRounds < 0 || p.SmallSampleThreshold() < 0 || p.LimitNums < 0 || p.DelaySeconds < 0 {
		return fmt.Errorf("%w: numeric options must not be negative", ErrInvalidParams)
	}
	start, end, err := p.Window()
	if err != nil {
		return err
	}
	if !start.IsZero() && !end.IsZero() && !start.Before(end) {
		return fmt.Errorf("%w: start_time must be before end_time", ErrInvalidParams)
	}
	return nil
}

// Window returns the parsed start and end. Unset bounds are zero.
func (p DownloadParams) Window() (start, end time.Time, err error) {
	if p.Start != "" {
		if start, err = ParseTime(p.Start); err != nil {
			return
		}
	}
	if p.End != "" {
		end, err = ParseTime(p.End)
	}
	return
}

// Delay returns the per-symbol pause.
func (p DownloadParams) Delay() time.Duration {
	return time.Duration(p.DelaySeconds * float64(time.Second))
}

// WithDefaults fills the zero-valued tuning fields of p from d.
func (p DownloadParams) WithDefaults(d DownloadParams) DownloadParams {
	if p.MaxWorkers == 0 {
		p.MaxWorkers = d.MaxWorkers
	}
	if p.MaxRounds == 0 {
		p.MaxRounds = d.MaxRounds
	}
	if p.DelaySeconds == 0 {
		p.DelaySeconds = d.DelaySeconds
	}
	if p.CheckDataLength == nil && d.CheckDataLength != nil {
		p.CheckDataLength = IntRef(*d.CheckDataLength)
	}
	if p.SaveDir == "" {
		p.SaveDir = d.SaveDir
	}
	return p
}

// SmallSampleThreshold returns the small-sample row count, 0 when unset.
func (p DownloadParams) SmallSampleThreshold() int {
	if p.CheckDataLength == nil {
		return 0
	}
	return *p.CheckDataLength
}

// IntRef returns a pointer to n.
func IntRef(n int) *int {
	return &n
}

func (p DownloadParams) clone() DownloadParams {
	c := p
	if p.CheckDataLength != nil {
		c.CheckDataLength = IntRef(*p.CheckDataLength)
	}
	c.Intervals = append([]string(nil), p.Intervals...)
	if p.Symbols != nil {
		c.Symbols = append([]string(nil), p.Symbols...)
	}
	return c
}

// DecodeParams rebuilds typed params from their stored JSON form.
func DecodeParams(taskType string, raw []byte) (TaskParams, error) {
	switch taskType {
	case TaskTypeDownloadCrypto:
		var p DownloadParams
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, fmt.Errorf("decode %s params: %w", taskType, err)
			}
		}
		return p, nil
	}
	return nil, fmt.Errorf("unknown task type %q", taskType)
}
