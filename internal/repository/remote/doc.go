package remote

import (
	"strconv"
	"strings"
	"time"

	"github.com/cmlabs-hris/hris-checkin-go/internal/pkg/crm"
)

// Config names the record types used by the repositories.
type Config struct {
	RecordType   string
	OfficeType   string
	EmployeeType string
	Location     *time.Location
}

func (c Config) withDefaults() Config {
	if c.RecordType == "" {
		c.RecordType = "Attendance"
	}
	if c.OfficeType == "" {
		c.OfficeType = "Branch"
	}
	if c.EmployeeType == "" {
		c.EmployeeType = "Employee"
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	return c
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

func docString(d crm.Doc, key string) string {
	switch v := d[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func docFloat(d crm.Doc, key string) *float64 {
	switch v := d[key].(type) {
	case float64:
		return &v
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil
		}
		return &f
	}
	return nil
}

func docTime(d crm.Doc, key string, loc *time.Location) *time.Time {
	s := docString(d, key)
	if s == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return &t
		}
	}
	return nil
}
