package calendar

import (
	"fmt"
	"os"
	"time"

	"github.com/rickar/cal/v2"
	"gopkg.in/yaml.v3"
)

// holidayFile is the on-disk layout of a holidays file:
//
//	recurring:
//	  - {name: New Year, month: 1, day: 1}
//	one_time:
//	  - {name: Office move, date: 2026-06-12}
type holidayFile struct {
	Recurring []struct {
		Name  string `yaml:"name"`
		Month int    `yaml:"month"`
		Day   int    `yaml:"day"`
	} `yaml:"recurring"`
	OneTime []struct {
		Name string `yaml:"name"`
		Date string `yaml:"date"`
	} `yaml:"one_time"`
}

// LoadHolidays reads a YAML holidays file. An empty path yields no holidays.
func LoadHolidays(path string) ([]*cal.Holiday, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read holidays %s: %w", path, err)
	}
	return ParseHolidays(data)
}

// ParseHolidays converts YAML holiday definitions to rickar/cal holidays.
func ParseHolidays(data []byte) ([]*cal.Holiday, error) {
	var file holidayFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse holidays: %w", err)
	}

	holidays := make([]*cal.Holiday, 0, len(file.Recurring)+len(file.OneTime))
	for _, h := range file.Recurring {
		if h.Month < 1 || h.Month > 12 || h.Day < 1 || h.Day > 31 {
			return nil, fmt.Errorf("holiday %q: invalid month/day %d/%d", h.Name, h.Month, h.Day)
		}
		holidays = append(holidays, &cal.Holiday{
			Name:  h.Name,
			Type:  cal.ObservancePublic,
			Month: time.Month(h.Month),
			Day:   h.Day,
			Func:  cal.CalcDayOfMonth,
		})
	}
	for _, h := range file.OneTime {
		date, err := time.Parse("2006-01-02", h.Date)
		if err != nil {
			return nil, fmt.Errorf("holiday %q: %w", h.Name, err)
		}
		holidays = append(holidays, &cal.Holiday{
			Name:      h.Name,
			Type:      cal.ObservancePublic,
			Month:     date.Month(),
			Day:       date.Day(),
			Func:      cal.CalcDayOfMonth,
			StartYear: date.Year(),
			EndYear:   date.Year(),
		})
	}
	return holidays, nil
}
