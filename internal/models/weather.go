package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MissingSentinel is the source-file value that denotes a missing reading.
const MissingSentinel = -9999

// Station represents a weather monitoring station, one per source file.
type Station struct {
	StationID string    `json:"station_id" db:"station_id"`
	State     string    `json:"state" db:"state"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Observation is one raw per-day, per-station weather reading.
// Temperatures are integer tenths of a degree, precipitation integer
// hundredths; a nil pointer means the source carried the -9999 sentinel.
// The date stays an 8-character YYYYMMDD string: year extraction and
// duplicate grouping depend on the exact text layout.
type Observation struct {
	ID                 int64     `json:"id" db:"id"`
	Date               string    `json:"date" db:"date"`
	MaxTemp            *int      `json:"max_temp,omitempty" db:"max_temp"`
	MinTemp            *int      `json:"min_temp,omitempty" db:"min_temp"`
	Precipitation      *int      `json:"precipitation,omitempty" db:"precipitation"`
	WeatherStationID   string    `json:"weather_station_id" db:"weather_station_id"`
	IngestionTimestamp time.Time `json:"ingestion_timestamp" db:"ingestion_timestamp"`
}

// Year extracts the year from the observation date's 4-character prefix.
func (o *Observation) Year() int {
	year, _ := strconv.Atoi(o.Date[:4])
	return year
}

// YearlyStat is one derived per-year, per-station aggregate row.
// Aggregate fields are nil when every contributing observation was
// missing that reading. ID is the surrogate identity used as the
// tie-breaker during duplicate removal (highest wins).
type YearlyStat struct {
	ID                 int64     `json:"id" db:"id"`
	Year               int       `json:"year" db:"year"`
	WeatherStationID   string    `json:"weather_station_id" db:"weather_station_id"`
	AvgMaxTemp         *float64  `json:"avg_max_temp,omitempty" db:"avg_max_temp"`
	AvgMinTemp         *float64  `json:"avg_min_temp,omitempty" db:"avg_min_temp"`
	TotalPrecipitation *float64  `json:"total_precipitation,omitempty" db:"total_precipitation"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
}

// ParseObservation converts one tab-separated line into an Observation.
// Expected layout: DATE(YYYYMMDD) \t MAX_TEMP \t MIN_TEMP \t PRECIPITATION,
// integer fields, -9999 meaning missing. The ingestion timestamp is a
// parameter so callers own the clock and the function stays pure.
func ParseObservation(line, stationID string, ingestedAt time.Time) (*Observation, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != 4 {
		return nil, &ParseError{
			Field:   "line",
			Value:   line,
			Message: fmt.Sprintf("expected 4 tab-separated fields, got %d", len(fields)),
		}
	}

	date := strings.TrimSpace(fields[0])
	if len(date) != 8 {
		return nil, &ParseError{
			Field:   "date",
			Value:   date,
			Message: "expected 8-character YYYYMMDD date",
		}
	}

	maxTemp, err := parseReading("max_temp", fields[1])
	if err != nil {
		return nil, err
	}
	minTemp, err := parseReading("min_temp", fields[2])
	if err != nil {
		return nil, err
	}
	precip, err := parseReading("precipitation", fields[3])
	if err != nil {
		return nil, err
	}

	return &Observation{
		Date:               date,
		MaxTemp:            maxTemp,
		MinTemp:            minTemp,
		Precipitation:      precip,
		WeatherStationID:   stationID,
		IngestionTimestamp: ingestedAt,
	}, nil
}

// parseReading parses a numeric field, mapping the sentinel to nil.
func parseReading(field, raw string) (*int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return nil, &ParseError{
			Field:   field,
			Value:   raw,
			Message: fmt.Sprintf("invalid integer for %s", field),
		}
	}
	if value == MissingSentinel {
		return nil, nil
	}
	return &value, nil
}

// ParseError represents a malformed line or field in a source file.
type ParseError struct {
	Field   string
	Value   string
	Message string
}

func (e *ParseError) Error() string {
	return e.Message
}

// IsTransient returns false as parse errors are permanent.
func (e *ParseError) IsTransient() bool {
	return false
}
