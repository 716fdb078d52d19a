package filestore

import "time"

const rfc3339Milli = "2006-01-02T15:04:05.000Z07:00"

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(rfc3339Milli, s)
}
