package testutils

import (
	"testing"
	"time"

	"shifttrack/config"
	"shifttrack/shift"
)

// ShiftConfig is the standard office day used across tests: 10:30-18:30 IST with
// 5 minute graces, lunch 13:00-13:45 and tea 16:00-16:15.
func ShiftConfig(t *testing.T) config.ShiftConfig {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Fatalf("Failed to load Asia/Kolkata: %v", err)
	}
	return config.ShiftConfig{
		Timezone:     "Asia/Kolkata",
		Location:     loc,
		Start:        config.Clock{Hour: 10, Minute: 30},
		End:          config.Clock{Hour: 18, Minute: 30},
		MorningGrace: 5 * time.Minute,
		LunchStart:   config.Clock{Hour: 13, Minute: 0},
		LunchEnd:     config.Clock{Hour: 13, Minute: 45},
		LunchGrace:   5 * time.Minute,
		TeaStart:     config.Clock{Hour: 16, Minute: 0},
		TeaEnd:       config.Clock{Hour: 16, Minute: 15},
		TeaGrace:     5 * time.Minute,
	}
}

func Policy(t *testing.T) *shift.Policy {
	t.Helper()
	return shift.NewPolicy(ShiftConfig(t))
}

// At returns hh:mm on 2024-03-11 in the policy's zone, plus dayOffset days.
func At(p *shift.Policy, dayOffset, hour, minute int) time.Time {
	return time.Date(2024, time.March, 11+dayOffset, hour, minute, 0, 0, p.Location())
}

func WatcherConfig() config.WatcherConfig {
	return config.WatcherConfig{
		IdleThreshold:       5 * time.Minute,
		DisconnectThreshold: 5 * time.Minute,
		Interval:            time.Minute,
		DailyCloseSpec:      "20 10 * * *",
		ArchiveRetention:    90,
		DeleteRetention:     365,
		ArchiveChunk:        2,
	}
}
