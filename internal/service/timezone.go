package service

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"remindme/internal/model"
)

// ErrUnknownTimezone is returned for names that are not IANA identifiers.
var ErrUnknownTimezone = errors.New("unknown timezone")

// LocalTime is an instant seen from a particular timezone.
type LocalTime struct {
	Time      time.Time
	Date      string        // local calendar date, model.DateLayout
	TimeOfDay time.Duration // wall clock since local midnight
	Offset    string        // ±HH:MM
}

// TimezoneResolver converts instants to local wall-clock values.
// Loaded locations are cached; it is safe for concurrent use.
type TimezoneResolver struct {
	mu    sync.RWMutex
	cache map[string]*time.Location
}

func NewTimezoneResolver() *TimezoneResolver {
	return &TimezoneResolver{cache: make(map[string]*time.Location)}
}

// Location loads the named IANA timezone.
func (r *TimezoneResolver) Location(name string) (*time.Location, error) {
	r.mu.RLock()
	loc, ok := r.cache[name]
	r.mu.RUnlock()
	if ok {
		return loc, nil
	}

	// LoadLocation maps "" to UTC and "Local" to the server zone. Neither is
	// a user timezone.
	if name == "" || name == "Local" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTimezone, name)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTimezone, name)
	}

	r.mu.Lock()
	r.cache[name] = loc
	r.mu.Unlock()
	return loc, nil
}

// Validate checks that name can be resolved.
func (r *TimezoneResolver) Validate(name string) error {
	_, err := r.Location(name)
	return err
}

// LocalNow returns the local date, time of day and UTC offset of instant in
// the named timezone.
func (r *TimezoneResolver) LocalNow(name string, instant time.Time) (LocalTime, error) {
	loc, err := r.Location(name)
	if err != nil {
		return LocalTime{}, err
	}
	local := instant.In(loc)
	return LocalTime{
		Time: local,
		Date: model.FormatDate(local),
		TimeOfDay: time.Duration(local.Hour())*time.Hour +
			time.Duration(local.Minute())*time.Minute +
			time.Duration(local.Second())*time.Second +
			time.Duration(local.Nanosecond()),
		Offset: local.Format("-07:00"),
	}, nil
}

// InWindow reports whether local lies in [from, to+grace]. Both bounds belong
// to the same local day, so a window with from > to never matches and
// to+grace does not wrap past midnight.
func InWindow(from, to model.TimeOfDay, grace, local time.Duration) bool {
	return from.Duration() <= local && local <= to.Duration()+grace
}
