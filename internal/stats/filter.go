package stats

// Filter decides whether an event is eligible for recording.
type Filter struct {
	drivers map[Driver]struct{}
}

// NewFilter returns a Filter allowing the given drivers, or DefaultDrivers
// when none are given.
func NewFilter(drivers ...Driver) *Filter {
	if len(drivers) == 0 {
		drivers = DefaultDrivers
	}
	f := &Filter{drivers: make(map[Driver]struct{}, len(drivers))}
	for _, d := range drivers {
		f.drivers[d] = struct{}{}
	}
	return f
}

// Eligible returns nil when job should be recorded, ErrUnsupportedDriver
// when its driver is not allowed, and ErrNotOptedIn when the handler does
// not implement Collector.
func (f *Filter) Eligible(job JobInfo) error {
	if _, ok := f.drivers[job.Driver]; !ok {
		return ErrUnsupportedDriver
	}
	if _, ok := job.Handler.(Collector); !ok {
		return ErrNotOptedIn
	}
	return nil
}
