package tempr

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Reading is one temperature sample.
type Reading struct {
	Celsius float64
	Unit    Unit
}

// Value returns the reading in its Unit.
func (r Reading) Value() float64 {
	if r.Unit == Fahrenheit {
		return CelsiusToFahrenheit(r.Celsius)
	}
	return r.Celsius
}

func (r Reading) String() string {
	return fmt.Sprintf("%0.1f°%v", r.Value(), r.Unit)
}

// Sampler produces one reading per call.
type Sampler struct {
	session *Session
}

func NewSampler(session *Session) *Sampler {
	return &Sampler{session: session}
}

// Read opens the device, samples it once and converts the result. Device
// errors are returned unchanged.
func (s *Sampler) Read(unit Unit) (Reading, error) {
	h, err := s.session.Open()
	if err != nil {
		return Reading{}, err
	}
	raw, err := s.session.Sample(h)
	if err != nil {
		return Reading{}, err
	}
	r := Reading{Celsius: RawToCelsius(raw), Unit: unit}
	log.Debugf("raw sample % x -> %v", raw[:], r)
	return r, nil
}
