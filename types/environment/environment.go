package environment

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// Environment is where the device is believed to be, which decides
// which estimator the fused location trusts.
type Environment int

const (
	Outdoor Environment = iota
	Indoor
	Transition
	Unknown Environment = -1
)

var All = []Environment{Outdoor, Indoor, Transition}

var (
	envOutdoor    = regexp.MustCompile(`(?i)^out(door)?s?$`)
	envIndoor     = regexp.MustCompile(`(?i)^in(door)?s?$`)
	envTransition = regexp.MustCompile(`(?i)^trans(ition)?(ing)?$`)
)

// IsOutdoor is true when GNSS alone should be trusted.
func (e Environment) IsOutdoor() bool { return e == Outdoor }

// IsIndoor is true when GNSS is unusable and PDR/beacons are trusted.
func (e Environment) IsIndoor() bool { return e == Indoor }

// IsTransition is true while both sources are blended.
func (e Environment) IsTransition() bool { return e == Transition }

// UsesIndoorProvider reports whether the PDR/beacon estimator runs in e.
func (e Environment) UsesIndoorProvider() bool { return e == Indoor || e == Transition }

// UsesGNSSProvider reports whether the GNSS estimator runs in e.
func (e Environment) UsesGNSSProvider() bool { return e == Outdoor || e == Transition }

func (e Environment) IsKnown() bool { return e >= Outdoor && e <= Transition }

// String implements the Stringer interface.
func (e Environment) String() string {
	switch e {
	case Outdoor:
		return "OUTDOOR"
	case Indoor:
		return "INDOOR"
	case Transition:
		return "TRANSITION"
	}
	return "UNKNOWN"
}

// Emoji returns a single emoji representation of the environment.
func (e Environment) Emoji() string {
	switch e {
	case Outdoor:
		return "🌤"
	case Indoor:
		return "🏢"
	case Transition:
		return "🚪"
	}
	return "❓"
}

// Parse matches loose spellings like "outdoor", "IN", "transitioning".
func Parse(s string) Environment {
	switch {
	case envOutdoor.MatchString(s):
		return Outdoor
	case envIndoor.MatchString(s):
		return Indoor
	case envTransition.MatchString(s):
		return Transition
	}
	return Unknown
}

func (e Environment) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.String())
}

func (e *Environment) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v := Parse(s)
	if v == Unknown && s != Unknown.String() {
		return fmt.Errorf("unknown environment %q", s)
	}
	*e = v
	return nil
}
