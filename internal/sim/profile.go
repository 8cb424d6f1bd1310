package sim

// Profile bundles the speed, following-distance and pedal behaviour of a
// driver. Vehicles hold a profile by value; there is no behavioural
// subclassing beyond it and the optional hooks.
type Profile struct {
	Name       string
	SpeedMult  float64 // scales the road speed limit
	SafetyMult float64 // scales perception radius and following distance
	AccelRate  float64 // speed gained per tick when clear
	BrakeRate  float64 // speed shed per tick when braking
}

var (
	// ProfileCautious drives slowly and keeps long gaps.
	ProfileCautious = Profile{Name: "CAUTIOUS", SpeedMult: 0.8, SafetyMult: 1.5, AccelRate: 0.05, BrakeRate: 0.2}
	// ProfileNormal is the baseline driver.
	ProfileNormal = Profile{Name: "NORMAL", SpeedMult: 1.0, SafetyMult: 1.0, AccelRate: 0.1, BrakeRate: 0.3}
	// ProfileAggressive speeds and tailgates.
	ProfileAggressive = Profile{Name: "AGGRESSIVE", SpeedMult: 1.2, SafetyMult: 0.7, AccelRate: 0.2, BrakeRate: 0.5}
)

// Profiles lists the selectable driving profiles.
func Profiles() []Profile {
	return []Profile{ProfileCautious, ProfileNormal, ProfileAggressive}
}

// ProfileByName returns the named profile, falling back to NORMAL for any
// unknown name so vehicle construction never fails on bad arguments.
func ProfileByName(name string) Profile {
	for _, p := range Profiles() {
		if p.Name == name {
			return p
		}
	}
	return ProfileNormal
}
