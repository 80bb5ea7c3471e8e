package common

// All units are in metric:
// - Speed is in m/s
// - Distance is in meters
// - Time is in seconds
// - Acceleration is in m/s^2
// - Pressure is in hectopascals (hPa), which is what phone barometers report
// - Magnetic field strength is in microtesla (µT)

const Gravity = 9.81
const EarthRadius = 6371000.0

const PressureSeaLevel = 1013.25 // hPa

// Earth's field is 25-65 µT at the surface; anything outside is local interference.
const MagneticFieldMin = 25.0
const MagneticFieldMax = 65.0

const SpeedOfWalkingMean = 1.2 // or 4.3 km/h or 2.7 mph

// Vertical speeds.
const SpeedOfClimbingStairs = 0.3 // roughly one floor per 12 s
const SpeedOfElevator = 1.5       // typical low/mid-rise cab

const SpeedOfDrivingAutobahn = 67.06 // or 241 km/h or 150 mph
