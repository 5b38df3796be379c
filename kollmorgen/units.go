package kollmorgen

// DriverResolution is the number of engineering units per native unit.
// The drive reports degrees; the motion interface works in microdegrees.
// The encoder resolves about 100 microdegrees.
//
//	resolution -> EGU
//	1e6        -> microdegrees
//	1e3        -> millidegrees
//	1          -> degrees
const DriverResolution = 1e6

// ToNative converts engineering units (microdegrees) to drive units (degrees).
// It applies equally to positions, velocities and accelerations.
func ToNative(engineering float64) float64 {
	return engineering / DriverResolution
}

// ToEngineering converts drive units (degrees) to engineering units (microdegrees)
func ToEngineering(native float64) float64 {
	return native * DriverResolution
}
