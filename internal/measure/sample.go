package measure

// ChannelType identifies one logical sensor stream.
type ChannelType int

const (
	ChannelAccelerometer ChannelType = iota
	ChannelGyroscope
	ChannelMagnetometer
	ChannelGPS
	ChannelPressure
)

var channelNames = map[ChannelType]string{
	ChannelAccelerometer: "accelerometer",
	ChannelGyroscope:     "gyroscope",
	ChannelMagnetometer:  "magnetometer",
	ChannelGPS:           "gps",
	ChannelPressure:      "pressure",
}

func (c ChannelType) String() string {
	if name, ok := channelNames[c]; ok {
		return name
	}
	return "unknown"
}

// ParseChannelType maps a config-file channel name to its ChannelType.
func ParseChannelType(name string) (ChannelType, bool) {
	for c, n := range channelNames {
		if n == name {
			return c, true
		}
	}
	return 0, false
}

// Accuracy is the reliability level a sensor driver reports for its readings.
type Accuracy int

const (
	AccuracyUnreliable Accuracy = iota
	AccuracyLow
	AccuracyMedium
	AccuracyHigh
)

func (a Accuracy) String() string {
	switch a {
	case AccuracyLow:
		return "low"
	case AccuracyMedium:
		return "medium"
	case AccuracyHigh:
		return "high"
	default:
		return "unreliable"
	}
}

// Sample is a single reading from one channel.
//
// Timestamp is monotonic nanoseconds. Samples are mutable and reusable:
// the syncer overwrites fields in place when a pooled slot is recycled, so
// callers that need to keep a reading beyond a callback must copy it.
type Sample struct {
	Timestamp int64       `json:"ts"`
	Channel   ChannelType `json:"channel"`
	Accuracy  Accuracy    `json:"accuracy"`

	// Values holds the fixed 3-axis payload. For GPS the axes carry
	// latitude (deg), longitude (deg) and speed over ground (knots).
	Values [3]float64 `json:"values"`

	// Bias is an optional per-axis bias estimate (e.g. gyro drift).
	Bias    [3]float64 `json:"bias,omitempty"`
	HasBias bool       `json:"has_bias,omitempty"`
}

// CopyFrom overwrites s with src. Used when copying an incoming reading
// into a pooled slot, and when building composite samples.
func (s *Sample) CopyFrom(src *Sample) {
	*s = *src
}
