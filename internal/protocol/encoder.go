package protocol

// Encode returns the outgoing pulse sequence for b: two high sync pulses
// followed by eight bit pulses, most significant bit first. Each bit pulse is
// a low phase (short for 1, long for 0) and a high phase filling the period.
func (t Timing) Encode(b byte) []Pulse {
	pulses := make([]Pulse, 0, EncodedFrameLen)
	pulses = append(pulses,
		Pulse{Level0: High, Duration0: t.SyncLong, Level1: High, Duration1: t.SyncLong},
		Pulse{Level0: High, Duration0: t.SyncShort, Level1: High, Duration1: t.SyncShort},
	)

	for i := 7; i >= 0; i-- {
		low := t.BitZeroLow
		if b&(1<<i) != 0 {
			low = t.BitOneLow
		}
		pulses = append(pulses, Pulse{
			Level0:    Low,
			Duration0: low,
			Level1:    High,
			Duration1: t.BitPeriod - low,
		})
	}
	return pulses
}

// EncodeByte encodes b with the default timing.
func EncodeByte(b byte) []Pulse {
	return DefaultTiming().Encode(b)
}
