package audio

// ramp is a linear gain change from `from` to `to` over n sample frames
// starting at hardware sample start. Before start it holds from; after the
// end it holds to.
type ramp struct {
	start int64
	n     int64
	from  float64
	to    float64
}

func flat(g float64) ramp { return ramp{from: g, to: g} }

func (r ramp) value(at int64) float64 {
	switch {
	case at <= r.start:
		return r.from
	case r.n <= 0 || at >= r.start+r.n:
		return r.to
	}
	p := float64(at-r.start) / float64(r.n)
	return r.from + (r.to-r.from)*p
}

// settled reports whether the ramp has reached its target by sample at.
func (r ramp) settled(at int64) bool { return r.n <= 0 || at >= r.start+r.n }

// Clip converts a mixed float sample in [-1, 1] to int16, saturating out of
// range values.
func Clip(v float32) int16 {
	s := float64(v) * 32768
	if s > 32767 {
		return 32767
	} else if s < -32768 {
		return -32768
	}
	return int16(s)
}
