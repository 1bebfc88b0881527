package effects

// Delay is a stereo feedback delay with cross-channel bleed. The delay
// line is sized at construction and never reallocated.
type Delay struct {
	bufL, bufR []float32
	pos        int
	feedback   float32
	cross      float32
	wet        float32
}

// NewDelay creates a delay line of delayMs milliseconds. feedback and
// cross are 0..1 (feedback clamped below unity), wet is the mix.
func NewDelay(sampleRate int, delayMs float64, feedback, cross, wet float32) *Delay {
	samples := int(delayMs * float64(sampleRate) / 1000.0)
	if samples < 1 {
		samples = 1
	}
	return &Delay{
		bufL:     make([]float32, samples),
		bufR:     make([]float32, samples),
		feedback: clamp(feedback, 0, 0.95),
		cross:    clamp(cross, 0, 1),
		wet:      clamp(wet, 0, 1),
	}
}

func (d *Delay) Process(l, r float32) (float32, float32) {
	tapL := d.bufL[d.pos]
	tapR := d.bufR[d.pos]
	d.bufL[d.pos] = l + tapL*d.feedback*(1-d.cross) + tapR*d.feedback*d.cross
	d.bufR[d.pos] = r + tapR*d.feedback*(1-d.cross) + tapL*d.feedback*d.cross
	d.pos++
	if d.pos >= len(d.bufL) {
		d.pos = 0
	}
	return l*(1-d.wet) + tapL*d.wet, r*(1-d.wet) + tapR*d.wet
}

func (d *Delay) Reset() {
	for i := range d.bufL {
		d.bufL[i] = 0
		d.bufR[i] = 0
	}
	d.pos = 0
}
