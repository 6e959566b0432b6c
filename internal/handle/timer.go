package handle

// TimerCallback returns 0 to continue (re-arm if repeating), nonzero to request close,
// per spec §4.4.
type TimerCallback func(t *TimedHandle) int

// TimedHandle extends Handle with the timer wheel fields from spec §3: first-fire
// deadline, repeat period, remaining-repeat count, and the fired callback. It has no
// OS FD; the loop links/unlinks it directly into the timer heap.
type TimedHandle struct {
	Handle

	FirstGapNanos int64
	RepeatNanos   int64
	Repeat        int64 // <0 forever, 0 one-shot, >0 decrements each fire
	Callback      TimerCallback
}

// NewTimer constructs a TimedHandle; callers still must Open() it with a loop before
// it can be armed.
func NewTimer(id uint64, firstGap, repeatGap int64, repeat int64, cb TimerCallback) *TimedHandle {
	t := &TimedHandle{FirstGapNanos: firstGap, RepeatNanos: repeatGap, Repeat: repeat, Callback: cb}
	t.Init(id, KindTimer)
	return t
}

// ShouldRearm reports whether, after firing once, this timer should be reinserted into
// the heap: per spec §4.4, Repeat<0 fires forever, Repeat==0 removes the timer after
// this fire, Repeat>0 decrements and continues until it reaches zero.
func (t *TimedHandle) ShouldRearm() bool {
	if t.Repeat < 0 {
		return true
	}
	if t.Repeat == 0 {
		return false
	}
	t.Repeat--
	return true
}
