package study

import (
	"encoding"
	"fmt"
)

// Mode selects the rating scale of a session.
type Mode int

const (
	// Spaced rates with Again, Hard, Good and Easy.
	Spaced Mode = iota + 1
	// Order rates with the fixed delays 2s, 15m, 30m and 1h.
	Order
)

var (
	modeNames  = [...]string{Spaced: "spaced", Order: "order"}
	modeByName = map[string]Mode{"spaced": Spaced, "order": Order}
)

// Rating is the user's answer to a card.
type Rating int

const (
	Again Rating = iota + 1
	Hard
	Good
	Easy
	TwoSeconds
	FifteenMinutes
	ThirtyMinutes
	OneHour
)

var (
	ratingNames = [...]string{
		Again: "again", Hard: "hard", Good: "good", Easy: "easy",
		TwoSeconds: "2s", FifteenMinutes: "15m", ThirtyMinutes: "30m", OneHour: "1h",
	}
	ratingByName = map[string]Rating{
		"again": Again, "hard": Hard, "good": Good, "easy": Easy,
		"2s": TwoSeconds, "15m": FifteenMinutes, "30m": ThirtyMinutes, "1h": OneHour,
	}
	// Interval labels are display text only; nothing is scheduled from them.
	ratingLabels = [...]string{
		Again: "<1m", Hard: "<10m", Good: "1d", Easy: "4d",
		TwoSeconds: "2s", FifteenMinutes: "15m", ThirtyMinutes: "30m", OneHour: "1h",
	}
)

// Compile-time interface checks.
var (
	_ fmt.Stringer             = Rating(0)
	_ encoding.TextMarshaler   = Rating(0)
	_ encoding.TextUnmarshaler = (*Rating)(nil)
	_ fmt.Stringer             = Mode(0)
	_ encoding.TextMarshaler   = Mode(0)
	_ encoding.TextUnmarshaler = (*Mode)(nil)
)

// IsValid reports whether r is a known rating.
func (r Rating) IsValid() bool {
	return r >= Again && r <= OneHour
}

// IsFail reports whether r sends the card back into the queue.
func (r Rating) IsFail() bool {
	return r == Again || r == TwoSeconds
}

// Label returns the interval text shown next to the rating button.
func (r Rating) Label() string {
	if !r.IsValid() {
		return ""
	}
	return ratingLabels[r]
}

func (r Rating) String() string {
	if r.IsValid() {
		return ratingNames[r]
	}
	return fmt.Sprintf("Rating(%d)", int(r))
}

// MarshalText implements encoding.TextMarshaler.
func (r Rating) MarshalText() ([]byte, error) {
	if !r.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRating, int(r))
	}
	return []byte(ratingNames[r]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Rating) UnmarshalText(text []byte) error {
	v, ok := ratingByName[string(text)]
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidRating, text)
	}
	*r = v
	return nil
}

// IsValid reports whether m is a known mode.
func (m Mode) IsValid() bool {
	return m == Spaced || m == Order
}

// Ratings lists the ratings accepted in mode m, fail rating first.
func (m Mode) Ratings() []Rating {
	switch m {
	case Spaced:
		return []Rating{Again, Hard, Good, Easy}
	case Order:
		return []Rating{TwoSeconds, FifteenMinutes, ThirtyMinutes, OneHour}
	}
	return nil
}

// Accepts reports whether r belongs to the scale of mode m.
func (m Mode) Accepts(r Rating) bool {
	for _, v := range m.Ratings() {
		if v == r {
			return true
		}
	}
	return false
}

func (m Mode) String() string {
	if m.IsValid() {
		return modeNames[m]
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if !m.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMode, int(m))
	}
	return []byte(modeNames[m]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	v, ok := modeByName[string(text)]
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidMode, text)
	}
	*m = v
	return nil
}
