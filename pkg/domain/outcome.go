package domain

import "fmt"

// Outcome is the uniform result of a token lookup.
type Outcome int

const (
	// NotFound means the token never existed (or was already evicted).
	NotFound Outcome = iota
	// Found means the token resolved to a live record.
	Found
	// Expired means the token existed but exceeded the inactivity window.
	Expired
)

// String returns the status name exposed to API callers and peers.
func (o Outcome) String() string {
	switch o {
	case Found:
		return "ok"
	case Expired:
		return "expired"
	default:
		return "notfound"
	}
}

// Err maps the outcome to its sentinel error. Found maps to nil.
func (o Outcome) Err() error {
	switch o {
	case Found:
		return nil
	case Expired:
		return ErrSessionExpired
	default:
		return ErrSessionNotFound
	}
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Outcome) UnmarshalText(text []byte) error {
	parsed, err := ParseOutcome(string(text))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// ParseOutcome converts a status name back to an Outcome.
func ParseOutcome(s string) (Outcome, error) {
	switch s {
	case "ok":
		return Found, nil
	case "expired":
		return Expired, nil
	case "notfound":
		return NotFound, nil
	}
	return NotFound, fmt.Errorf("unknown outcome %q", s)
}
