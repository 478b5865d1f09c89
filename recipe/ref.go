package recipe

import (
	"fmt"
	"strings"
)

// Ref uniquely addresses a recipe: name/version[@user/channel].
type Ref struct {
	Name    string
	Version string
	User    string
	Channel string
}

// ParseRef parses a reference in the form "name/version[@user/channel]".
// The version may be omitted for consumer recipes ("name").
// Version ranges are not supported and are rejected.
func ParseRef(s string) (Ref, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Ref{}, fmt.Errorf("invalid recipe reference: empty")
	}
	if strings.ContainsAny(s, "[]") {
		return Ref{}, fmt.Errorf("invalid recipe reference %q: version ranges are not supported", s)
	}
	var r Ref
	nameVer, userChan, hasUser := strings.Cut(s, "@")
	if hasUser {
		user, channel, ok := strings.Cut(userChan, "/")
		if !ok || user == "" || channel == "" {
			return Ref{}, fmt.Errorf("invalid recipe reference %q: expected @user/channel", s)
		}
		r.User, r.Channel = user, channel
	}
	name, version, _ := strings.Cut(nameVer, "/")
	if name == "" {
		return Ref{}, fmt.Errorf("invalid recipe reference %q: missing name", s)
	}
	if strings.Contains(version, "/") {
		return Ref{}, fmt.Errorf("invalid recipe reference %q: too many path elements", s)
	}
	if hasUser && version == "" {
		return Ref{}, fmt.Errorf("invalid recipe reference %q: user/channel requires a version", s)
	}
	r.Name, r.Version = name, version
	return r, nil
}

// MustParseRef is like ParseRef but panics on error.
func MustParseRef(s string) Ref {
	r, err := ParseRef(s)
	if err != nil {
		panic(err)
	}
	return r
}

// String returns the canonical textual form of r.
func (r Ref) String() string {
	var b strings.Builder
	b.WriteString(r.Name)
	if r.Version != "" {
		b.WriteByte('/')
		b.WriteString(r.Version)
	}
	if r.User != "" {
		b.WriteByte('@')
		b.WriteString(r.User)
		b.WriteByte('/')
		b.WriteString(r.Channel)
	}
	return b.String()
}

// IsZero reports whether r is the zero Ref.
func (r Ref) IsZero() bool {
	return r == Ref{}
}

// WithUserChannel returns a copy of r with user and channel replaced.
func (r Ref) WithUserChannel(user, channel string) Ref {
	r.User, r.Channel = user, channel
	return r
}

// MarshalText implements encoding.TextMarshaler.
func (r Ref) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Ref) UnmarshalText(text []byte) error {
	parsed, err := ParseRef(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
