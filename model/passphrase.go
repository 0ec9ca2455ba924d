package model

import (
	"fmt"
	"strings"
	"time"
)

/**
* Level is the rank of a privilege. Levels are totally ordered: None < ReadOnly < Manage.
 */
type Level int

const (
	LevelNone Level = iota
	LevelReadOnly
	LevelManage
)

func (l Level) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelReadOnly:
		return "read"
	case LevelManage:
		return "manage"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

func (l Level) MarshalText() ([]byte, error) {
	if l < LevelNone || l > LevelManage {
		return nil, fmt.Errorf("invalid level %d", int(l))
	}
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(text []byte) error {
	switch string(text) {
	case "none":
		*l = LevelNone
	case "read":
		*l = LevelReadOnly
	case "manage":
		*l = LevelManage
	default:
		return fmt.Errorf("unknown level %q", string(text))
	}
	return nil
}

/**
* Privilege is the effective access a client has for an event: a level plus the orthogonal
* shareable-link capability.
 */
type Privilege struct {
	Level         Level `json:"level"`
	ShareableLink bool  `json:"shareableLink"`
}

var (
	PrivilegeNone     = Privilege{Level: LevelNone}
	PrivilegeReadOnly = Privilege{Level: LevelReadOnly}
	PrivilegeManage   = Privilege{Level: LevelManage}
	PrivilegeLink     = Privilege{Level: LevelReadOnly, ShareableLink: true}
)

// Satisfies reports whether p grants at least what required asks for.
func (p Privilege) Satisfies(required Privilege) bool {
	if required.ShareableLink && !p.ShareableLink {
		return false
	}
	return p.Level >= required.Level
}

// Join returns the supremum of both privileges.
func (p Privilege) Join(other Privilege) Privilege {
	joined := p
	if other.Level > joined.Level {
		joined.Level = other.Level
	}
	joined.ShareableLink = joined.ShareableLink || other.ShareableLink
	return joined
}

func (p Privilege) String() string {
	if p.ShareableLink {
		return p.Level.String() + "+link"
	}
	return p.Level.String()
}

/**
* Parses a required privilege as used by the authz endpoint and the management api.
 */
func ParseRequirement(requirement string) (privilege Privilege, err error) {
	switch strings.ToLower(strings.TrimSpace(requirement)) {
	case "read", "readonly":
		return PrivilegeReadOnly, err
	case "manage":
		return PrivilegeManage, err
	case "link", "shareablelink":
		return PrivilegeLink, err
	}
	return privilege, fmt.Errorf("unknown privilege requirement %q", requirement)
}

/**
* Role is the privilege stored with a passphrase row.
 */
type Role int

const (
	RoleReadOnly      Role = 1
	RoleManage        Role = 2
	RoleShareableLink Role = 3
)

func (r Role) Valid() bool {
	return r == RoleReadOnly || r == RoleManage || r == RoleShareableLink
}

// Privilege maps the stored role to the privilege it grants.
func (r Role) Privilege() Privilege {
	switch r {
	case RoleReadOnly:
		return PrivilegeReadOnly
	case RoleManage:
		return PrivilegeManage
	case RoleShareableLink:
		return PrivilegeLink
	}
	return PrivilegeNone
}

// RequiredToDerive is the minimum level a caller must hold to derive a passphrase of this role.
func (r Role) RequiredToDerive() Level {
	if r == RoleShareableLink {
		return LevelReadOnly
	}
	return LevelManage
}

func (r Role) String() string {
	switch r {
	case RoleReadOnly:
		return "readonly"
	case RoleManage:
		return "manage"
	case RoleShareableLink:
		return "shareablelink"
	}
	return fmt.Sprintf("role(%d)", int(r))
}

func ParseRole(role string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "readonly", "read":
		return RoleReadOnly, nil
	case "manage":
		return RoleManage, nil
	case "shareablelink", "link":
		return RoleShareableLink, nil
	}
	return 0, fmt.Errorf("unknown role %q", role)
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid role %d", int(r))
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

/**
* A passphrase grants its role for one event. Passphrases without a secret can only be obtained
* through derivation from the passphrase referenced by DerivableFrom.
 */
type Passphrase struct {
	Id            int        `json:"id"`
	EventId       int        `json:"eventId"`
	Role          Role       `json:"role"`
	Secret        *string    `json:"passphrase,omitempty"`
	DerivableFrom *int       `json:"derivableFrom,omitempty"`
	ValidFrom     *time.Time `json:"validFrom,omitempty"`
	ValidUntil    *time.Time `json:"validUntil,omitempty"`
	Comment       string     `json:"comment"`
}

// ValidAt checks the inclusive validity window against the given time.
func (p Passphrase) ValidAt(now time.Time) bool {
	if p.ValidFrom != nil && now.Before(*p.ValidFrom) {
		return false
	}
	if p.ValidUntil != nil && now.After(*p.ValidUntil) {
		return false
	}
	return true
}

/**
* Returns a copy that is safe to hand out in listings: all but the last fifth of the secret is
* replaced by '*'.
 */
func (p Passphrase) Obfuscated() Passphrase {
	if p.Secret == nil {
		return p
	}
	runes := []rune(*p.Secret)
	visible := (len(runes) + 4) / 5
	for i := 0; i < len(runes)-visible; i++ {
		runes[i] = '*'
	}
	obfuscated := string(runes)
	p.Secret = &obfuscated
	return p
}
