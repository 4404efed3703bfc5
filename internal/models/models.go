package models

import (
	"time"
)

// PhotoTTL is how long a captured photo can be received or claimed.
const PhotoTTL = 24 * time.Hour

// MaxMemoLength is the memo limit in characters (runes, not bytes).
const MaxMemoLength = 200

// User represents a registered user
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	HandleName   string    `json:"handle_name"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Location is where a photo was received
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   *string `json:"address,omitempty"`
}

// ReceiverKind tags the Receiver variant.
type ReceiverKind int

const (
	ReceiverNone ReceiverKind = iota
	ReceiverGuest
	ReceiverUser
)

// Receiver is who received a photo: nobody, a guest identified by the name
// they typed, or an authenticated user. The zero value is ReceiverNone.
type Receiver struct {
	kind   ReceiverKind
	name   string
	userID string
}

// GuestReceiver returns a receiver for an anonymous guest.
func GuestReceiver(name string) Receiver {
	return Receiver{kind: ReceiverGuest, name: name}
}

// UserReceiver returns a receiver for an authenticated user.
func UserReceiver(userID string) Receiver {
	return Receiver{kind: ReceiverUser, userID: userID}
}

func (r Receiver) Kind() ReceiverKind { return r.kind }

// Name returns the guest name, or "" for other kinds.
func (r Receiver) Name() string { return r.name }

// UserID returns the user id, or "" for other kinds.
func (r Receiver) UserID() string { return r.userID }

func (r Receiver) IsNone() bool { return r.kind == ReceiverNone }

// Photo represents a captured cheki photo.
type Photo struct {
	ID             string
	OwnerID        *string
	DeviceID       *string
	ImagePath      *string
	LegacyImageURL *string
	CreatedAt      time.Time
	ExpiresAt      time.Time
	IsReceived     bool
	Receiver       Receiver
	// GuestName keeps the name a guest typed at receive time. It survives a
	// later claim, when Receiver switches to the authenticated user.
	GuestName  *string
	ReceivedAt *time.Time
	Location   *Location
	UpdatedAt  time.Time
}

// IsExpired reports whether now is past the photo's expiry.
func (p *Photo) IsExpired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// ReceiverName returns the guest name recorded for the photo, if any.
func (p *Photo) ReceiverName() *string {
	if p.Receiver.Kind() == ReceiverGuest {
		name := p.Receiver.Name()
		return &name
	}
	return p.GuestName
}

// ReceiverUserID returns the authenticated receiver, if any.
func (p *Photo) ReceiverUserID() *string {
	if p.Receiver.Kind() == ReceiverUser {
		id := p.Receiver.UserID()
		return &id
	}
	return nil
}

// SetReceiverColumns rebuilds Receiver and GuestName from the two nullable
// receiver columns. The user id wins when both are present.
func (p *Photo) SetReceiverColumns(name, userID *string) {
	p.GuestName = nil
	switch {
	case userID != nil && *userID != "":
		p.Receiver = UserReceiver(*userID)
		if name != nil && *name != "" {
			n := *name
			p.GuestName = &n
		}
	case name != nil && *name != "":
		p.Receiver = GuestReceiver(*name)
	default:
		p.Receiver = Receiver{}
	}
}

// PhotoMemo is a user's private note and reunion flag for a photo.
type PhotoMemo struct {
	PhotoID    string    `json:"photo_id"`
	UserID     string    `json:"user_id"`
	Memo       *string   `json:"memo"`
	IsReunited bool      `json:"is_reunited"`
	UpdatedAt  time.Time `json:"updated_at"`
}
