package domain

import (
	"strings"
	"time"
)

type User struct {
	ID               string    `json:"id"`
	FirstName        string    `json:"first_name"`
	LastName         string    `json:"last_name"`
	Email            string    `json:"email"`
	PhoneNumber      string    `json:"phone_number"`
	Address          string    `json:"address"`
	State            string    `json:"state"`
	PinCode          string    `json:"pin_code"`
	Type             Role      `json:"type"`
	EmailVerified    bool      `json:"email_verified"`
	TermsAccepted    bool      `json:"terms_accepted"`
	PasswordHash     string    `json:"-"`
	TempPasswordHash string    `json:"-"`
	TempPasswordUsed bool      `json:"temp_password_used"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (u User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Email
	}
}

func (u User) Principal() Principal {
	return Principal{UserID: u.ID, Role: u.Type}
}

// UserQuery is the pagination contract for user listings.
type UserQuery struct {
	Page   int
	Limit  int
	Search string
	Sort   string
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
	DefaultUserSort  = "-createdAt"
)

// Normalize clamps paging values into their allowed ranges.
func (q UserQuery) Normalize() UserQuery {
	out := q
	if out.Page < 1 {
		out.Page = 1
	}
	switch {
	case out.Limit < 1:
		out.Limit = DefaultPageLimit
	case out.Limit > MaxPageLimit:
		out.Limit = MaxPageLimit
	}
	if out.Sort == "" {
		out.Sort = DefaultUserSort
	}
	return out
}

// UserSortFields are the fields a user listing can be ordered by.
var UserSortFields = []string{"firstName", "lastName", "email", "phoneNumber", "type", "createdAt"}

// SortField splits Sort into its field and direction. A leading "-" means
// descending.
func (q UserQuery) SortField() (string, bool, bool) {
	field := strings.TrimSpace(q.Sort)
	desc := strings.HasPrefix(field, "-")
	field = strings.TrimPrefix(field, "-")
	for _, f := range UserSortFields {
		if f == field {
			return field, desc, true
		}
	}
	return "", false, false
}

func (q UserQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

type UserPage struct {
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
	Total int    `json:"total"`
	Pages int    `json:"pages"`
	Items []User `json:"items"`
}

func NewUserPage(q UserQuery, total int, items []User) UserPage {
	pages := 0
	if q.Limit > 0 {
		pages = (total + q.Limit - 1) / q.Limit
	}
	if items == nil {
		items = []User{}
	}
	return UserPage{Page: q.Page, Limit: q.Limit, Total: total, Pages: pages, Items: items}
}

// AdminInput seeds an administrator account outside the public sign-up flow.
type AdminInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}
