package accounts

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ContactChannel is the medium that is authoritative for the username.
type ContactChannel string

const (
	ChannelEmail ContactChannel = "EMAIL"
	ChannelPhone ContactChannel = "PHONE"
)

// Gender of the account holder
type Gender string

const (
	GenderMale    Gender = "MALE"
	GenderFemale  Gender = "FEMALE"
	GenderUnknown Gender = "UNKNOWN"
)

// IsValid checks the gender against the enumerated values
func (g Gender) IsValid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderUnknown:
		return true
	default:
		return false
	}
}

// Account is the local user record
type Account struct {
	bun.BaseModel  `bun:"table:accounts,alias:acc"`
	ID             uuid.UUID      `bun:"id,pk,type:uuid" json:"id"`
	Username       string         `bun:"username,notnull,unique" json:"username"`
	Email          string         `bun:"email,nullzero" json:"email,omitempty"`
	Phone          string         `bun:"phone,nullzero" json:"phone,omitempty"`
	ContactChannel ContactChannel `bun:"contact_channel,notnull" json:"contact_channel"`
	Status         AccountStatus  `bun:"status,notnull" json:"status"`
	FirstName      string         `bun:"first_name,nullzero" json:"first_name,omitempty"`
	LastName       string         `bun:"last_name,nullzero" json:"last_name,omitempty"`
	Gender         Gender         `bun:"gender,nullzero" json:"gender,omitempty"`
	DateOfBirth    *time.Time     `bun:"date_of_birth,nullzero" json:"date_of_birth,omitempty"`
	AvatarPath     string         `bun:"avatar_path,nullzero" json:"avatar_path,omitempty"`
	HasConsented   bool           `bun:"has_consented,notnull,default:false" json:"has_consented"`
	HasConsentedAt *time.Time     `bun:"has_consented_at,nullzero" json:"has_consented_at,omitempty"`
	Roles          []*Role        `bun:"m2m:account_roles,join:Account=Role" json:"roles,omitempty"`
	CreatedAt      time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt      time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

// RoleSet returns the memberships of the account as a bit set. Roles must
// have been loaded with the account.
func (a *Account) RoleSet() RoleSet {
	var set RoleSet
	if a == nil {
		return set
	}
	for _, r := range a.Roles {
		if r != nil {
			set = set.Add(r.Name)
		}
	}
	return set
}

// Role is reference data, only looked up by name
type Role struct {
	bun.BaseModel `bun:"table:roles,alias:rol"`
	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Name          RoleName  `bun:"name,notnull,unique" json:"name"`
	Description   string    `bun:"description" json:"description,omitempty"`
}

// AccountRole is the membership join row
type AccountRole struct {
	bun.BaseModel `bun:"table:account_roles,alias:acr"`
	AccountID     uuid.UUID `bun:"account_id,pk,type:uuid"`
	Account       *Account  `bun:"rel:belongs-to,join:account_id=id"`
	RoleID        uuid.UUID `bun:"role_id,pk,type:uuid"`
	Role          *Role     `bun:"rel:belongs-to,join:role_id=id"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// Candidate wraps an account with recruiting attributes
type Candidate struct {
	bun.BaseModel `bun:"table:candidates,alias:cnd"`
	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	AccountID     uuid.UUID `bun:"account_id,notnull,unique,type:uuid" json:"account_id"`
	Account       *Account  `bun:"rel:belongs-to,join:account_id=id" json:"account,omitempty"`
	LinkedInURL   string    `bun:"linkedin_url,nullzero" json:"linkedin_url,omitempty"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

// AccountUpdate holds the fields of a partial update. Nil fields are left
// untouched.
type AccountUpdate struct {
	Username       *string
	Email          *string
	Phone          *string
	ContactChannel *ContactChannel
	Status         *AccountStatus
	FirstName      *string
	LastName       *string
	Gender         *Gender
	DateOfBirth    *time.Time
	AvatarPath     *string
	HasConsented   *bool
	HasConsentedAt *time.Time
}

// AccountDetails is what callers get back from lifecycle operations
type AccountDetails struct {
	ID             uuid.UUID      `json:"id"`
	Username       string         `json:"username"`
	Email          string         `json:"email,omitempty"`
	Phone          string         `json:"phone,omitempty"`
	ContactChannel ContactChannel `json:"contact_channel"`
	Status         AccountStatus  `json:"status"`
	FirstName      string         `json:"first_name,omitempty"`
	LastName       string         `json:"last_name,omitempty"`
	Gender         Gender         `json:"gender,omitempty"`
	DateOfBirth    *time.Time     `json:"date_of_birth,omitempty"`
	AvatarPath     string         `json:"avatar_path,omitempty"`
	HasConsented   bool           `json:"has_consented"`
	HasConsentedAt *time.Time     `json:"has_consented_date,omitempty"`
	Roles          []RoleName     `json:"roles"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// NewAccountDetails maps an account into its public representation.
func NewAccountDetails(a *Account) *AccountDetails {
	if a == nil {
		return nil
	}
	return &AccountDetails{
		ID:             a.ID,
		Username:       a.Username,
		Email:          a.Email,
		Phone:          a.Phone,
		ContactChannel: a.ContactChannel,
		Status:         a.Status,
		FirstName:      a.FirstName,
		LastName:       a.LastName,
		Gender:         a.Gender,
		DateOfBirth:    a.DateOfBirth,
		AvatarPath:     a.AvatarPath,
		HasConsented:   a.HasConsented,
		HasConsentedAt: a.HasConsentedAt,
		Roles:          a.RoleSet().Names(),
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

// CandidateDetails is the public representation of a candidate
type CandidateDetails struct {
	ID          uuid.UUID       `json:"id"`
	LinkedInURL string          `json:"linkedin_url,omitempty"`
	Account     *AccountDetails `json:"user"`
}

// NewCandidateDetails maps a candidate and its account.
func NewCandidateDetails(c *Candidate, a *Account) *CandidateDetails {
	if c == nil {
		return nil
	}
	if a == nil {
		a = c.Account
	}
	return &CandidateDetails{
		ID:          c.ID,
		LinkedInURL: c.LinkedInURL,
		Account:     NewAccountDetails(a),
	}
}

// CandidateMinimal is the list representation of a candidate
type CandidateMinimal struct {
	ID             uuid.UUID      `json:"id"`
	LinkedInURL    string         `json:"linkedin_url,omitempty"`
	AccountID      uuid.UUID      `json:"user_id"`
	Username       string         `json:"username"`
	FirstName      string         `json:"first_name,omitempty"`
	LastName       string         `json:"last_name,omitempty"`
	Status         AccountStatus  `json:"status"`
	ContactChannel ContactChannel `json:"contact_channel"`
}

func NewCandidateMinimal(c *Candidate) *CandidateMinimal {
	if c == nil {
		return nil
	}
	out := &CandidateMinimal{
		ID:          c.ID,
		LinkedInURL: c.LinkedInURL,
		AccountID:   c.AccountID,
	}
	if a := c.Account; a != nil {
		out.Username = a.Username
		out.FirstName = a.FirstName
		out.LastName = a.LastName
		out.Status = a.Status
		out.ContactChannel = a.ContactChannel
	}
	return out
}
