package core

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	Income  Kind = "income"
	Expense Kind = "expense"
)

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// OtherCategory labels expenses without a category in breakdowns and reports.
const OtherCategory = "Other"

const (
	maxNoteLength         = 200
	maxCategoryNameLength = 50
	maxFamilyNameLength   = 80
)

type (
	Kind string
	Role string

	// CategoryRef is the denormalised category carried by a transaction.
	CategoryRef struct {
		ID   uuid.UUID `json:"id"`
		Name string    `json:"name"`
		Icon string    `json:"icon"`
	}

	Transaction struct {
		ID        uuid.UUID       `json:"id"`
		OwnerID   uuid.UUID       `json:"owner_id"`
		Amount    decimal.Decimal `json:"amount"`
		Kind      Kind            `json:"kind"`
		Category  *CategoryRef    `json:"category,omitempty"`
		Note      string          `json:"note,omitempty"`
		Date      Date            `json:"date"`
		CreatedAt time.Time       `json:"created_at"`
	}

	Category struct {
		ID        uuid.UUID  `json:"id"`
		Name      string     `json:"name"`
		Icon      string     `json:"icon"`
		Kind      Kind       `json:"kind"`
		IsDefault bool       `json:"is_default"`
		CreatedBy *uuid.UUID `json:"created_by,omitempty"`
	}

	Budget struct {
		ID        uuid.UUID       `json:"id"`
		OwnerID   uuid.UUID       `json:"owner_id"`
		Amount    decimal.Decimal `json:"amount"`
		Month     MonthKey        `json:"month"`
		UpdatedAt time.Time       `json:"updated_at"`
	}

	User struct {
		ID           uuid.UUID `json:"id"`
		Email        string    `json:"email"`
		Name         string    `json:"name"`
		PasswordHash string    `json:"-"`
		CreatedAt    time.Time `json:"created_at"`
	}

	Family struct {
		ID        uuid.UUID `json:"id"`
		Name      string    `json:"name"`
		CreatedBy uuid.UUID `json:"created_by"`
		CreatedAt time.Time `json:"created_at"`
	}

	Member struct {
		FamilyID uuid.UUID `json:"family_id"`
		UserID   uuid.UUID `json:"user_id"`
		Email    string    `json:"email"`
		Name     string    `json:"name"`
		Role     Role      `json:"role"`
		JoinedAt time.Time `json:"joined_at"`
	}
)

var (
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidKind          = errors.New("invalid kind")
	ErrInvalidDate          = errors.New("invalid date")
	ErrInvalidMonth         = errors.New("invalid month")
	ErrNoteTooLong          = errors.New("note too long (max 200 characters)")
	ErrEmptyName            = errors.New("empty name")
	ErrNameTooLong          = errors.New("name too long")
	ErrInvalidEmail         = errors.New("invalid email")
	ErrWeakPassword         = errors.New("password must be at least 8 characters")
	ErrNotFound             = errors.New("not found")
	ErrDuplicate            = errors.New("already exists")
	ErrCategoryKindMismatch = errors.New("category kind does not match transaction kind")
	ErrDefaultCategory      = errors.New("default categories cannot be deleted")
	ErrForbidden            = errors.New("forbidden")
	ErrAlreadyInFamily      = errors.New("user already belongs to a family")
	ErrInvalidCredentials   = errors.New("invalid credentials")
)

func (k Kind) Valid() bool {
	return k == Income || k == Expense
}

// ParseKind accepts the kind names case-insensitively.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", ErrInvalidKind
	}
	return k, nil
}

// CategoryName returns the category display name or OtherCategory.
func (t Transaction) CategoryName() string {
	if t.Category == nil || strings.TrimSpace(t.Category.Name) == "" {
		return OtherCategory
	}
	return t.Category.Name
}

func (t Transaction) Validate() error {
	if t.OwnerID == uuid.Nil {
		return ErrNoOwner
	}
	if !t.Kind.Valid() {
		return ErrInvalidKind
	}
	if t.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if len(t.Note) > maxNoteLength {
		return ErrNoteTooLong
	}
	return nil
}

func (c Category) Validate() error {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return ErrEmptyName
	}
	if len(name) > maxCategoryNameLength {
		return ErrNameTooLong
	}
	if !c.Kind.Valid() {
		return ErrInvalidKind
	}
	return nil
}

func (b Budget) Validate() error {
	if b.OwnerID == uuid.Nil {
		return ErrNoOwner
	}
	if b.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	return b.Month.Validate()
}

// ValidateFamilyName trims and checks a family display name.
func ValidateFamilyName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyName
	}
	if len(name) > maxFamilyNameLength {
		return "", ErrNameTooLong
	}
	return name, nil
}

// NormalizeEmail lower-cases and trims an address and rejects obvious garbage.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.LastIndex(email, "@")
	if at < 1 || at == len(email)-1 || !strings.Contains(email[at:], ".") || strings.ContainsAny(email, " \t") {
		return "", ErrInvalidEmail
	}
	return email, nil
}
