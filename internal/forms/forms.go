// Package forms turns submitted form values into validated input.
// Validation problems are returned as Errors, keyed by field name, so the
// originating page can be re-rendered next to the offending inputs.
package forms

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
)

const dateLayout = "2006-01-02"

const (
	MsgRequired      = "This field is required."
	MsgEmail         = "Enter a valid email address."
	MsgDate          = "Enter a valid date."
	MsgFutureDate    = "Date of birth cannot be in the future."
	MsgPasswordShort = "This password is too short. It must contain at least 8 characters."
	MsgPasswordLong  = "This password is too long. It must contain at most 72 bytes."
	MsgPasswordDigit = "This password is entirely numeric."
	MsgPasswordNick  = "The password is too similar to the nickname."
	MsgPasswordMatch = "The two password fields didn't match."
	MsgNicknameTaken = "A user with that nickname already exists."
	MsgBadLogin      = "Invalid nickname or password."
)

// Errors maps a field name to its first validation message. The empty key
// holds errors that belong to the form as a whole.
type Errors map[string]string

// Add records msg for field unless the field already has an error.
func (e Errors) Add(field, msg string) {
	if _, ok := e[field]; !ok {
		e[field] = msg
	}
}

func (e Errors) Has(field string) bool {
	_, ok := e[field]
	return ok
}

func (e Errors) OK() bool { return len(e) == 0 }

type field struct {
	name  string
	value string
	errs  Errors
}

func check(errs Errors, name, value string) *field {
	return &field{name: name, value: strings.TrimSpace(value), errs: errs}
}

func (f *field) failed() bool { return f.errs.Has(f.name) }

func (f *field) required() *field {
	if !f.failed() && govalidator.IsNull(f.value) {
		f.errs.Add(f.name, MsgRequired)
	}
	return f
}

func (f *field) maxLength(n int) *field {
	if !f.failed() && !govalidator.RuneLength(f.value, "0", strconv.Itoa(n)) {
		f.errs.Add(f.name, fmt.Sprintf("Ensure this value has at most %d characters (it has %d).", n, len([]rune(f.value))))
	}
	return f
}

func (f *field) email() *field {
	if !f.failed() && f.value != "" && !govalidator.IsEmail(f.value) {
		f.errs.Add(f.name, MsgEmail)
	}
	return f
}

// date parses the value as YYYY-MM-DD. An empty value yields nil.
func (f *field) date(now time.Time) *time.Time {
	if f.failed() || f.value == "" {
		return nil
	}
	d, err := time.ParseInLocation(dateLayout, f.value, now.Location())
	if err != nil {
		f.errs.Add(f.name, MsgDate)
		return nil
	}
	if d.After(now) {
		f.errs.Add(f.name, MsgFutureDate)
		return nil
	}
	return &d
}

type Registration struct {
	Nickname    string
	Email       string
	FirstName   string
	LastName    string
	DateOfBirth time.Time
	Password    string
}

// ParseRegistration validates a sign-up form. Nickname uniqueness needs the
// store and is checked by the caller.
func ParseRegistration(v url.Values, now time.Time) (*Registration, Errors) {
	errs := Errors{}
	reg := &Registration{}

	reg.Nickname = check(errs, "nickname", v.Get("nickname")).required().maxLength(50).value
	reg.Email = check(errs, "email", v.Get("email")).required().email().value
	reg.FirstName = check(errs, "first_name", v.Get("first_name")).required().maxLength(150).value
	reg.LastName = check(errs, "last_name", v.Get("last_name")).required().maxLength(150).value
	if dob := check(errs, "date_of_birth", v.Get("date_of_birth")).required().date(now); dob != nil {
		reg.DateOfBirth = *dob
	}

	pw1, pw2 := v.Get("password1"), v.Get("password2")
	switch {
	case pw1 == "":
		errs.Add("password1", MsgRequired)
	case pw2 == "":
		errs.Add("password2", MsgRequired)
	case pw1 != pw2:
		errs.Add("password2", MsgPasswordMatch)
	default:
		if msg := passwordProblem(pw1, reg.Nickname); msg != "" {
			errs.Add("password2", msg)
		}
	}
	reg.Password = pw1

	return reg, errs
}

// bcrypt only looks at this many bytes and refuses longer input.
const maxPasswordBytes = 72

func passwordProblem(pw, nickname string) string {
	switch {
	case len([]rune(pw)) < 8:
		return MsgPasswordShort
	case len(pw) > maxPasswordBytes:
		return MsgPasswordLong
	case govalidator.IsNumeric(pw):
		return MsgPasswordDigit
	case nickname != "" && strings.EqualFold(pw, nickname):
		return MsgPasswordNick
	}
	return ""
}

type Login struct {
	Nickname string
	Password string
}

func ParseLogin(v url.Values) (*Login, Errors) {
	errs := Errors{}
	l := &Login{
		Nickname: check(errs, "nickname", v.Get("nickname")).required().maxLength(50).value,
		Password: v.Get("password"),
	}
	if l.Password == "" {
		errs.Add("password", MsgRequired)
	}
	return l, errs
}

// Profile holds the editable profile fields. The avatar travels as a file
// upload and is handled separately.
type Profile struct {
	Nickname    string
	FirstName   string
	LastName    string
	DateOfBirth *time.Time
}

func ParseProfile(v url.Values, now time.Time) (*Profile, Errors) {
	errs := Errors{}
	return &Profile{
		Nickname:    check(errs, "nickname", v.Get("nickname")).required().maxLength(50).value,
		FirstName:   check(errs, "first_name", v.Get("first_name")).maxLength(150).value,
		LastName:    check(errs, "last_name", v.Get("last_name")).maxLength(150).value,
		DateOfBirth: check(errs, "date_of_birth", v.Get("date_of_birth")).date(now),
	}, errs
}

type Category struct {
	Name        string
	Description string
}

func ParseCategory(v url.Values) (*Category, Errors) {
	errs := Errors{}
	return &Category{
		Name:        check(errs, "name", v.Get("name")).required().maxLength(50).value,
		Description: check(errs, "description", v.Get("description")).required().value,
	}, errs
}

// ParseText validates the single text field of a post or comment form.
func ParseText(v url.Values) (string, Errors) {
	errs := Errors{}
	return check(errs, "text", v.Get("text")).required().value, errs
}
