package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrInvalidLength indicates phone number length is not 9 digits
	ErrInvalidLength = errors.New("phone number must be exactly 9 digits")

	// ErrInvalidPrefix indicates phone number is not a Cameroonian mobile number
	ErrInvalidPrefix = errors.New("phone number must start with 6")

	// ErrInvalidFormat indicates phone number contains invalid characters
	ErrInvalidFormat = errors.New("phone number can only contain digits")

	// ErrEmptyPhone indicates phone number is empty
	ErrEmptyPhone = errors.New("phone number cannot be empty")

	// ErrUnknownOperator indicates the prefix maps to no mobile money operator
	ErrUnknownOperator = errors.New("phone number does not belong to a supported operator")
)

// Operator prefix ranges (first three digits of the subscriber number).
// MTN and Orange Cameroon share the 6XX numbering plan and split it by
// prefix block.
var (
	mtnPrefixes    = []string{"650", "651", "652", "653", "654", "670", "671", "672", "673", "674", "675", "676", "677", "678", "679", "680", "681", "682", "683", "684"}
	orangePrefixes = []string{"655", "656", "657", "658", "659", "685", "686", "687", "688", "689", "690", "691", "692", "693", "694", "695", "696", "697", "698", "699"}
)

// phoneRegex matches digits only
var phoneRegex = regexp.MustCompile(`^\d+$`)

// PhoneValidator handles phone number validation
type PhoneValidator struct{}

// NewPhoneValidator creates a new phone validator instance
func NewPhoneValidator() *PhoneValidator {
	return &PhoneValidator{}
}

// Validate validates a Cameroonian mobile number
// Accepts format: 670123456, +237 670 123 456 or 670-123-456
// Returns sanitized phone number (9 digits, no country code) and error if invalid
func (v *PhoneValidator) Validate(phone string) (string, error) {
	if phone == "" {
		return "", ErrEmptyPhone
	}

	sanitized := v.Sanitize(phone)

	if !phoneRegex.MatchString(sanitized) {
		return "", ErrInvalidFormat
	}

	if len(sanitized) != 9 {
		return "", ErrInvalidLength
	}

	if sanitized[0] != '6' {
		return "", ErrInvalidPrefix
	}

	return sanitized, nil
}

// Sanitize removes separators and the country code from a phone number
func (v *PhoneValidator) Sanitize(phone string) string {
	phone = strings.ReplaceAll(phone, " ", "")
	phone = strings.ReplaceAll(phone, "-", "")
	phone = strings.ReplaceAll(phone, "(", "")
	phone = strings.ReplaceAll(phone, ")", "")
	phone = strings.ReplaceAll(phone, "+", "")
	phone = strings.ReplaceAll(phone, ".", "")

	// Strip country code if present (237)
	if strings.HasPrefix(phone, "237") && len(phone) == 12 {
		phone = phone[3:]
	}
	// Some clients send a leading zero
	if strings.HasPrefix(phone, "0") && len(phone) == 10 {
		phone = phone[1:]
	}

	return phone
}

// Format formats a phone number in the standard display format: 6XX XX XX XX
func (v *PhoneValidator) Format(phone string) (string, error) {
	sanitized, err := v.Validate(phone)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s %s %s %s",
		sanitized[0:3],
		sanitized[3:5],
		sanitized[5:7],
		sanitized[7:9],
	), nil
}

// FormatInternational returns the E.164 form used by the payment gateways
func (v *PhoneValidator) FormatInternational(phone string) (string, error) {
	sanitized, err := v.Validate(phone)
	if err != nil {
		return "", err
	}
	return "237" + sanitized, nil
}

// GetOperator returns the mobile money operator code for the number:
// "mtn" or "orange"
func (v *PhoneValidator) GetOperator(phone string) (string, error) {
	sanitized, err := v.Validate(phone)
	if err != nil {
		return "", err
	}

	prefix := sanitized[:3]
	for _, p := range mtnPrefixes {
		if prefix == p {
			return "mtn", nil
		}
	}
	for _, p := range orangePrefixes {
		if prefix == p {
			return "orange", nil
		}
	}
	return "", ErrUnknownOperator
}

// IsValid is a convenience method that returns true if phone is valid
func (v *PhoneValidator) IsValid(phone string) bool {
	_, err := v.Validate(phone)
	return err == nil
}

// MustValidate validates and panics if invalid (use for testing only)
func (v *PhoneValidator) MustValidate(phone string) string {
	sanitized, err := v.Validate(phone)
	if err != nil {
		panic(fmt.Sprintf("invalid phone number %s: %v", phone, err))
	}
	return sanitized
}
