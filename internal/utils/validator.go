// internal/utils/validator.go
package utils

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterValidation("strong_password", validateStrongPassword)
	validate.RegisterValidation("transaction_pin", validateTransactionPIN)
	validate.RegisterValidation("bank_account", validateBankAccount)
	validate.RegisterValidation("bank_code", validateBankCode)
}

func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

func validateStrongPassword(fl validator.FieldLevel) bool {
	password := fl.Field().String()

	if len(password) < 8 {
		return false
	}

	var hasUpper, hasLower, hasNumber, hasSpecial bool

	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsNumber(char):
			hasNumber = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSpecial = true
		}
	}

	return hasUpper && hasLower && hasNumber && hasSpecial
}

func validateTransactionPIN(fl validator.FieldLevel) bool {
	pin := fl.Field().String()
	matched, _ := regexp.MatchString("^[0-9]{4,6}$", pin)
	return matched
}

func validateBankAccount(fl validator.FieldLevel) bool {
	account := fl.Field().String()
	matched, _ := regexp.MatchString("^[0-9]{10}$", account)
	return matched
}

func validateBankCode(fl validator.FieldLevel) bool {
	code := fl.Field().String()
	matched, _ := regexp.MatchString("^[0-9]{3,6}$", code)
	return matched
}

// Validation tags for common fields
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

func GetValidationErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrs {
			validationErrors = append(validationErrors, ValidationError{
				Field:   strings.ToLower(e.Field()),
				Tag:     e.Tag(),
				Message: getValidationMessage(e),
			})
		}
	}

	return validationErrors
}

func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return e.Field() + " is required"
	case "email":
		return "Invalid email format"
	case "min":
		return e.Field() + " must be at least " + e.Param()
	case "max":
		return e.Field() + " must be at most " + e.Param()
	case "strong_password":
		return "Password must contain at least 8 characters with uppercase, lowercase, number, and special character"
	case "transaction_pin":
		return "Transaction PIN must be 4-6 digits"
	case "bank_account":
		return "Bank account number must be 10 digits"
	case "bank_code":
		return "Bank code must be 3-6 digits"
	default:
		return e.Field() + " is invalid"
	}
}
