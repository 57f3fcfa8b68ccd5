// Package dto contains Data Transfer Objects for API request and response structures
package dto

import "time"

// SignupRequest represents the patron self-registration form data
type SignupRequest struct {
	LibraryIdentifier string `json:"library_identifier" validate:"required,max=255"`

	FirstName string  `json:"first_name" validate:"required,max=30"`
	LastName  *string `json:"last_name,omitempty" validate:"omitempty,max=150"`

	Email           string `json:"email" validate:"required,email,max=255"`
	Password        string `json:"password" validate:"required,min=8"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`

	// Address fields; mandatory when the library requires patron addresses
	StreetAddressLine1 *string `json:"street_address_line1,omitempty" validate:"omitempty,max=255"`
	StreetAddressLine2 *string `json:"street_address_line2,omitempty" validate:"omitempty,max=255"`
	City               *string `json:"city,omitempty" validate:"omitempty,max=255"`
	USState            *string `json:"us_state,omitempty" validate:"omitempty,max=50"`
	Zip                *string `json:"zip,omitempty" validate:"omitempty,max=10"`
	CountryCode        string  `json:"country_code" validate:"omitempty,len=2"`

	// Age verification consent; mandatory when the library requires it
	Over13 *bool `json:"over13,omitempty"`

	// Rotate captcha solution
	CaptchaID    string `json:"captcha_id" validate:"required"`
	CaptchaAngle int    `json:"captcha_angle" validate:"min=0,max=360"`
}

// SignupResponse represents the response after successful signup
type SignupResponse struct {
	Message               string  `json:"message"`
	PatronID              uint    `json:"patron_id"`
	CardNumber            *string `json:"card_number,omitempty"`
	VerificationEmailSent bool    `json:"verification_email_sent"`
	EmailTarget           string  `json:"email_target"` // Email address (masked for security)
}

// EmailVerificationRequest carries the token from the verification link
type EmailVerificationRequest struct {
	Token string `json:"token" validate:"required"`
}

// EmailVerificationResponse represents the response after email verification
type EmailVerificationResponse struct {
	Message  string `json:"message"`
	PatronID uint   `json:"patron_id"`
	Verified bool   `json:"verified"`
}

// CaptchaChallengeResponse carries a freshly generated rotate captcha
type CaptchaChallengeResponse struct {
	CaptchaID   string `json:"captcha_id"`
	ImageBase64 string `json:"image_base64"`
	ThumbBase64 string `json:"thumb_base64"`
}

// PatronDTO represents patron data for API responses
type PatronDTO struct {
	ID            uint      `json:"id"`
	Email         string    `json:"email"`
	FirstName     string    `json:"first_name"`
	LastName      *string   `json:"last_name,omitempty"`
	City          *string   `json:"city,omitempty"`
	Zip           *string   `json:"zip,omitempty"`
	CountryCode   string    `json:"country_code"`
	LibraryID     uint      `json:"library_id"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
}
