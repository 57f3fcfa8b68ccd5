package utils

import (
	"time"
)

// Card number format constants
const (
	// CardNumberTotalLength is the fixed total length of every card number,
	// library prefix included.
	CardNumberTotalLength = 14

	// MinRandomLength is the smallest generated suffix the random strategy
	// accepts; shorter suffixes collide too often to be worth retrying.
	MinRandomLength = 4

	// NumberGenerationRetries bounds the collision-retry loop before card
	// issuance fails outright.
	NumberGenerationRetries = 10

	// CardNumbersAlertThreshold is the default distance from the sequence
	// start at which library admins are alerted about sequence consumption.
	CardNumbersAlertThreshold = 5000
)

// Token and session time constants
const (
	// AccessTokenTTL is the time-to-live for admin access tokens
	AccessTokenTTL = 24 * time.Hour

	// VerificationTokenTTL is the time-to-live for email verification links
	VerificationTokenTTL = 72 * time.Hour

	// CaptchaTTL is the time window during which a signup captcha stays valid
	CaptchaTTL = 5 * time.Minute
)

// Bulk upload constants
const (
	// BulkUploadMaxRows caps a single CSV/XLSX upload
	BulkUploadMaxRows = 10000
)

// HTTP constants
const (
	// CORSMaxAge is how long browsers may cache CORS preflight results,
	// in seconds
	CORSMaxAge = 86400
)
