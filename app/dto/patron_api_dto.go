package dto

// PATRONAPI error numbers, kept compatible with the III PATRONAPI contract
// consumed by ILS integrations.
const (
	PatronAPIErrRecordNotFound  = 1
	PatronAPIErrInvalidPin      = 4
	PatronAPIErrUnverifiedEmail = 5
	PatronAPIErrMissingParams   = 100000
)

// PinTestRequest is the POST form variant of the pintest call
type PinTestRequest struct {
	Number string `json:"number" form:"number" validate:"required,max=100"`
	Pin    string `json:"pin" form:"pin" validate:"required"`
}

// PinTestResult mirrors the PATRONAPI pintest response fields. RETCOD 0
// means the number/PIN pair is valid; RETCOD 1 carries ERRNUM and ERRMSG.
type PinTestResult struct {
	RetCod int    `json:"RETCOD"`
	ErrNum *int   `json:"ERRNUM,omitempty"`
	ErrMsg string `json:"ERRMSG,omitempty"`
}

// DumpResult lists the cards matching a number, or an ERRNUM when none match
type DumpResult struct {
	LibraryCards []CardDTO `json:"library_cards,omitempty"`
	ErrNum       *int      `json:"ERRNUM,omitempty"`
	ErrMsg       string    `json:"ERRMSG,omitempty"`
}
