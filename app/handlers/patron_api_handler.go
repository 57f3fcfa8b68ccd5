package handlers

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/virtuallibrarycard/vlc/app/dto"
	businessflow "github.com/virtuallibrarycard/vlc/business_flow"
)

// PatronAPIHandlerInterface defines the contract for the PATRONAPI endpoints
type PatronAPIHandlerInterface interface {
	PinTest(c fiber.Ctx) error
	PinTestPOST(c fiber.Ctx) error
	Dump(c fiber.Ctx) error
}

// PatronAPIHandler serves the III PATRONAPI compatibility surface. Responses
// are rendered as HTML key=value lines because that is what ILS clients
// screen-scrape.
type PatronAPIHandler struct {
	patronAPIFlow businessflow.PatronAPIFlow
}

// NewPatronAPIHandler creates a new PATRONAPI handler
func NewPatronAPIHandler(patronAPIFlow businessflow.PatronAPIFlow) *PatronAPIHandler {
	return &PatronAPIHandler{patronAPIFlow: patronAPIFlow}
}

func renderPinTest(c fiber.Ctx, result *dto.PinTestResult) error {
	var b strings.Builder
	fmt.Fprintf(&b, "RETCOD=%d<BR>\n", result.RetCod)
	if result.ErrNum != nil {
		fmt.Fprintf(&b, "ERRNUM=%d<BR>\n", *result.ErrNum)
		fmt.Fprintf(&b, "ERRMSG=%s<BR>\n", result.ErrMsg)
	}

	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.SendString(b.String())
}

// PinTest validates a card number / PIN pair (GET variant)
// @Summary PATRONAPI pin test
// @Description Validate a card number and PIN; returns RETCOD/ERRNUM lines
// @Tags PATRONAPI
// @Produce html
// @Param number path string true "Card number"
// @Param pin path string true "Patron PIN"
// @Success 200 {string} string "RETCOD=0"
// @Router /PATRONAPI/{number}/{pin}/pintest [get]
func (h *PatronAPIHandler) PinTest(c fiber.Ctx) error {
	result, err := h.patronAPIFlow.PinTest(requestContext(c), c.Params("number"), c.Params("pin"), clientMetadata(c))
	if err != nil {
		return errorResponse(c, fiber.StatusInternalServerError, "Pin test failed", "PINTEST_FAILED", nil)
	}
	return renderPinTest(c, result)
}

// PinTestPOST validates a card number / PIN pair from a form body
// @Summary PATRONAPI pin test (POST)
// @Description Validate a card number and PIN submitted as form fields
// @Tags PATRONAPI
// @Accept x-www-form-urlencoded
// @Produce html
// @Param number formData string true "Card number"
// @Param pin formData string true "Patron PIN"
// @Success 200 {string} string "RETCOD=0"
// @Router /PATRONAPI/pintest [post]
func (h *PatronAPIHandler) PinTestPOST(c fiber.Ctx) error {
	var req dto.PinTestRequest
	// Both form posts and JSON clients are in the wild; missing fields fall
	// through to the flow's ERRNUM 100000 response.
	if err := c.Bind().Body(&req); err != nil {
		req.Number = c.FormValue("number")
		req.Pin = c.FormValue("pin")
	}

	result, err := h.patronAPIFlow.PinTest(requestContext(c), req.Number, req.Pin, clientMetadata(c))
	if err != nil {
		return errorResponse(c, fiber.StatusInternalServerError, "Pin test failed", "PINTEST_FAILED", nil)
	}
	return renderPinTest(c, result)
}

// Dump lists the cards matching a number
// @Summary PATRONAPI record dump
// @Description List the cards registered under a number
// @Tags PATRONAPI
// @Produce html
// @Param number path string true "Card number"
// @Success 200 {string} string "Card records"
// @Router /PATRONAPI/{number}/dump [get]
func (h *PatronAPIHandler) Dump(c fiber.Ctx) error {
	result, err := h.patronAPIFlow.Dump(requestContext(c), c.Params("number"))
	if err != nil {
		return errorResponse(c, fiber.StatusInternalServerError, "Dump failed", "DUMP_FAILED", nil)
	}

	var b strings.Builder
	if result.ErrNum != nil {
		fmt.Fprintf(&b, "ERRNUM=%d<BR>\n", *result.ErrNum)
		fmt.Fprintf(&b, "ERRMSG=%s<BR>\n", result.ErrMsg)
	} else {
		for _, card := range result.LibraryCards {
			fmt.Fprintf(&b, "P BARCODE[pb]=%s%s<BR>\n", card.Number, card.Status)
			if card.ExpirationDate != nil {
				fmt.Fprintf(&b, "EXP DATE[p43]=%s<BR>\n", card.ExpirationDate.Format("01-02-06"))
			}
			fmt.Fprintf(&b, "CREATED[p83]=%s<BR>\n", card.Created.Format("01-02-06"))
		}
	}

	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.SendString(b.String())
}
