// Package receipt turns a recorded loan payment into a customer-facing
// message and hands it to a WhatsApp sender. Delivery is best effort: nothing
// here can fail the payment that produced the receipt.
package receipt

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Receipt struct {
	PaymentID    uuid.UUID `json:"payment_id"`
	CustomerName string    `json:"customer_name"`
	Phone        string    `json:"phone"`
	LoanLabel    string    `json:"loan_label,omitempty"`
	Amount       int64     `json:"amount"`
	PaymentDate  time.Time `json:"payment_date"`
	WeekNumber   int       `json:"week_number"`
	BalanceAfter int64     `json:"balance_after"`
	Mode         string    `json:"mode"`
}

// Text renders the message body.
func (r Receipt) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Payment received\n")
	fmt.Fprintf(&b, "Name: %s\n", r.CustomerName)
	if r.LoanLabel != "" {
		fmt.Fprintf(&b, "Loan: %s\n", r.LoanLabel)
	}
	fmt.Fprintf(&b, "Amount: Rs.%d (%s)\n", r.Amount, r.Mode)
	fmt.Fprintf(&b, "Date: %s\n", r.PaymentDate.Format("02-01-2006"))
	fmt.Fprintf(&b, "Week: %d\n", r.WeekNumber)
	fmt.Fprintf(&b, "Balance: Rs.%d", r.BalanceAfter)
	if r.BalanceAfter == 0 {
		b.WriteString("\nLoan fully paid. Thank you!")
	}
	return b.String()
}

var ErrInvalidPhone = errors.New("invalid phone number")

// DefaultCountryCode is prefixed to bare 10-digit numbers when none is
// configured.
const DefaultCountryCode = "91"

// NormalizePhone keeps digits only, prefixing countryCode to bare 10-digit
// numbers.
func NormalizePhone(phone, countryCode string) (string, error) {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if len(d) < 10 {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhone, phone)
	}
	if len(d) == 10 && !strings.HasPrefix(phone, "+") {
		d = countryCode + d
	}
	return d, nil
}

// WhatsAppLink builds the click-to-chat deep link for phone with text prefilled.
func WhatsAppLink(baseURL, countryCode, phone, text string) (string, error) {
	number, err := NormalizePhone(phone, countryCode)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/" + number)
	if err != nil {
		return "", fmt.Errorf("invalid whatsapp base url: %w", err)
	}
	q := u.Query()
	q.Set("text", text)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
