package mail

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"strings"

	"github.com/gofiber/template/html/v2"

	"github.com/ManuelReschke/ChaletBook/internal/pkg/booking"
	"github.com/ManuelReschke/ChaletBook/internal/pkg/checkout"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	guestTemplate = "booking_confirmation"
	ownerTemplate = "owner_notification"
)

type confirmationView struct {
	Reference  string
	ChaletName string
	GuestName  string
	GuestEmail string
	GuestPhone string
	OwnerName  string
	StartDate  string
	EndDate    string
	Nights     int
	Guests     int
	Total      string
}

// ConfirmationNotifier emails the guest and, when known, the chalet owner.
type ConfirmationNotifier struct {
	sender   Sender
	engine   *html.Engine
	currency checkout.Currency
}

func NewConfirmationNotifier(sender Sender, currency checkout.Currency) (*ConfirmationNotifier, error) {
	sub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, err
	}
	engine := html.NewFileSystem(http.FS(sub), ".html")
	if err := engine.Load(); err != nil {
		return nil, fmt.Errorf("mail: load templates: %w", err)
	}
	if currency.Code == "" {
		currency = checkout.DefaultCurrency
	}
	return &ConfirmationNotifier{sender: sender, engine: engine, currency: currency}, nil
}

func (n *ConfirmationNotifier) SendBookingConfirmation(ctx context.Context, c booking.Confirmation) error {
	b := c.Booking
	view := confirmationView{
		Reference:  b.Reference,
		ChaletName: b.ChaletName,
		GuestName:  b.GuestName,
		GuestEmail: b.GuestEmail,
		GuestPhone: b.GuestPhone,
		OwnerName:  c.OwnerName,
		StartDate:  b.StartDate.Format(checkout.DateLayout),
		EndDate:    b.EndDate.Format(checkout.DateLayout),
		Nights:     b.Nights,
		Guests:     b.Guests,
		Total:      n.formatAmount(b.TotalPrice, b.Currency),
	}

	body, err := n.render(guestTemplate, view)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("Réservation confirmée · %s", b.ChaletName)
	if err := n.sender.Send(ctx, b.GuestEmail, subject, body); err != nil {
		return fmt.Errorf("mail: guest confirmation: %w", err)
	}

	owner := strings.TrimSpace(c.OwnerEmail)
	if owner == "" || strings.EqualFold(owner, b.GuestEmail) {
		return nil
	}
	body, err = n.render(ownerTemplate, view)
	if err != nil {
		return err
	}
	subject = fmt.Sprintf("Nouvelle réservation %s · %s", b.Reference, b.ChaletName)
	if err := n.sender.Send(ctx, owner, subject, body); err != nil {
		return fmt.Errorf("mail: owner notification: %w", err)
	}
	return nil
}

func (n *ConfirmationNotifier) render(name string, view confirmationView) (string, error) {
	var buf bytes.Buffer
	if err := n.engine.Render(&buf, name, view); err != nil {
		return "", fmt.Errorf("mail: render %s: %w", name, err)
	}
	return buf.String(), nil
}

func (n *ConfirmationNotifier) formatAmount(amount float64, code string) string {
	cur := n.currency
	if code != "" && !strings.EqualFold(code, cur.Code) {
		cur = checkout.Currency{Code: code, Decimals: cur.Decimals}
	}
	return fmt.Sprintf("%.*f %s", cur.Decimals, cur.Round(amount), cur)
}
