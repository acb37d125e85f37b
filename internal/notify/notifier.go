// AngelaMos | 2026
// notifier.go

package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/fertilityflow/portal/internal/config"
)

// Brevo contact attribute names.
const (
	attrFirstName       = "FIRSTNAME"
	attrLastName        = "LASTNAME"
	attrPhone           = "PHONE"
	attrMessage         = "MESSAGE"
	attrInterests       = "INTERESTS"
	attrNewsletterOptIn = "NEWSLETTER_OPTIN"
)

type Sender interface {
	Configured() bool
	SendTemplate(ctx context.Context, email TemplateEmail) error
	CreateContact(ctx context.Context, contact Contact) error
	GetContact(ctx context.Context, email string) (*Contact, error)
	UpdateContact(ctx context.Context, contact Contact) error
}

type Enqueuer interface {
	Enqueue(task Task) bool
}

type Notifier struct {
	sender    Sender
	queue     Enqueuer
	templates config.TemplatesConfig
	lists     config.ListsConfig
	publicURL string
	log       *slog.Logger
}

func NewNotifier(
	sender Sender,
	queue Enqueuer,
	cfg config.NotifyConfig,
	publicURL string,
	log *slog.Logger,
) *Notifier {
	if log == nil {
		log = slog.Default()
	}

	return &Notifier{
		sender:    sender,
		queue:     queue,
		templates: cfg.Templates,
		lists:     cfg.Lists,
		publicURL: strings.TrimRight(publicURL, "/"),
		log:       log,
	}
}

// Welcome syncs a new portal user into the CRM and sends the welcome
// template. Both steps are best effort and run off the request path.
func (n *Notifier) Welcome(email, name string) {
	first, last := splitName(name)

	n.enqueue("welcome", func(ctx context.Context) error {
		err := n.sender.CreateContact(ctx, Contact{
			Email: email,
			Attributes: map[string]any{
				attrFirstName: first,
				attrLastName:  last,
			},
			ListIDs: nonZero(n.lists.PortalUsers),
		})
		if err != nil && !errors.Is(err, ErrContactExists) {
			n.log.Warn("portal contact sync failed",
				slog.String("email", email),
				slog.Any("error", err),
			)
		}

		return n.sender.SendTemplate(ctx, TemplateEmail{
			TemplateID: n.templates.Welcome,
			To:         Recipient{Email: email, Name: name},
		})
	})
}

func (n *Notifier) PurchaseConfirmation(
	email, name, productName string,
	amountCents int64,
) {
	n.enqueue("purchase_confirmation", func(ctx context.Context) error {
		return n.sender.SendTemplate(ctx, TemplateEmail{
			TemplateID: n.templates.PurchaseConfirmation,
			To:         Recipient{Email: email, Name: name},
			Params: map[string]any{
				"productName":  productName,
				"amount":       fmt.Sprintf("%.2f", float64(amountCents)/100),
				"dashboardUrl": n.publicURL + "/dashboard",
			},
		})
	})
}

// BonusUnlocked is skipped when no template is configured.
func (n *Notifier) BonusUnlocked(email, name, productName, productSlug string) {
	if n.templates.BonusUnlocked == 0 {
		n.log.Info("bonus unlocked, no template configured",
			slog.String("email", email),
			slog.String("product", productSlug),
		)
		return
	}

	n.enqueue("bonus_unlocked", func(ctx context.Context) error {
		return n.sender.SendTemplate(ctx, TemplateEmail{
			TemplateID: n.templates.BonusUnlocked,
			To:         Recipient{Email: email, Name: name},
			Params: map[string]any{
				"productName": productName,
				"programUrl":  n.publicURL + "/dashboard/programs/" + productSlug,
			},
		})
	})
}

func (n *Notifier) PasswordReset(email, name, token string) {
	resetURL := n.publicURL + "/auth/reset-password?token=" + token

	n.enqueue("password_reset", func(ctx context.Context) error {
		return n.sender.SendTemplate(ctx, TemplateEmail{
			TemplateID: n.templates.PasswordReset,
			To:         Recipient{Email: email, Name: name},
			Params: map[string]any{
				"resetUrl": resetURL,
				"name":     name,
			},
		})
	})
}

// SubscribeNewsletter runs inline because the caller reports the outcome.
// A failed welcome email does not undo the subscription.
func (n *Notifier) SubscribeNewsletter(
	ctx context.Context,
	email string,
) (alreadySubscribed bool, err error) {
	if !n.sender.Configured() {
		return false, ErrNotConfigured
	}

	err = n.sender.CreateContact(ctx, Contact{
		Email:   email,
		ListIDs: nonZero(n.lists.Newsletter),
	})
	if errors.Is(err, ErrContactExists) {
		if upErr := n.sender.UpdateContact(ctx, Contact{
			Email:   email,
			ListIDs: nonZero(n.lists.Newsletter),
		}); upErr != nil {
			n.log.Warn("newsletter list update failed",
				slog.String("email", email),
				slog.Any("error", upErr),
			)
		}
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("create newsletter contact: %w", err)
	}

	if mailErr := n.sender.SendTemplate(ctx, TemplateEmail{
		TemplateID: n.templates.NewsletterWelcome,
		To:         Recipient{Email: email},
	}); mailErr != nil {
		n.log.Warn("newsletter welcome email failed",
			slog.String("email", email),
			slog.Any("error", mailErr),
		)
	}

	return false, nil
}

type Booking struct {
	FirstName       string
	LastName        string
	Email           string
	Phone           string
	Message         string
	Interests       []string
	NewsletterOptIn bool
}

// BookSession upserts the enquiry into the booking list. For an existing
// contact, blank identity fields are filled, message and interests are
// replaced, opt-in is sticky and list memberships are kept.
func (n *Notifier) BookSession(ctx context.Context, b Booking) error {
	if !n.sender.Configured() {
		return ErrNotConfigured
	}

	err := n.sender.CreateContact(ctx, Contact{
		Email: b.Email,
		Attributes: map[string]any{
			attrFirstName:       b.FirstName,
			attrLastName:        b.LastName,
			attrPhone:           b.Phone,
			attrMessage:         b.Message,
			attrInterests:       strings.Join(b.Interests, ", "),
			attrNewsletterOptIn: b.NewsletterOptIn,
		},
		ListIDs: nonZero(n.lists.BookSession),
	})
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrContactExists) {
		return fmt.Errorf("create booking contact: %w", err)
	}

	existing, err := n.sender.GetContact(ctx, b.Email)
	if err != nil {
		n.log.Warn("booking contact lookup failed",
			slog.String("email", b.Email),
			slog.Any("error", err),
		)
		return nil
	}

	merged := MergeBooking(existing, b, n.lists.BookSession)
	if err := n.sender.UpdateContact(ctx, merged); err != nil {
		n.log.Warn("booking contact update failed",
			slog.String("email", b.Email),
			slog.Any("error", err),
		)
	}

	return nil
}

func MergeBooking(existing *Contact, b Booking, listID int64) Contact {
	attrs := existing.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}

	keep := func(key, fallback string) string {
		if v, ok := attrs[key].(string); ok && v != "" {
			return v
		}
		return fallback
	}

	optIn := b.NewsletterOptIn
	if v, ok := attrs[attrNewsletterOptIn].(bool); ok && v {
		optIn = true
	}

	lists := slices.Clone(existing.ListIDs)
	if listID != 0 && !slices.Contains(lists, listID) {
		lists = append(lists, listID)
	}

	return Contact{
		Email: b.Email,
		Attributes: map[string]any{
			attrFirstName:       keep(attrFirstName, b.FirstName),
			attrLastName:        keep(attrLastName, b.LastName),
			attrPhone:           keep(attrPhone, b.Phone),
			attrMessage:         b.Message,
			attrInterests:       strings.Join(b.Interests, ", "),
			attrNewsletterOptIn: optIn,
		},
		ListIDs: lists,
	}
}

func (n *Notifier) enqueue(kind string, fn func(ctx context.Context) error) {
	if !n.sender.Configured() {
		n.log.Warn("brevo not configured, skipping notification",
			slog.String("kind", kind),
		)
		return
	}

	n.queue.Enqueue(Task{Kind: kind, Run: fn})
}

func splitName(name string) (first, last string) {
	first, last, _ = strings.Cut(strings.TrimSpace(name), " ")
	return first, strings.TrimSpace(last)
}

func nonZero(id int64) []int64 {
	if id == 0 {
		return nil
	}
	return []int64{id}
}
