package app

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	stripe "github.com/stripe/stripe-go/v82"
)

// Event types the reconciler acts on. Everything else is acknowledged.
const (
	EventCheckoutSessionCompleted    = "checkout.session.completed"
	EventCustomerSubscriptionUpdated = "customer.subscription.updated"
	EventCustomerSubscriptionDeleted = "customer.subscription.deleted"
)

type RefKind int

const (
	RefNone RefKind = iota
	RefID
	RefInline
)

// Ref is a Stripe field that is either null, a bare identifier or an
// expanded object.
type Ref struct {
	Kind   RefKind
	ID     string
	Inline json.RawMessage
}

// IDRef returns a reference holding a bare identifier.
func IDRef(id string) Ref {
	if id == "" {
		return Ref{}
	}
	return Ref{Kind: RefID, ID: id}
}

func (r *Ref) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*r = Ref{}
	case b[0] == '"':
		var id string
		if err := json.Unmarshal(b, &id); err != nil {
			return err
		}
		*r = IDRef(id)
	case b[0] == '{':
		var obj struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		*r = Ref{Kind: RefInline, ID: obj.ID, Inline: append(json.RawMessage(nil), b...)}
	default:
		return fmt.Errorf("unexpected reference value %s", b)
	}
	return nil
}

func (r Ref) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case RefID:
		return json.Marshal(r.ID)
	case RefInline:
		return r.Inline, nil
	}
	return []byte("null"), nil
}

// CheckoutSession is the part of a checkout.session object the reconciler reads.
type CheckoutSession struct {
	ID                string `json:"id"`
	Mode              string `json:"mode"`
	ClientReferenceID string `json:"client_reference_id"`
	Customer          Ref    `json:"customer"`
	Subscription      Ref    `json:"subscription"`
}

// Subscription is the part of a subscription object the projection reads.
type Subscription struct {
	ID       string               `json:"id"`
	Customer Ref                  `json:"customer"`
	Status   string               `json:"status"`
	Items    SubscriptionItemList `json:"items"`
}

type SubscriptionItemList struct {
	Data []SubscriptionItem `json:"data"`
}

// SubscriptionItem carries the billing period; either bound may be absent
// on partial payloads.
type SubscriptionItem struct {
	ID                 string `json:"id"`
	Plan               *Plan  `json:"plan"`
	CurrentPeriodStart *int64 `json:"current_period_start"`
	CurrentPeriodEnd   *int64 `json:"current_period_end"`
}

type Plan struct {
	ID      string `json:"id"`
	Product Ref    `json:"product"`
}

// CheckoutRequest is the caller's plan choice.
type CheckoutRequest struct {
	PriceID    string `json:"price_id" validate:"required,max=255"`
	SuccessURL string `json:"success_url" validate:"omitempty,max=2048,uri"`
	CancelURL  string `json:"cancelled_url" validate:"omitempty,max=2048,uri"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the request's shape. Plan membership is checked by the service.
func (r CheckoutRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}

// CheckoutResponse points the caller at the hosted checkout page.
type CheckoutResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// subscriptionFromStripe converts an SDK subscription fetched by the gateway.
func subscriptionFromStripe(s stripe.Subscription) Subscription {
	out := Subscription{ID: s.ID, Status: string(s.Status)}
	if s.Customer != nil {
		out.Customer = IDRef(s.Customer.ID)
	}
	if s.Items == nil {
		return out
	}
	for _, it := range s.Items.Data {
		if it == nil {
			continue
		}
		item := SubscriptionItem{ID: it.ID}
		if it.Plan != nil {
			item.Plan = &Plan{ID: it.Plan.ID}
			if it.Plan.Product != nil {
				item.Plan.Product = IDRef(it.Plan.Product.ID)
			}
		}
		if it.CurrentPeriodStart != 0 {
			start := it.CurrentPeriodStart
			item.CurrentPeriodStart = &start
		}
		if it.CurrentPeriodEnd != 0 {
			end := it.CurrentPeriodEnd
			item.CurrentPeriodEnd = &end
		}
		out.Items.Data = append(out.Items.Data, item)
	}
	return out
}
