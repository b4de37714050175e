package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/saju/pkg/quota"
	"github.com/dmitrymomot/saju/pkg/subscription"
)

type moneyResponse struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type subscriptionResponse struct {
	Tier             string        `json:"tier"`
	Status           string        `json:"status"`
	PeriodEndsAt     *time.Time    `json:"period_ends_at"`
	CancelledAt      *time.Time    `json:"cancelled_at"`
	RemainingSeconds int64         `json:"remaining_seconds"`
	CreditsRemaining int           `json:"credits_remaining"`
	Quota            int           `json:"quota"`
	Model            string        `json:"model"`
	Price            moneyResponse `json:"price"`
	HasBillingMethod bool          `json:"has_billing_method"`
}

// newSubscriptionResponse reports spendable credits from the evaluated
// status, so an expired period shows none.
func newSubscriptionResponse(acc *subscription.Account, st subscription.Status, plan subscription.Plan, hasToken bool) subscriptionResponse {
	resp := subscriptionResponse{
		Tier:             string(acc.Tier),
		Status:           string(st.Kind),
		PeriodEndsAt:     acc.PeriodEndsAt,
		CancelledAt:      acc.CancelledAt,
		Quota:            plan.Quota,
		Model:            plan.Model,
		Price:            moneyResponse{Amount: plan.Price.Amount, Currency: plan.Price.Currency},
		HasBillingMethod: hasToken,
	}
	switch {
	case st.IsPaid():
		resp.CreditsRemaining = st.Remaining
		resp.RemainingSeconds = int64(st.TimeLeft / time.Second)
	case st.Kind == subscription.StatusFree:
		resp.CreditsRemaining = acc.CreditsRemaining
	}
	return resp
}

type upgradeRequest struct {
	PaymentMethod string `json:"payment_method"`
	Email         string `json:"email,omitempty"`
	Name          string `json:"name,omitempty"`
}

type usageResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	BirthDate string    `json:"birth_date"`
	BirthTime string    `json:"birth_time,omitempty"`
	IsLunar   bool      `json:"is_lunar"`
	Gender    string    `json:"gender"`
	TimeZone  string    `json:"time_zone,omitempty"`
	Note      string    `json:"note,omitempty"`
	Result    string    `json:"result,omitempty"`
	Tier      string    `json:"tier"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
}

// newUsageResponse omits the reading text when full is false, for lists.
func newUsageResponse(u *quota.UsageRecord, full bool) usageResponse {
	resp := usageResponse{
		ID:        u.ID,
		Name:      u.Subject.Name,
		BirthDate: u.Subject.BirthDate,
		BirthTime: u.Subject.BirthTime,
		IsLunar:   u.Subject.IsLunar,
		Gender:    u.Subject.Gender,
		TimeZone:  u.Subject.TimeZone,
		Note:      u.Subject.Note,
		Tier:      string(u.Tier),
		Model:     u.Model,
		CreatedAt: u.CreatedAt,
	}
	if full {
		resp.Result = u.Result
	}
	return resp
}

type identityWebhook struct {
	Type string `json:"type"`
	Data struct {
		ID          string `json:"id"`
		Email       string `json:"email"`
		DisplayName string `json:"display_name"`
	} `json:"data"`
}
