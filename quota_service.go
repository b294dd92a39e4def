package main

import (
	"fmt"
	"sync"
	"time"
)

// QuotaService is the RU ledger. Debits are append-only rows; usage for
// the current billing window is the sum of ru_cost since the first of
// the month in the billing timezone. The read-sum-then-append sequence
// is serialized per process, which bounds concurrent overshoot to one
// operation.
type QuotaService struct {
	db    *DatabaseService
	loc   *time.Location
	clock Clock
	mu    sync.Mutex
}

func NewQuotaService(db *DatabaseService, billingTimezone string, clock Clock) (*QuotaService, error) {
	if billingTimezone == "" {
		billingTimezone = DEFAULT_BILLING_TIMEZONE
	}
	loc, err := time.LoadLocation(billingTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid billing timezone %s: %w", billingTimezone, err)
	}
	return &QuotaService{db: db, loc: loc, clock: clock}, nil
}

func (q *QuotaService) Location() *time.Location {
	return q.loc
}

// DebitDecision is the structured answer to a debit attempt. When
// Allowed is false the caller must not perform the operation; Remaining
// tells it how much partial capacity is left.
type DebitDecision struct {
	Allowed   bool
	Remaining int
	Reason    string
}

// Allowance returns the user's monthly RU budget: per-user override
// first, plan default otherwise.
func (q *QuotaService) Allowance(user *UserModel) int {
	if user.MonthlyRUOverride > 0 {
		return user.MonthlyRUOverride
	}
	if allowance, ok := planAllowances[user.Plan]; ok {
		return allowance
	}
	return planAllowances[PLAN_FREE]
}

// WindowStart returns the first instant of the current billing window.
func (q *QuotaService) WindowStart() time.Time {
	return MonthWindowStart(q.clock, q.loc)
}

// Usage sums debited RUs for a user since the window start.
func (q *QuotaService) Usage(userID string, windowStart time.Time) (int, error) {
	var total int64
	err := q.db.DB().Model(&QuotaEventModel{}).
		Where("user_id = ? AND timestamp >= ?", userID, windowStart).
		Select("COALESCE(SUM(ru_cost), 0)").Scan(&total).Error
	return int(total), err
}

// CheckAndDebit atomically tests the user's remaining allowance and
// appends the debit row when it fits. The debit always precedes the
// external call; failed calls are not refunded so the ledger stays
// monotonic.
func (q *QuotaService) CheckAndDebit(userID string, cost int, source, operationType string) (*DebitDecision, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	user, err := q.db.GetUser(userID)
	if err != nil {
		return nil, fmt.Errorf("quota check for unknown user %s: %w", userID, err)
	}

	if user.AIOverviewPausedUntil != nil && q.clock.Now().Before(*user.AIOverviewPausedUntil) && source != QUOTA_SOURCE_LLM {
		return &DebitDecision{Allowed: false, Reason: QUOTA_REASON_USER_PAUSED}, nil
	}
	if operationType == OP_LLM_QUERY && !llmEnabledPlans[user.Plan] {
		return &DebitDecision{Allowed: false, Reason: QUOTA_REASON_FEATURE_NOT_IN_PLAN}, nil
	}

	allowance := q.Allowance(user)
	usage, err := q.Usage(userID, q.WindowStart())
	if err != nil {
		return nil, err
	}
	remaining := allowance - usage
	if remaining < 0 {
		remaining = 0
	}

	if cost > remaining {
		return &DebitDecision{Allowed: false, Remaining: remaining, Reason: QUOTA_REASON_PLAN_EXHAUSTED}, nil
	}

	if err := q.append(userID, cost, source, operationType); err != nil {
		return nil, err
	}
	return &DebitDecision{Allowed: true, Remaining: remaining - cost}, nil
}

// RecordOperation appends a debit without a capacity test. Used to debit
// the affordable part of a truncated batch and to settle actual LLM
// token costs after a pre-debited call.
func (q *QuotaService) RecordOperation(userID string, cost int, source, operationType string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.append(userID, cost, source, operationType)
}

func (q *QuotaService) append(userID string, cost int, source, operationType string) error {
	if cost <= 0 {
		return nil
	}
	event := QuotaEventModel{
		UserID:        userID,
		Timestamp:     q.clock.Now().UTC(),
		Source:        source,
		OperationType: operationType,
		RUCost:        cost,
	}
	return q.db.DB().Create(&event).Error
}

// LLMCallCost converts token usage into RUs: 1 RU per 1k tokens rounded
// up, capped per call.
func LLMCallCost(tokens int) int {
	if tokens <= 0 {
		return 1
	}
	cost := (tokens + 999) / 1000
	if cost > RU_COST_LLM_CAP_PER_CALL {
		cost = RU_COST_LLM_CAP_PER_CALL
	}
	return cost
}
