package models

import "fmt"

// TransactionStatus is the closed set of lifecycle states a transaction
// can be in. The zero value is not valid; transactions are always created
// as StatusWaitingForPayment.
type TransactionStatus string

const (
	StatusWaitingForPayment      TransactionStatus = "WAITING_FOR_PAYMENT"
	StatusWaitingForConfirmation TransactionStatus = "WAITING_FOR_CONFIRMATION"
	StatusPaid                   TransactionStatus = "PAID"
	StatusWaitingForReview       TransactionStatus = "WAITING_FOR_REVIEW"
	StatusReviewDone             TransactionStatus = "REVIEW_DONE"
	StatusExpired                TransactionStatus = "EXPIRED"
	StatusCanceled               TransactionStatus = "CANCELED"
	StatusReject                 TransactionStatus = "REJECT"
)

// Terminal reports whether no further transition can leave this status.
func (s TransactionStatus) Terminal() bool {
	switch s {
	case StatusReviewDone, StatusExpired, StatusCanceled, StatusReject:
		return true
	case StatusWaitingForPayment, StatusWaitingForConfirmation, StatusPaid, StatusWaitingForReview:
		return false
	}
	return false
}

func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusWaitingForPayment, StatusWaitingForConfirmation, StatusPaid,
		StatusWaitingForReview, StatusReviewDone, StatusExpired, StatusCanceled, StatusReject:
		return true
	}
	return false
}

// PointSource discriminates point ledger entries. EARN, REFERRAL and
// ROLLBACK_REDEEM entries carry positive amounts and an expiry; REDEEM
// entries carry negative amounts and never expire out of the balance.
type PointSource string

const (
	PointEarn           PointSource = "EARN"
	PointRedeem         PointSource = "REDEEM"
	PointReferral       PointSource = "REFERRAL"
	PointRollbackRedeem PointSource = "ROLLBACK_REDEEM"
)

func (p PointSource) Valid() bool {
	switch p {
	case PointEarn, PointRedeem, PointReferral, PointRollbackRedeem:
		return true
	}
	return false
}

// Positive reports whether entries of this source add to the balance.
func (p PointSource) Positive() bool {
	switch p {
	case PointEarn, PointReferral, PointRollbackRedeem:
		return true
	case PointRedeem:
		return false
	}
	return false
}

func ParsePointSource(s string) (PointSource, error) {
	p := PointSource(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown point source %q", s)
	}
	return p, nil
}
