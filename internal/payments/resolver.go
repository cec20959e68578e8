package payments

import (
	"ajeenpos/internal/models"
)

// ResolveStatus derives a Payment's status from the multiset of its
// transactions' statuses. It is a pure function: replaying events in any order
// converges to the same result once the ledger converges.
func ResolveStatus(txns []models.PaymentTransaction) models.PaymentStatus {
	if len(txns) == 0 {
		return models.PaymentPending
	}

	var completed, refunded, failed, pending, canceled int
	for _, t := range txns {
		switch t.Status {
		case models.TxnCompleted:
			completed++
		case models.TxnRefunded:
			refunded++
		case models.TxnFailed:
			failed++
		case models.TxnCanceled:
			canceled++
		default:
			pending++
		}
	}
	total := len(txns)

	switch {
	case refunded == total:
		return models.PaymentRefunded
	case refunded > 0 && completed > 0:
		return models.PaymentPartiallyRefunded
	case refunded > 0:
		return models.PaymentRefunded
	case completed == total:
		return models.PaymentCompleted
	case failed > 0 && failed+canceled+refunded == total:
		return models.PaymentFailed
	case canceled > 0 && canceled+failed+refunded == total:
		return models.PaymentCanceled
	case pending > 0:
		return models.PaymentPending
	default:
		return models.PaymentPending
	}
}

// OrderPaymentStatus maps a Payment status onto the Order's payment_status
// vocabulary. The mapping is total; refund_failed has no Payment-side
// counterpart and is applied only as an explicit override by refund handlers.
func OrderPaymentStatus(status models.PaymentStatus) models.OrderPaymentStatus {
	switch status {
	case models.PaymentCompleted:
		return models.OrderPaymentPaid
	case models.PaymentFailed:
		return models.OrderPaymentFailed
	case models.PaymentRefunded:
		return models.OrderPaymentRefunded
	case models.PaymentPartiallyRefunded:
		return models.OrderPaymentPartiallyRefunded
	case models.PaymentDisputed:
		return models.OrderPaymentDisputed
	case models.PaymentCanceled:
		return models.OrderPaymentCanceled
	case models.PaymentVoided:
		return models.OrderPaymentVoided
	default:
		return models.OrderPaymentPending
	}
}
