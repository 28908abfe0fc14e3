package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"purchase-confirmation-service/internal/domain"
	"purchase-confirmation-service/internal/fulfillment"
	"purchase-confirmation-service/internal/ledger"
	"purchase-confirmation-service/internal/memo"
	"purchase-confirmation-service/internal/metrics"
	"purchase-confirmation-service/internal/repository"
)

// LedgerResolver resolves a signature into a full transaction.
type LedgerResolver interface {
	GetTransaction(ctx context.Context, signature string) (*ledger.Transaction, error)
}

// watcherService is the per-event pipeline: resolve, decode, verify,
// forward. Every drop is terminal and logged; nothing is retried or queued.
type watcherService struct {
	merchant     string
	tolerancePct float64
	ledger       LedgerResolver
	fulfillment  fulfillment.Service
	seen         repository.SignatureStore
}

func NewWatcherService(merchant string, tolerancePct float64, resolver LedgerResolver, host fulfillment.Service, seen repository.SignatureStore) *watcherService {
	return &watcherService{
		merchant:     merchant,
		tolerancePct: tolerancePct,
		ledger:       resolver,
		fulfillment:  host,
		seen:         seen,
	}
}

func (s *watcherService) HandleSignature(ctx context.Context, event domain.LedgerEvent) {
	logCtx := log.WithFields(log.Fields{
		"signature":   event.Signature,
		"handling_id": uuid.NewString(),
	})
	logCtx.Debug("Handling ledger event")

	if s.seen.Seen(event.Signature) {
		metrics.EventsDropped.WithLabelValues(metrics.ReasonDuplicate).Inc()
		logCtx.Info("Signature already forwarded, skipping")
		return
	}

	// Fast path: the notification logs usually carry the memo already.
	memoText, ok := ledger.MemoFromLogs(event.Logs)
	var tx *ledger.Transaction
	var err error
	if !ok {
		tx, err = s.ledger.GetTransaction(ctx, event.Signature)
		if err != nil {
			metrics.EventsDropped.WithLabelValues(metrics.ReasonResolveFailed).Inc()
			logCtx.WithError(err).Warn("Could not resolve transaction")
			return
		}
		memoText, err = ledger.MemoFromTransaction(tx)
		if err != nil {
			metrics.EventsDropped.WithLabelValues(metrics.ReasonNoMemo).Inc()
			logCtx.Warn("Could not find memo, skipping")
			return
		}
		logCtx.WithField("memo", memoText).Debug("Parsed memo from on-chain instruction")
	} else {
		logCtx.WithField("memo", memoText).Debug("Parsed memo from logs")
	}

	if tx == nil {
		tx, err = s.ledger.GetTransaction(ctx, event.Signature)
		if err != nil {
			metrics.EventsDropped.WithLabelValues(metrics.ReasonResolveFailed).Inc()
			logCtx.WithError(err).Warn("Could not resolve transaction")
			return
		}
	}

	lamports, err := ledger.MerchantDelta(tx, s.merchant)
	if err != nil {
		metrics.EventsDropped.WithLabelValues(metrics.ReasonNoCredit).Inc()
		if errors.Is(err, ledger.ErrNoMerchant) {
			logCtx.Debug("Merchant not in transaction accounts, skipping")
		} else {
			logCtx.WithError(err).Warn("Could not compute merchant delta")
		}
		return
	}
	if lamports <= 0 {
		metrics.EventsDropped.WithLabelValues(metrics.ReasonNoCredit).Inc()
		logCtx.Debug("No lamport credit, skipping")
		return
	}
	paid := ledger.LamportsToSOL(lamports)
	logCtx.WithField("sol_paid", paid.String()).Info("Payment detected")

	decoded, err := memo.Decode(memoText)
	if err != nil {
		metrics.EventsDropped.WithLabelValues(metrics.ReasonBadMemo).Inc()
		logCtx.WithField("memo", memoText).Warn("Unexpected memo format, skipping")
		return
	}

	// No session lookup by reference exists, so the paid amount is the
	// only expected amount available. The check stays for observability.
	s.checkTolerance(logCtx, paid, paid)

	record := domain.CompletionRecord{
		UserID:       decoded.UserID,
		Kind:         decoded.Kind,
		PurchaseType: decoded.PurchaseType,
		BookID:       decoded.BookID,
		AmountSOL:    paid,
		Currency:     "sol",
		TxSignature:  event.Signature,
		Reference:    event.Signature,
	}

	if decoded.Kind == domain.KindSubscription {
		err = s.fulfillment.RecordSubscriptionCompletion(ctx, record)
	} else {
		err = s.fulfillment.RecordTitleCompletion(ctx, record)
	}
	if err != nil {
		metrics.EventsDropped.WithLabelValues(metrics.ReasonForwardFailed).Inc()
		logCtx.WithError(err).Error("Failed to forward completion")
		return
	}

	s.seen.MarkForwarded(event.Signature)
	metrics.CompletionsForwarded.Inc()
	logCtx.WithFields(log.Fields{
		"user_id": decoded.UserID,
		"kind":    decoded.Kind,
	}).Info("Completion forwarded")
}
