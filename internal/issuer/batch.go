package issuer

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/storacha/certifier/internal/ledger"
)

type ItemStatus string

const (
	ItemIssued  ItemStatus = "issued"
	ItemSkipped ItemStatus = "skipped"
	ItemFailed  ItemStatus = "failed"
)

const (
	ReasonAborted   = "batch aborted"
	ReasonCancelled = "batch cancelled"
)

// ItemResult reports one row of a batch.
type ItemResult struct {
	Index          int        `json:"index"`
	Line           int        `json:"line,omitempty"`
	RegistrationNo string     `json:"registration_no"`
	Status         ItemStatus `json:"status"`
	Reason         string     `json:"reason,omitempty"`
	Issued         *Issued    `json:"issued,omitempty"`
}

type BatchResult struct {
	ID      string       `json:"id"`
	Items   []ItemResult `json:"items"`
	Issued  int          `json:"issued"`
	Skipped int          `json:"skipped"`
	Failed  int          `json:"failed"`
	// Aborted is set when a ledger outage stopped the batch.
	Aborted     bool   `json:"aborted"`
	AbortReason string `json:"abort_reason,omitempty"`
}

// IssueBatch issues every request independently. A failed row never stops
// the rows after it, except when the ledger is unavailable: then the rows
// not yet started are skipped and the error is returned with the partial
// result. Items are reported in request order.
func (s *Service) IssueBatch(ctx context.Context, reqs []Request) (*BatchResult, error) {
	res := &BatchResult{
		ID:    uuid.New().String(),
		Items: make([]ItemResult, len(reqs)),
	}
	log.Infow("Starting batch", "batch", res.ID, "rows", len(reqs), "concurrency", s.concurrency)

	var (
		mu    sync.Mutex
		fatal error
	)
	halted := func() error {
		mu.Lock()
		defer mu.Unlock()
		return fatal
	}

	p := pool.New().WithMaxGoroutines(s.concurrency)
	for i, req := range reqs {
		item := &res.Items[i]
		item.Index = i
		item.Line = req.Line
		item.RegistrationNo = req.RegistrationNo

		p.Go(func() {
			if halted() != nil {
				item.Status, item.Reason = ItemSkipped, ReasonAborted
				return
			}
			if ctx.Err() != nil {
				item.Status, item.Reason = ItemSkipped, ReasonCancelled
				return
			}

			issued, err := s.Issue(ctx, req)
			if err == nil {
				item.Status = ItemIssued
				item.Issued = issued
				return
			}
			item.Status, item.Reason = classify(err)
			if errors.Is(err, ledger.ErrUnavailable) {
				mu.Lock()
				if fatal == nil {
					fatal = err
				}
				mu.Unlock()
			}
			log.Warnw("Batch row not issued", "batch", res.ID, "index", i, "status", item.Status, "error", err)
		})
	}
	p.Wait()

	for _, item := range res.Items {
		switch item.Status {
		case ItemIssued:
			res.Issued++
		case ItemSkipped:
			res.Skipped++
		case ItemFailed:
			res.Failed++
		}
		s.metrics.BatchRow(string(item.Status))
	}

	if fatal != nil {
		res.Aborted = true
		res.AbortReason = fatal.Error()
		log.Errorw("Batch aborted", "batch", res.ID, "issued", res.Issued, "error", fatal)
		return res, fatal
	}
	log.Infow("Finished batch", "batch", res.ID, "issued", res.Issued, "skipped", res.Skipped, "failed", res.Failed)
	return res, nil
}

// classify maps an issue error to a row status and the reason shown to the
// institution.
func classify(err error) (ItemStatus, string) {
	for _, sentinel := range []error{
		ErrInvalidRequest,
		ErrDuplicateRegistration,
		ErrDuplicateEmail,
		ErrUnknownInstitution,
		ErrAlreadyIssued,
	} {
		if errors.Is(err, sentinel) {
			return ItemSkipped, sentinel.Error()
		}
	}
	return ItemFailed, err.Error()
}
