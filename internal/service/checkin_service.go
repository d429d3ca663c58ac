package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/iliyamo/event-ticketing/internal/metrics"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/queue"
	"github.com/iliyamo/event-ticketing/internal/repository"
	"github.com/iliyamo/event-ticketing/internal/scan"
)

// ValidateInput is one scan submitted by a check-in device.
type ValidateInput struct {
	Raw     string
	EventID uint64
	StaffID uint64
}

// CheckInResult is what the operator sees after a successful scan.
type CheckInResult struct {
	AttendeeName  string    `json:"attendee_name"`
	ReservationID string    `json:"reservation_id"`
	CredentialID  uint64    `json:"credential_id"`
	UnitIndex     uint32    `json:"unit_index"`
	ValidatedAt   time.Time `json:"validated_at"`
}

// CheckInService validates scanned credentials.  The conditional update
// in CredentialRepo.MarkValidatedTx is the only serialization point, so
// devices scanning different credentials never wait on each other and
// two devices scanning the same credential get exactly one success.
type CheckInService struct {
	db            *sql.DB
	sweeper       *Sweeper
	credentials   *repository.CredentialRepo
	audits        *repository.AuditRepo
	issuer        *Issuer
	occupancy     *OccupancyService
	pusher        OccupancyPusher
	publisher     Publisher
	acceptPending bool
	log           *zap.Logger

	Now func() time.Time
}

// NewCheckInService wires a CheckInService over db.  acceptPending admits
// credentials whose reservation has not been paid yet, as long as its hold
// window, taken from sweeper, has not elapsed.  occupancy, pusher and
// publisher may be nil.
func NewCheckInService(db *sql.DB, sweeper *Sweeper, issuer *Issuer, occupancy *OccupancyService, pusher OccupancyPusher, publisher Publisher, acceptPending bool, log *zap.Logger) *CheckInService {
	if pusher == nil {
		pusher = nopPusher{}
	}
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &CheckInService{
		db:            db,
		sweeper:       sweeper,
		credentials:   repository.NewCredentialRepo(db),
		audits:        repository.NewAuditRepo(db),
		issuer:        issuer,
		occupancy:     occupancy,
		pusher:        pusher,
		publisher:     publisher,
		acceptPending: acceptPending,
		log:           log,
		Now:           utcNow,
	}
}

// Validate resolves a scan to one credential and admits it.  Every
// rejection is appended to the audit trail before it is returned.
func (s *CheckInService) Validate(ctx context.Context, in ValidateInput) (res *CheckInResult, err error) {
	ctx, span := tracer().Start(ctx, "checkin.validate")
	span.SetAttributes(attribute.Int64("event.id", int64(in.EventID)), attribute.Int64("staff.id", int64(in.StaffID)))
	defer func() {
		endSpan(span, err)
		if err != nil {
			metrics.Scan(in.EventID, string(model.ScanFailure), Reason(err))
		} else {
			metrics.Scan(in.EventID, string(model.ScanSuccess), "")
		}
	}()

	kind := scan.KindOf(in.Raw)
	p, err := scan.Parse(in.Raw)
	if err != nil {
		s.log.Debug("unparseable scan", zap.Uint64("event_id", in.EventID), zap.Error(err))
		return nil, s.reject(ctx, in, kind, nil, ErrInvalidCode)
	}
	span.SetAttributes(attribute.String("scan.kind", string(p.Kind)))
	if p.Kind == scan.KindStructured {
		if !s.issuer.Verify(p.ReservationID, p.UserID, p.Hash) {
			return nil, s.reject(ctx, in, kind, nil, ErrInvalidCode)
		}
		if p.EventID != in.EventID {
			return nil, s.reject(ctx, in, kind, nil, ErrNotEligible)
		}
	}

	target, err := s.resolve(ctx, p)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, s.reject(ctx, in, kind, nil, ErrInvalidCode)
	}
	if err != nil {
		return nil, s.reject(ctx, in, kind, nil, fmt.Errorf("resolve credential: %w", err))
	}

	// A receipt scanned without a unit admits whichever unit is still
	// pending, so losing the swap to another lane moves on to the next
	// unit.  Each lost swap means one more unit was validated, which
	// bounds the retries by the reservation quantity.
	unitless := p.Kind == scan.KindStructured && p.Unit == nil
	for attempt := uint32(1); ; attempt++ {
		cred := target.Credential
		credID := &cred.ID
		now := s.Now()
		if err := s.check(p, in.EventID, target, now); err != nil {
			return nil, s.reject(ctx, in, kind, credID, err)
		}

		won, err := s.admit(ctx, in, kind, cred.ID, now)
		if err != nil {
			return nil, s.reject(ctx, in, kind, credID, fmt.Errorf("admit credential: %w", err))
		}
		if won {
			s.log.Info("credential validated",
				zap.Uint64("event_id", in.EventID),
				zap.Uint64("credential_id", cred.ID),
				zap.String("reservation_id", cred.ReservationID),
				zap.Uint64("staff_id", in.StaffID))
			s.afterValidate(ctx, in, cred, now)
			return &CheckInResult{
				AttendeeName:  target.AttendeeName,
				ReservationID: cred.ReservationID,
				CredentialID:  cred.ID,
				UnitIndex:     cred.UnitIndex,
				ValidatedAt:   now,
			}, nil
		}

		if unitless && attempt < target.Quantity {
			next, err := s.credentials.FindNextForReservation(ctx, p.ReservationID)
			if err != nil {
				return nil, s.reject(ctx, in, kind, credID, fmt.Errorf("resolve next unit: %w", err))
			}
			s.log.Debug("lost unit to another scan, trying next",
				zap.Uint64("credential_id", cred.ID), zap.Uint32("next_unit", next.Credential.UnitIndex))
			target = next
			continue
		}

		at, err := s.credentials.ValidatedAt(ctx, cred.ID)
		if err != nil {
			s.log.Warn("read validated_at failed", zap.Uint64("credential_id", cred.ID), zap.Error(err))
		}
		return nil, s.reject(ctx, in, kind, credID, &AlreadyValidatedError{CredentialID: cred.ID, ValidatedAt: at})
	}
}

// check decides whether target may be admitted at eventID at now, short of
// the swap itself.
func (s *CheckInService) check(p scan.Payload, eventID uint64, target *repository.ScanTarget, now time.Time) error {
	cred := target.Credential
	// The structured hash is bound to the purchaser; the compact code
	// carries no hash, so the stored token is re-checked against the
	// reservation owner instead.
	if p.Kind == scan.KindStructured && p.UserID != target.UserID {
		return ErrInvalidCode
	}
	if !s.issuer.Verify(cred.ReservationID, target.UserID, cred.Token) {
		return ErrInvalidCode
	}
	if target.EventID != eventID || !s.eligible(target, now) {
		return ErrNotEligible
	}
	if cred.Status == model.CredentialValidated && cred.ValidatedAt != nil {
		return &AlreadyValidatedError{CredentialID: cred.ID, ValidatedAt: *cred.ValidatedAt}
	}
	return nil
}

func (s *CheckInService) resolve(ctx context.Context, p scan.Payload) (*repository.ScanTarget, error) {
	switch {
	case p.Kind == scan.KindCompact:
		return s.credentials.FindByCode(ctx, p.Code)
	case p.Unit != nil:
		return s.credentials.FindByReservationUnit(ctx, p.ReservationID, *p.Unit)
	default:
		return s.credentials.FindNextForReservation(ctx, p.ReservationID)
	}
}

// eligible admits paid reservations and, when configured, unpaid ones
// whose hold has not yet lapsed.  An expired hold still reads pending until
// the next sweep, but its units already count as free.
func (s *CheckInService) eligible(t *repository.ScanTarget, now time.Time) bool {
	switch t.ReservationStatus {
	case model.ReservationConfirmed:
		return true
	case model.ReservationPending:
		return s.acceptPending && t.ReservedAt.After(s.holdCutoff(now))
	}
	return false
}

func (s *CheckInService) holdCutoff(now time.Time) time.Time {
	if s.sweeper == nil {
		return now.Add(-DefaultHoldWindow)
	}
	return s.sweeper.Cutoff(now)
}

// admit performs the pending→validated compare-and-swap and writes the
// success audit in the same transaction.  It reports false when another
// scan validated the credential first.
func (s *CheckInService) admit(ctx context.Context, in ValidateInput, kind scan.Kind, credentialID uint64, now time.Time) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	won, err := s.credentials.MarkValidatedTx(ctx, tx, credentialID, in.StaffID, now)
	if err != nil || !won {
		return false, err
	}
	entry := &model.ValidationAudit{
		EventID:      in.EventID,
		CredentialID: &credentialID,
		StaffID:      in.StaffID,
		Outcome:      model.ScanSuccess,
		PayloadKind:  string(kind),
		CreatedAt:    now,
	}
	if err := s.audits.AppendTx(ctx, tx, entry); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	committed = true
	return true, nil
}

// reject appends a failure audit and returns cause.  The audit write uses
// a context detached from the request so that a disconnecting device does
// not lose the record.
func (s *CheckInService) reject(ctx context.Context, in ValidateInput, kind scan.Kind, credentialID *uint64, cause error) error {
	entry := &model.ValidationAudit{
		EventID:      in.EventID,
		CredentialID: credentialID,
		StaffID:      in.StaffID,
		Outcome:      model.ScanFailure,
		Reason:       Reason(cause),
		PayloadKind:  string(kind),
		CreatedAt:    s.Now(),
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if err := s.audits.Append(actx, entry); err != nil {
		s.log.Error("append failure audit", zap.Uint64("event_id", in.EventID), zap.String("reason", entry.Reason), zap.Error(err))
	}
	return cause
}

func (s *CheckInService) afterValidate(ctx context.Context, in ValidateInput, cred model.Credential, now time.Time) {
	if s.occupancy != nil {
		bestEffort(ctx, s.log, "pubnub", func(ctx context.Context) error {
			occ, err := s.occupancy.Refresh(ctx, in.EventID)
			if err != nil {
				return err
			}
			return s.pusher.PublishOccupancy(ctx, occ)
		})
	}
	bestEffort(ctx, s.log, "rabbitmq", func(ctx context.Context) error {
		return s.publisher.Publish(ctx, queue.CheckInValidatedQueue, queue.CheckInValidatedEvent{
			EventID:       in.EventID,
			ReservationID: cred.ReservationID,
			CredentialID:  cred.ID,
			UnitIndex:     cred.UnitIndex,
			StaffID:       in.StaffID,
			ValidatedAt:   now,
		})
	})
}

// AuditTrail lists the scan attempts of an event, optionally narrowed to
// one credential.
func (s *CheckInService) AuditTrail(ctx context.Context, eventID uint64, credentialID *uint64) ([]model.ValidationAudit, error) {
	return s.audits.ListByEvent(ctx, eventID, credentialID)
}
