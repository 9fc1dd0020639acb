package application

import (
	"context"

	"github.com/remlyo/remlyo-api/internal/domain"
)

func (s *Service) GetConsent(ctx context.Context, p Principal) (domain.ComplianceConsent, error) {
	consent, err := s.consents.Get(ctx, p.UserID)
	if err != nil {
		return domain.ComplianceConsent{}, err
	}
	if consent.History == nil {
		consent.History = []domain.ConsentEvent{}
	}
	return consent, nil
}

// UpdateConsent applies the provided flags. Only flags that change produce history entries.
func (s *Service) UpdateConsent(ctx context.Context, p Principal, in domain.ConsentInput, ip string) (domain.ComplianceConsent, error) {
	consent, err := s.consents.Get(ctx, p.UserID)
	if err != nil {
		return domain.ComplianceConsent{}, err
	}
	consent.UserID = p.UserID
	appended := consent.Apply(in, ip, s.cfg.ConsentVersion, s.nowFn())
	if len(appended) == 0 {
		return consent, nil
	}
	if err := s.consents.Update(ctx, consent, appended); err != nil {
		return domain.ComplianceConsent{}, err
	}

	changes := make([]map[string]any, 0, len(appended))
	for _, e := range appended {
		changes = append(changes, map[string]any{"consent_type": e.ConsentType, "granted": e.Granted})
	}
	s.emit(ctx, eventTypeConsentUpdated, p.UserID.String(), map[string]any{
		"user_id": p.UserID,
		"version": consent.Version,
		"changes": changes,
	})
	return consent, nil
}
