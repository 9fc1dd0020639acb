package postgres

import (
	"encoding/json"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/remlyo/remlyo-api/internal/domain"
	"github.com/remlyo/remlyo-api/internal/ports"
	"gorm.io/gorm"
)

func toDomainUser(row userModel) domain.User {
	referredBy := ""
	if row.ReferredBy != nil {
		referredBy = *row.ReferredBy
	}
	return domain.User{
		UserID:        row.UserID,
		Email:         row.Email,
		DisplayName:   row.DisplayName,
		PasswordHash:  row.PasswordHash,
		Role:          domain.Role(row.Role),
		EmailVerified: row.EmailVerified,
		IsActive:      row.IsActive,
		ReferredBy:    referredBy,
		DeletedAt:     row.DeletedAt,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
}

func toDomainSession(row sessionModel) domain.Session {
	ip := ""
	if row.IPAddress != nil {
		ip = *row.IPAddress
	}
	return domain.Session{
		SessionID:      row.SessionID,
		UserID:         row.UserID,
		IPAddress:      ip,
		UserAgent:      row.UserAgent,
		CreatedAt:      row.CreatedAt,
		LastActivityAt: row.LastActivityAt,
		ExpiresAt:      row.ExpiresAt,
		RevokedAt:      row.RevokedAt,
	}
}

func toProfileModel(p domain.HealthProfile) healthProfileModel {
	return healthProfileModel{
		UserID:             p.UserID,
		DateOfBirth:        p.DateOfBirth,
		Sex:                p.Sex,
		HeightCM:           p.HeightCM,
		WeightKG:           p.WeightKG,
		Conditions:         encodeList(p.Conditions),
		Allergies:          encodeList(p.Allergies),
		Medications:        encodeList(p.Medications),
		DietaryPreferences: encodeList(p.DietaryPreferences),
		Goals:              p.Goals,
		AnsweredAt:         p.AnsweredAt,
		UpdatedAt:          p.UpdatedAt,
	}
}

func toDomainProfile(row healthProfileModel) domain.HealthProfile {
	return domain.HealthProfile{
		UserID:             row.UserID,
		DateOfBirth:        row.DateOfBirth,
		Sex:                row.Sex,
		HeightCM:           row.HeightCM,
		WeightKG:           row.WeightKG,
		Conditions:         decodeList(row.Conditions),
		Allergies:          decodeList(row.Allergies),
		Medications:        decodeList(row.Medications),
		DietaryPreferences: decodeList(row.DietaryPreferences),
		Goals:              row.Goals,
		AnsweredAt:         row.AnsweredAt,
		UpdatedAt:          row.UpdatedAt,
	}
}

func toDomainConsent(row consentModel, history []consentHistoryModel) domain.ComplianceConsent {
	out := domain.ComplianceConsent{
		UserID:           row.UserID,
		GDPRConsent:      row.GDPRConsent,
		MarketingConsent: row.MarketingConsent,
		AIRemedyConsent:  row.AIRemedyConsent,
		IPAddress:        row.IPAddress,
		Version:          row.Version,
		UpdatedAt:        row.UpdatedAt,
		History:          make([]domain.ConsentEvent, 0, len(history)),
	}
	for _, h := range history {
		out.History = append(out.History, domain.ConsentEvent{
			ConsentType: h.ConsentType,
			Granted:     h.Granted,
			IPAddress:   h.IPAddress,
			Version:     h.Version,
			RecordedAt:  h.RecordedAt,
		})
	}
	return out
}

func toConsentModel(c domain.ComplianceConsent) consentModel {
	return consentModel{
		UserID:           c.UserID,
		GDPRConsent:      c.GDPRConsent,
		MarketingConsent: c.MarketingConsent,
		AIRemedyConsent:  c.AIRemedyConsent,
		IPAddress:        c.IPAddress,
		Version:          c.Version,
		UpdatedAt:        c.UpdatedAt,
	}
}

func toConsentHistoryModels(userID uuid.UUID, events []domain.ConsentEvent) []consentHistoryModel {
	out := make([]consentHistoryModel, 0, len(events))
	for _, e := range events {
		out = append(out, consentHistoryModel{
			EntryID:     uuid.New(),
			UserID:      userID,
			ConsentType: e.ConsentType,
			Granted:     e.Granted,
			IPAddress:   e.IPAddress,
			Version:     e.Version,
			RecordedAt:  e.RecordedAt,
		})
	}
	return out
}

func toAilmentModel(a domain.Ailment) ailmentModel {
	return ailmentModel{
		AilmentID:       a.AilmentID,
		Name:            a.Name,
		NameKey:         strings.ToLower(strings.TrimSpace(a.Name)),
		Description:     a.Description,
		Category:        string(a.Category),
		Symptoms:        encodeList(a.Symptoms),
		RelatedRemedies: encodeIDs(a.RelatedRemedies),
		RelatedAilments: encodeIDs(a.RelatedAilments),
		CreatedBy:       a.CreatedBy,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

func toDomainAilment(row ailmentModel) domain.Ailment {
	return domain.Ailment{
		AilmentID:       row.AilmentID,
		Name:            row.Name,
		Description:     row.Description,
		Category:        domain.AilmentCategory(row.Category),
		Symptoms:        decodeList(row.Symptoms),
		RelatedRemedies: decodeIDs(row.RelatedRemedies),
		RelatedAilments: decodeIDs(row.RelatedAilments),
		CreatedBy:       row.CreatedBy,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
}

func toRemedyModel(r domain.Remedy) remedyModel {
	return remedyModel{
		RemedyID:        r.RemedyID,
		AilmentID:       r.AilmentID,
		AuthorID:        r.AuthorID,
		Type:            string(r.Type),
		Status:          string(r.Status),
		Private:         r.Private,
		Name:            r.Name,
		Description:     r.Description,
		Ingredients:     encodeList(r.Ingredients),
		Instructions:    r.Instructions,
		Precautions:     encodeList(r.Precautions),
		Disclaimer:      r.Disclaimer,
		RejectionReason: r.RejectionReason,
		RatingAverage:   r.RatingAverage,
		RatingCount:     r.RatingCount,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func toDomainRemedy(row remedyModel) domain.Remedy {
	return domain.Remedy{
		RemedyID:        row.RemedyID,
		AilmentID:       row.AilmentID,
		AuthorID:        row.AuthorID,
		Type:            domain.RemedyType(row.Type),
		Status:          domain.RemedyStatus(row.Status),
		Private:         row.Private,
		Name:            row.Name,
		Description:     row.Description,
		Ingredients:     decodeList(row.Ingredients),
		Instructions:    row.Instructions,
		Precautions:     decodeList(row.Precautions),
		Disclaimer:      row.Disclaimer,
		RejectionReason: row.RejectionReason,
		RatingAverage:   row.RatingAverage,
		RatingCount:     row.RatingCount,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
}

func toDomainReview(row reviewModel) domain.Review {
	return domain.Review{
		ReviewID:  row.ReviewID,
		RemedyID:  row.RemedyID,
		UserID:    row.UserID,
		Rating:    row.Rating,
		Comment:   row.Comment,
		Status:    domain.ReviewStatus(row.Status),
		FlagCount: row.FlagCount,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

func toDomainDecision(row moderationDecisionModel) domain.ModerationDecision {
	return domain.ModerationDecision{
		DecisionID:  row.DecisionID,
		ModeratorID: row.ModeratorID,
		TargetKind:  row.TargetKind,
		TargetID:    row.TargetID,
		Action:      row.Action,
		Reason:      row.Reason,
		CreatedAt:   row.CreatedAt,
	}
}

func toDomainSubscription(row subscriptionModel) domain.Subscription {
	return domain.Subscription{
		SubscriptionID:     row.SubscriptionID,
		UserID:             row.UserID,
		PlanID:             row.PlanID,
		Status:             domain.SubscriptionStatus(row.Status),
		CurrentPeriodStart: row.CurrentPeriodStart,
		CurrentPeriodEnd:   row.CurrentPeriodEnd,
		CancelAtPeriodEnd:  row.CancelAtPeriodEnd,
		CreatedAt:          row.CreatedAt,
		UpdatedAt:          row.UpdatedAt,
	}
}

func toDomainPayment(row paymentModel) domain.Payment {
	return domain.Payment{
		PaymentID:      row.PaymentID,
		UserID:         row.UserID,
		PlanID:         row.PlanID,
		ProviderRef:    row.ProviderRef,
		AmountCents:    row.AmountCents,
		Currency:       row.Currency,
		Status:         domain.PaymentStatus(row.Status),
		ReferralCode:   row.ReferralCode,
		FailureMessage: row.FailureMessage,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}
}

func toDomainReceipt(row receiptModel) domain.Receipt {
	return domain.Receipt{
		ReceiptID:      row.ReceiptID,
		ReceiptNumber:  row.ReceiptNumber,
		UserID:         row.UserID,
		PaymentID:      row.PaymentID,
		SubscriptionID: row.SubscriptionID,
		PlanID:         row.PlanID,
		PlanName:       row.PlanName,
		AmountCents:    row.AmountCents,
		Currency:       row.Currency,
		PeriodStart:    row.PeriodStart,
		PeriodEnd:      row.PeriodEnd,
		IssuedAt:       row.IssuedAt,
	}
}

func toAffiliateModel(a domain.AffiliateProgram) affiliateModel {
	return affiliateModel{
		AffiliateID:      a.AffiliateID,
		UserID:           a.UserID,
		ReferralCode:     a.ReferralCode,
		TotalEarnings:    a.TotalEarnings,
		PendingEarnings:  a.PendingEarnings,
		PaidEarnings:     a.PaidEarnings,
		TotalReferrals:   a.TotalReferrals,
		Conversions:      a.Conversions,
		CommissionRate:   a.CommissionRate,
		Status:           string(a.Status),
		PayoutMethod:     string(a.PayoutMethod),
		PaymentMethodRef: a.PaymentMethodRef,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

func toDomainAffiliate(row affiliateModel) domain.AffiliateProgram {
	return domain.AffiliateProgram{
		AffiliateID:      row.AffiliateID,
		UserID:           row.UserID,
		ReferralCode:     row.ReferralCode,
		TotalEarnings:    row.TotalEarnings,
		PendingEarnings:  row.PendingEarnings,
		PaidEarnings:     row.PaidEarnings,
		TotalReferrals:   row.TotalReferrals,
		Conversions:      row.Conversions,
		CommissionRate:   row.CommissionRate,
		Status:           domain.AffiliateStatus(row.Status),
		PayoutMethod:     domain.PayoutMethod(row.PayoutMethod),
		PaymentMethodRef: row.PaymentMethodRef,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}
}

func encodeList(items []string) string {
	if items == nil {
		items = []string{}
	}
	raw, _ := json.Marshal(items)
	return string(raw)
}

func decodeList(raw string) []string {
	out := []string{}
	if raw == "" {
		return out
	}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

func encodeIDs(ids []uuid.UUID) string {
	if ids == nil {
		ids = []uuid.UUID{}
	}
	raw, _ := json.Marshal(ids)
	return string(raw)
}

func decodeIDs(raw string) []uuid.UUID {
	out := []uuid.UUID{}
	if raw == "" {
		return out
	}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

func nullableString(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func truncate(v string, maxRunes int) string {
	if utf8.RuneCountInString(v) <= maxRunes {
		return v
	}
	return string([]rune(v)[:maxRunes])
}

func toOutboxRecord(row outboxModel) ports.OutboxRecord {
	return ports.OutboxRecord{
		OutboxID:       row.OutboxID,
		EventType:      row.EventType,
		PartitionKey:   row.PartitionKey,
		Payload:        []byte(row.Payload),
		RetryCount:     row.RetryCount,
		LastError:      row.LastError,
		CreatedAt:      row.CreatedAt,
		PublishedAt:    row.PublishedAt,
		ClaimToken:     row.ClaimToken,
		ClaimUntil:     row.ClaimUntil,
		DeadLetteredAt: row.DeadLetteredAt,
	}
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return err
}

// likePattern escapes LIKE wildcards and wraps the term for a contains match.
func likePattern(term string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + strings.ToLower(replacer.Replace(term)) + "%"
}
