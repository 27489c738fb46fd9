package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose.
// Categories drive retention and routing on the consumer side.
type EventCategory string

const (
	// CategoryCompliance covers events with regulatory significance: compliance
	// records, order outcomes and token distributions.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to forensics, such as rejected
	// admin calls and on-chain compliance rejections.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity that can be sampled.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	// Subject is the wallet or account the action concerns.
	Subject string
	Action  string
	// Resource is the secondary account involved (mint, order), if any.
	Resource  string
	Decision  string
	Reason    string
	Signature string
	RequestID string
	// ActorID tracks who performed the action when different from Subject.
	ActorID string
}

type AuditEvent string

const (
	// Compliance record events
	EventComplianceRegistered AuditEvent = "compliance_registered"
	EventComplianceAttested   AuditEvent = "compliance_attested"
	EventComplianceRevoked    AuditEvent = "compliance_revoked"

	// Order events
	EventOrderCreated  AuditEvent = "order_created"
	EventOrderApproved AuditEvent = "order_approved"
	EventOrderRejected AuditEvent = "order_rejected"

	// Distribution events
	EventDistributionCompleted AuditEvent = "distribution_completed"
	EventDistributionRejected  AuditEvent = "distribution_rejected"
	EventDistributionPending   AuditEvent = "distribution_pending"

	// Hook events
	EventHookProvisioned AuditEvent = "hook_provisioned"

	// Access events
	EventAdminAuthFailed AuditEvent = "admin_auth_failed"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventComplianceRegistered:  CategoryCompliance,
	EventComplianceAttested:    CategoryCompliance,
	EventComplianceRevoked:     CategoryCompliance,
	EventOrderApproved:         CategoryCompliance,
	EventOrderRejected:         CategoryCompliance,
	EventDistributionCompleted: CategoryCompliance,

	EventDistributionRejected: CategorySecurity,
	EventAdminAuthFailed:      CategorySecurity,

	EventOrderCreated:         CategoryOperations,
	EventDistributionPending:  CategoryOperations,
	EventHookProvisioned:      CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Publisher is the port services emit through.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}
