// Package models defines the integration events emitted when decisions are
// recorded and rules change. Events ride the transactional outbox: enqueued in
// the same transaction as the state change, published by the relay worker.
package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	id "fundledger/pkg/domain"
)

// EventType names what happened.
type EventType string

const (
	TypeDecisionRecorded        EventType = "decision.recorded"
	TypeRuleSetUpdated          EventType = "ruleset.updated"
	TypeCompositeRuleCreated    EventType = "composite_rule.created"
	TypeCompositeRuleUpdated    EventType = "composite_rule.updated"
	TypeCompositeRuleDeleted    EventType = "composite_rule.deleted"
	TypeChainVerificationFailed EventType = "chain.verification_failed"
)

// EntityType names what kind of entity the event is about.
type EntityType string

const (
	EntityDecisionRecord EntityType = "decision_record"
	EntityRuleSet        EntityType = "ruleset"
	EntityCompositeRule  EntityType = "composite_rule"
	EntityChain          EntityType = "chain"
)

// Event is one outbox row. ID is assigned by the store and orders delivery.
type Event struct {
	ID          int64
	TenantID    id.TenantID
	EventType   EventType
	EntityType  EntityType
	EntityID    uuid.UUID
	Payload     json.RawMessage
	CreatedAt   time.Time
	PublishedAt *time.Time
}

// envelope is the wire shape published to the event stream.
type envelope struct {
	EventType  EventType       `json:"event_type"`
	TenantID   string          `json:"tenant_id"`
	EntityType EntityType      `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	OccurredAt string          `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// WireEncode serializes the event for publication.
func (e *Event) WireEncode() ([]byte, error) {
	return json.Marshal(envelope{
		EventType:  e.EventType,
		TenantID:   e.TenantID.String(),
		EntityType: e.EntityType,
		EntityID:   e.EntityID.String(),
		OccurredAt: e.CreatedAt.UTC().Format(time.RFC3339Nano),
		Payload:    e.Payload,
	})
}

// PartitionKey groups events of one entity onto one partition so consumers
// see them in order.
func (e *Event) PartitionKey() []byte {
	return []byte(e.TenantID.String() + ":" + e.EntityID.String())
}

// DecisionRecordedPayload summarizes a sealed decision for consumers.
type DecisionRecordedPayload struct {
	RecordID       string `json:"record_id"`
	DecisionType   string `json:"decision_type"`
	AssetID        string `json:"asset_id,omitempty"`
	SubjectID      string `json:"subject_id"`
	Result         string `json:"result"`
	ViolationCount int    `json:"violation_count"`
	SequenceNumber int64  `json:"sequence_number"`
	IntegrityHash  string `json:"integrity_hash"`
}

// RuleSetUpdatedPayload announces a new active ruleset version.
type RuleSetUpdatedPayload struct {
	RuleSetID string `json:"ruleset_id"`
	AssetID   string `json:"asset_id"`
	Version   int    `json:"version"`
}

// CompositeRuleChangedPayload announces a composite rule lifecycle change.
type CompositeRuleChangedPayload struct {
	RuleID  string `json:"rule_id"`
	AssetID string `json:"asset_id"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// ChainVerificationFailedPayload flags a tampered or broken chain.
type ChainVerificationFailedPayload struct {
	FirstInvalidSequence int64  `json:"first_invalid_sequence"`
	Reason               string `json:"reason"`
	Message              string `json:"message"`
}
