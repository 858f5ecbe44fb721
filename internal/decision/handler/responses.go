package handler

import (
	"time"

	"fundledger/internal/decision/models"
	"fundledger/internal/facts"
)

type recordResponse struct {
	ID                  string                     `json:"id"`
	DecisionType        string                     `json:"decision_type"`
	AssetID             *string                    `json:"asset_id"`
	SubjectID           string                     `json:"subject_id"`
	InputSnapshot       facts.Context              `json:"input_snapshot"`
	RuleVersionSnapshot models.RuleVersionSnapshot `json:"rule_version_snapshot"`
	Result              string                     `json:"result"`
	ResultDetails       models.ResultDetails       `json:"result_details"`
	DecidedBy           *string                    `json:"decided_by"`
	DecidedAt           string                     `json:"decided_at"`
	CreatedAt           string                     `json:"created_at"`
	SequenceNumber      *int64                     `json:"sequence_number"`
	IntegrityHash       *string                    `json:"integrity_hash"`
	PreviousHash        *string                    `json:"previous_hash"`
}

func toRecordResponse(r *models.DecisionRecord) recordResponse {
	resp := recordResponse{
		ID:                  r.ID.String(),
		DecisionType:        string(r.DecisionType),
		SubjectID:           r.SubjectID.String(),
		InputSnapshot:       r.InputSnapshot,
		RuleVersionSnapshot: r.RuleVersionSnapshot,
		Result:              string(r.Result),
		ResultDetails:       r.ResultDetails,
		DecidedBy:           r.DecidedBy,
		DecidedAt:           r.DecidedAt.UTC().Format(time.RFC3339Nano),
		CreatedAt:           r.CreatedAt.UTC().Format(time.RFC3339Nano),
		SequenceNumber:      r.SequenceNumber,
		IntegrityHash:       r.IntegrityHash,
		PreviousHash:        r.PreviousHash,
	}
	if r.AssetID != nil {
		s := r.AssetID.String()
		resp.AssetID = &s
	}
	return resp
}

type listResponse struct {
	Decisions []recordResponse `json:"decisions"`
}

func toListResponse(records []*models.DecisionRecord) listResponse {
	out := listResponse{Decisions: make([]recordResponse, 0, len(records))}
	for _, r := range records {
		out.Decisions = append(out.Decisions, toRecordResponse(r))
	}
	return out
}

type sealResponse struct {
	Sealed int `json:"sealed"`
}
