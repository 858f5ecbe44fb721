package handler

import (
	"time"

	"fundledger/internal/decision/service"
	"fundledger/internal/facts"
	id "fundledger/pkg/domain"
	dErrors "fundledger/pkg/domain-errors"
)

// Entity state rides the request body. This service judges transfers, it does
// not own the investor registry; callers send the state they want judged and
// the record freezes it.

type investorPayload struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Jurisdiction string `json:"jurisdiction"`
	InvestorType string `json:"investor_type"`
	Accredited   bool   `json:"accredited"`
	KYCStatus    string `json:"kyc_status"`
	KYCExpiry    string `json:"kyc_expiry,omitempty"`
}

func (p investorPayload) toInvestor(field string) (facts.Investor, error) {
	investorID, err := id.ParseInvestorID(p.ID)
	if err != nil {
		return facts.Investor{}, dErrors.Newf(dErrors.CodeInvalidInput, "%s.id is not a valid UUID", field)
	}
	inv := facts.Investor{
		ID:           investorID,
		Name:         p.Name,
		Jurisdiction: p.Jurisdiction,
		InvestorType: p.InvestorType,
		Accredited:   p.Accredited,
		KYCStatus:    p.KYCStatus,
	}
	if p.KYCExpiry != "" {
		t, err := time.Parse(time.RFC3339, p.KYCExpiry)
		if err != nil {
			return facts.Investor{}, dErrors.Newf(dErrors.CodeInvalidInput, "%s.kyc_expiry must be RFC 3339", field)
		}
		inv.KYCExpiry = &t
	}
	return inv, nil
}

type assetPayload struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Status        string  `json:"status"`
	TotalUnits    float64 `json:"total_units"`
	InvestorCount int     `json:"investor_count"`
}

func (p assetPayload) toAsset() (facts.Asset, error) {
	assetID, err := id.ParseAssetID(p.ID)
	if err != nil {
		return facts.Asset{}, dErrors.New(dErrors.CodeInvalidInput, "asset.id is not a valid UUID")
	}
	return facts.Asset{
		ID:            assetID,
		Name:          p.Name,
		Status:        p.Status,
		TotalUnits:    p.TotalUnits,
		InvestorCount: p.InvestorCount,
	}, nil
}

type holdingPayload struct {
	Units      float64 `json:"units"`
	AcquiredAt string  `json:"acquired_at"`
}

func (p holdingPayload) toHolding(investorID id.InvestorID, assetID id.AssetID) (facts.Holding, error) {
	acquired, err := time.Parse(time.RFC3339, p.AcquiredAt)
	if err != nil {
		return facts.Holding{}, dErrors.New(dErrors.CodeInvalidInput, "holding.acquired_at must be RFC 3339")
	}
	return facts.Holding{
		InvestorID: investorID,
		AssetID:    assetID,
		Units:      p.Units,
		AcquiredAt: acquired,
	}, nil
}

type transferPayload struct {
	AssetID        string  `json:"asset_id"`
	FromInvestorID string  `json:"from_investor_id"`
	ToInvestorID   string  `json:"to_investor_id"`
	Units          float64 `json:"units"`
	AmountCents    int64   `json:"amount_cents"`
	ExecutionDate  string  `json:"execution_date"`
}

func (p transferPayload) toTransfer() (facts.Transfer, error) {
	assetID, err := id.ParseAssetID(p.AssetID)
	if err != nil {
		return facts.Transfer{}, dErrors.New(dErrors.CodeInvalidInput, "transfer.asset_id is not a valid UUID")
	}
	fromID, err := id.ParseInvestorID(p.FromInvestorID)
	if err != nil {
		return facts.Transfer{}, dErrors.New(dErrors.CodeInvalidInput, "transfer.from_investor_id is not a valid UUID")
	}
	toID, err := id.ParseInvestorID(p.ToInvestorID)
	if err != nil {
		return facts.Transfer{}, dErrors.New(dErrors.CodeInvalidInput, "transfer.to_investor_id is not a valid UUID")
	}
	execution, err := time.Parse(time.RFC3339, p.ExecutionDate)
	if err != nil {
		return facts.Transfer{}, dErrors.New(dErrors.CodeInvalidInput, "transfer.execution_date must be RFC 3339")
	}
	return facts.Transfer{
		AssetID:        assetID,
		FromInvestorID: fromID,
		ToInvestorID:   toID,
		Units:          p.Units,
		AmountCents:    p.AmountCents,
		ExecutionDate:  execution,
	}, nil
}

type transferRequest struct {
	Sender    investorPayload `json:"sender"`
	Recipient investorPayload `json:"recipient"`
	Asset     assetPayload    `json:"asset"`
	Holding   holdingPayload  `json:"holding"`
	Transfer  transferPayload `json:"transfer"`
	DryRun    bool            `json:"dry_run,omitempty"`
}

func (r transferRequest) toService() (service.TransferRequest, error) {
	sender, err := r.Sender.toInvestor("sender")
	if err != nil {
		return service.TransferRequest{}, err
	}
	recipient, err := r.Recipient.toInvestor("recipient")
	if err != nil {
		return service.TransferRequest{}, err
	}
	asset, err := r.Asset.toAsset()
	if err != nil {
		return service.TransferRequest{}, err
	}
	holding, err := r.Holding.toHolding(sender.ID, asset.ID)
	if err != nil {
		return service.TransferRequest{}, err
	}
	transfer, err := r.Transfer.toTransfer()
	if err != nil {
		return service.TransferRequest{}, err
	}
	return service.TransferRequest{
		Sender:    sender,
		Recipient: recipient,
		Asset:     asset,
		Holding:   holding,
		Transfer:  transfer,
		DryRun:    r.DryRun,
	}, nil
}

type eligibilityRequest struct {
	Investor    investorPayload `json:"investor"`
	Asset       assetPayload    `json:"asset"`
	AmountCents int64           `json:"amount_cents,omitempty"`
}

func (r eligibilityRequest) toService() (service.EligibilityRequest, error) {
	investor, err := r.Investor.toInvestor("investor")
	if err != nil {
		return service.EligibilityRequest{}, err
	}
	asset, err := r.Asset.toAsset()
	if err != nil {
		return service.EligibilityRequest{}, err
	}
	return service.EligibilityRequest{
		Investor:    investor,
		Asset:       asset,
		AmountCents: r.AmountCents,
	}, nil
}

type onboardingRequest struct {
	Investor investorPayload `json:"investor"`
	Asset    assetPayload    `json:"asset"`
}

func (r onboardingRequest) toService() (service.OnboardingRequest, error) {
	investor, err := r.Investor.toInvestor("investor")
	if err != nil {
		return service.OnboardingRequest{}, err
	}
	asset, err := r.Asset.toAsset()
	if err != nil {
		return service.OnboardingRequest{}, err
	}
	return service.OnboardingRequest{Investor: investor, Asset: asset}, nil
}

type verifyChainRequest struct {
	Full bool `json:"full,omitempty"`
}
