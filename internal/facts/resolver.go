package facts

import (
	"time"

	id "fundledger/pkg/domain"
)

// Investor is the slice of an investor record relevant to compliance
// decisions. The CRUD layer owns the full record.
type Investor struct {
	ID           id.InvestorID
	Name         string
	Jurisdiction string
	InvestorType string
	Accredited   bool
	KYCStatus    string
	KYCExpiry    *time.Time
}

// Asset is the fund/asset a decision concerns.
type Asset struct {
	ID            id.AssetID
	Name          string
	Status        string
	TotalUnits    float64
	InvestorCount int
}

// Holding is the sender's position in the asset.
type Holding struct {
	InvestorID id.InvestorID
	AssetID    id.AssetID
	Units      float64
	AcquiredAt time.Time
}

// Transfer is a proposed transfer between investors.
type Transfer struct {
	AssetID        id.AssetID
	FromInvestorID id.InvestorID
	ToInvestorID   id.InvestorID
	Units          float64
	AmountCents    int64
	ExecutionDate  time.Time
}

// Resolver accumulates entities into a fact context. Resolution is read-only:
// entities are copied into plain scalars at Add time and never referenced
// again, so the resolved context survives later entity mutation.
type Resolver struct {
	ctx Context
}

func NewResolver() *Resolver {
	return &Resolver{ctx: make(Context)}
}

func (r *Resolver) addInvestor(prefix string, inv Investor) {
	r.ctx[prefix+".id"] = String(inv.ID.String())
	r.ctx[prefix+".name"] = String(inv.Name)
	r.ctx[prefix+".jurisdiction"] = String(inv.Jurisdiction)
	r.ctx[prefix+".investor_type"] = String(inv.InvestorType)
	r.ctx[prefix+".accredited"] = Bool(inv.Accredited)
	r.ctx[prefix+".kyc_status"] = String(inv.KYCStatus)
	if inv.KYCExpiry != nil {
		r.ctx[prefix+".kyc_expiry"] = String(inv.KYCExpiry.UTC().Format(time.RFC3339))
	}
}

// AddSender registers the transferring investor under the "from." prefix.
func (r *Resolver) AddSender(inv Investor) *Resolver {
	r.addInvestor("from", inv)
	return r
}

// AddRecipient registers the receiving (or sole subject) investor under "to.".
func (r *Resolver) AddRecipient(inv Investor) *Resolver {
	r.addInvestor("to", inv)
	return r
}

func (r *Resolver) AddAsset(a Asset) *Resolver {
	r.ctx["asset.id"] = String(a.ID.String())
	r.ctx["asset.name"] = String(a.Name)
	r.ctx["asset.status"] = String(a.Status)
	r.ctx["asset.total_units"] = Number(a.TotalUnits)
	r.ctx["asset.investor_count"] = Number(float64(a.InvestorCount))
	return r
}

func (r *Resolver) AddHolding(h Holding) *Resolver {
	r.ctx["holding.units"] = Number(h.Units)
	r.ctx["holding.acquired_at"] = String(h.AcquiredAt.UTC().Format(time.RFC3339))
	return r
}

func (r *Resolver) AddTransfer(t Transfer) *Resolver {
	r.ctx["transfer.asset_id"] = String(t.AssetID.String())
	r.ctx["transfer.from_investor_id"] = String(t.FromInvestorID.String())
	r.ctx["transfer.to_investor_id"] = String(t.ToInvestorID.String())
	r.ctx["transfer.units"] = Number(t.Units)
	r.ctx["transfer.amount_cents"] = Number(float64(t.AmountCents))
	r.ctx["transfer.execution_date"] = String(t.ExecutionDate.UTC().Format(time.RFC3339))
	return r
}

// Set adds a single fact directly; used for investment amounts on eligibility
// checks and by tests.
func (r *Resolver) Set(path string, v Value) *Resolver {
	r.ctx[path] = v
	return r
}

// Resolve returns the accumulated context.
func (r *Resolver) Resolve() Context {
	return r.ctx
}
