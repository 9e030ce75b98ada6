package registry

import "fmt"

// Registry is the in-memory store of simulated participants and contracts.
// It is mutated exclusively by a single pipeline engine's call stack, so it
// carries no locking; engines never share a registry instance.
type Registry struct {
	identities []*Identity
	byID       map[string]*Identity
	idByName   map[string]string // bidirectional name<->id index, built on add

	loans []*LoanContract
	clos  []*CLOContract
}

func New() *Registry {
	return &Registry{
		byID:     make(map[string]*Identity),
		idByName: make(map[string]string),
	}
}

// AddIdentity registers a participant and indexes it by id and name.
func (r *Registry) AddIdentity(id *Identity) error {
	if _, exists := r.byID[id.ID]; exists {
		return fmt.Errorf("duplicate identity id %q", id.ID)
	}
	if _, exists := r.idByName[id.Name]; exists {
		return fmt.Errorf("duplicate identity name %q", id.Name)
	}

	r.identities = append(r.identities, id)
	r.byID[id.ID] = id
	r.idByName[id.Name] = id.ID
	return nil
}

// Identity returns the participant with the given id, or nil.
func (r *Registry) Identity(id string) *Identity {
	return r.byID[id]
}

// IdentityByName resolves a display name through the index, or nil.
func (r *Registry) IdentityByName(name string) *Identity {
	id, ok := r.idByName[name]
	if !ok {
		return nil
	}
	return r.byID[id]
}

// IdentitiesByRole returns all participants with the given role, in
// registration order.
func (r *Registry) IdentitiesByRole(role Role) []*Identity {
	var out []*Identity
	for _, id := range r.identities {
		if id.Role == role {
			out = append(out, id)
		}
	}
	return out
}

// Identities returns all participants in registration order.
func (r *Registry) Identities() []*Identity {
	return r.identities
}

// AddLoan appends a loan contract.
func (r *Registry) AddLoan(l *LoanContract) {
	r.loans = append(r.loans, l)
}

// Loan returns the loan with the given id, or nil.
func (r *Registry) Loan(id string) *LoanContract {
	for _, l := range r.loans {
		if l.ID == id {
			return l
		}
	}
	return nil
}

// Loans returns all loan contracts in creation order.
func (r *Registry) Loans() []*LoanContract {
	return r.loans
}

// ActiveLoans returns the loans currently accepted and running.
func (r *Registry) ActiveLoans() []*LoanContract {
	var out []*LoanContract
	for _, l := range r.loans {
		if l.State.IsActive {
			out = append(out, l)
		}
	}
	return out
}

// AddCLO appends a CLO contract.
func (r *Registry) AddCLO(c *CLOContract) {
	r.clos = append(r.clos, c)
}

// CLOs returns all CLO contracts in creation order.
func (r *Registry) CLOs() []*CLOContract {
	return r.clos
}

// Reset restores the registry to its pre-run state: identities survive but
// their wallet balances and asset holdings are zeroed, and all contract
// collections are cleared. Makes repeated runs on one engine idempotent.
func (r *Registry) Reset() {
	for _, id := range r.identities {
		for _, w := range id.Wallets {
			w.Balance = 0
			w.Assets = nil
		}
	}
	r.loans = nil
	r.clos = nil
}

// TransferAsset moves quantity of the named asset between two wallets,
// all-or-nothing: the source holding is verified before either side is
// touched, so a failed transfer leaves no partial mutation.
func TransferAsset(src, dst *Wallet, policyID, assetName string, quantity int64) error {
	if quantity <= 0 {
		return fmt.Errorf("transfer quantity must be positive, got %d", quantity)
	}
	if err := src.RemoveAsset(policyID, assetName, quantity); err != nil {
		return err
	}
	dst.AddAsset(policyID, assetName, quantity)
	return nil
}
