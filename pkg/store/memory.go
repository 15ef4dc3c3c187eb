package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/mcclellann/fredLedger/pkg/models"
	"github.com/mcclellann/fredLedger/pkg/money"
)

type memData struct {
	customers    map[uuid.UUID]*models.Customer
	loans        map[uuid.UUID]*models.Loan
	payments     map[uuid.UUID]*models.Payment
	topUps       map[uuid.UUID]*models.TopUp
	archived     map[uuid.UUID]*models.ArchivedLoan
	chitGroups   map[uuid.UUID]*models.ChitGroup
	chitMembers  map[uuid.UUID]*models.ChitMember
	chitPayments map[uuid.UUID]*models.ChitPayment
	chitAuctions map[uuid.UUID]*models.ChitAuction
}

func newMemData() *memData {
	return &memData{
		customers:    make(map[uuid.UUID]*models.Customer),
		loans:        make(map[uuid.UUID]*models.Loan),
		payments:     make(map[uuid.UUID]*models.Payment),
		topUps:       make(map[uuid.UUID]*models.TopUp),
		archived:     make(map[uuid.UUID]*models.ArchivedLoan),
		chitGroups:   make(map[uuid.UUID]*models.ChitGroup),
		chitMembers:  make(map[uuid.UUID]*models.ChitMember),
		chitPayments: make(map[uuid.UUID]*models.ChitPayment),
		chitAuctions: make(map[uuid.UUID]*models.ChitAuction),
	}
}

func cloneMap[V any](m map[uuid.UUID]*V, clone func(*V) *V) map[uuid.UUID]*V {
	out := make(map[uuid.UUID]*V, len(m))
	for k, v := range m {
		out[k] = clone(v)
	}
	return out
}

func shallow[V any](v *V) *V {
	c := *v
	return &c
}

func (d *memData) clone() *memData {
	return &memData{
		customers:    cloneMap(d.customers, shallow[models.Customer]),
		loans:        cloneMap(d.loans, shallow[models.Loan]),
		payments:     cloneMap(d.payments, shallow[models.Payment]),
		topUps:       cloneMap(d.topUps, shallow[models.TopUp]),
		archived:     cloneMap(d.archived, cloneArchived),
		chitGroups:   cloneMap(d.chitGroups, shallow[models.ChitGroup]),
		chitMembers:  cloneMap(d.chitMembers, cloneMember),
		chitPayments: cloneMap(d.chitPayments, shallow[models.ChitPayment]),
		chitAuctions: cloneMap(d.chitAuctions, cloneAuction),
	}
}

func cloneArchived(a *models.ArchivedLoan) *models.ArchivedLoan {
	c := *a
	c.Payments = make([]*models.Payment, len(a.Payments))
	for i, p := range a.Payments {
		c.Payments[i] = shallow(p)
	}
	c.TopUps = make([]*models.TopUp, len(a.TopUps))
	for i, t := range a.TopUps {
		c.TopUps[i] = shallow(t)
	}
	return &c
}

func cloneMember(m *models.ChitMember) *models.ChitMember {
	c := *m
	if m.MemberNumber != nil {
		n := *m.MemberNumber
		c.MemberNumber = &n
	}
	return &c
}

func cloneAuction(a *models.ChitAuction) *models.ChitAuction {
	c := *a
	if a.DisbursementDate != nil {
		d := *a.DisbursementDate
		c.DisbursementDate = &d
	}
	return &c
}

// MemoryStore is an in-process Storage. Reads return copies, so callers never
// alias stored state. Transactions run against a private copy that replaces
// the live data only when fn succeeds.
type MemoryStore struct {
	mu   sync.RWMutex
	data *memData
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: newMemData()}
}

func (m *MemoryStore) WithTx(ctx context.Context, fn func(tx Storage) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	view := &MemoryStore{data: m.data.clone()}
	if err := fn(view); err != nil {
		return err
	}
	m.data = view.data
	return nil
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) read(fn func(d *memData) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(m.data)
}

func (m *MemoryStore) write(fn func(d *memData) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.data)
}

func (m *MemoryStore) CreateCustomer(ctx context.Context, c *models.Customer) error {
	return m.write(func(d *memData) error {
		for _, existing := range d.customers {
			if existing.Phone == c.Phone {
				return storageErrDuplicate("customer phone", c.Phone)
			}
		}
		d.customers[c.ID] = shallow(c)
		return nil
	})
}

func (m *MemoryStore) GetCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	var out *models.Customer
	err := m.read(func(d *memData) error {
		c, ok := d.customers[id]
		if !ok {
			return notFound("customer", id)
		}
		out = shallow(c)
		return nil
	})
	return out, err
}

func (m *MemoryStore) UpdateCustomer(ctx context.Context, c *models.Customer) error {
	return m.write(func(d *memData) error {
		existing, ok := d.customers[c.ID]
		if !ok {
			return notFound("customer", c.ID)
		}
		for id, other := range d.customers {
			if id != c.ID && other.Phone == c.Phone {
				return storageErrDuplicate("customer phone", c.Phone)
			}
		}
		existing.Name = c.Name
		existing.Phone = c.Phone
		existing.UpdatedAt = c.UpdatedAt
		return nil
	})
}

func (m *MemoryStore) DeleteCustomer(ctx context.Context, id uuid.UUID) error {
	return m.write(func(d *memData) error {
		if _, ok := d.customers[id]; !ok {
			return notFound("customer", id)
		}
		delete(d.customers, id)
		return nil
	})
}

func (m *MemoryStore) GetAllCustomers(ctx context.Context) ([]*models.Customer, error) {
	var out []*models.Customer
	err := m.read(func(d *memData) error {
		for _, c := range d.customers {
			out = append(out, shallow(c))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, err
}

func (m *MemoryStore) CountLoansForCustomer(ctx context.Context, customerID uuid.UUID) (int, error) {
	n := 0
	err := m.read(func(d *memData) error {
		for _, l := range d.loans {
			if l.CustomerID == customerID {
				n++
			}
		}
		for _, a := range d.archived {
			if a.Loan.CustomerID == customerID {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (m *MemoryStore) CreateLoan(ctx context.Context, l *models.Loan) error {
	return m.write(func(d *memData) error {
		if _, ok := d.loans[l.ID]; ok {
			return storageErrDuplicate("loan", l.ID)
		}
		d.loans[l.ID] = shallow(l)
		return nil
	})
}

func (m *MemoryStore) GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	var out *models.Loan
	err := m.read(func(d *memData) error {
		l, ok := d.loans[id]
		if !ok {
			return notFound("loan", id)
		}
		out = shallow(l)
		return nil
	})
	return out, err
}

func (m *MemoryStore) UpdateLoan(ctx context.Context, l *models.Loan) error {
	return m.write(func(d *memData) error {
		if _, ok := d.loans[l.ID]; !ok {
			return notFound("loan", l.ID)
		}
		d.loans[l.ID] = shallow(l)
		return nil
	})
}

func (m *MemoryStore) DeleteLoan(ctx context.Context, id uuid.UUID) error {
	return m.write(func(d *memData) error {
		if _, ok := d.loans[id]; !ok {
			return notFound("loan", id)
		}
		for pid, p := range d.payments {
			if p.LoanID == id {
				delete(d.payments, pid)
			}
		}
		for tid, t := range d.topUps {
			if t.LoanID == id {
				delete(d.topUps, tid)
			}
		}
		delete(d.loans, id)
		return nil
	})
}

func (m *MemoryStore) GetAllLoans(ctx context.Context) ([]*models.Loan, error) {
	var out []*models.Loan
	err := m.read(func(d *memData) error {
		for _, l := range d.loans {
			out = append(out, shallow(l))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, err
}

func (m *MemoryStore) CreatePayment(ctx context.Context, p *models.Payment) error {
	return m.write(func(d *memData) error {
		if _, ok := d.loans[p.LoanID]; !ok {
			return notFound("loan", p.LoanID)
		}
		d.payments[p.ID] = shallow(p)
		return nil
	})
}

func (m *MemoryStore) GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var out *models.Payment
	err := m.read(func(d *memData) error {
		p, ok := d.payments[id]
		if !ok {
			return notFound("payment", id)
		}
		out = shallow(p)
		return nil
	})
	return out, err
}

func (m *MemoryStore) UpdatePayment(ctx context.Context, p *models.Payment) error {
	return m.write(func(d *memData) error {
		existing, ok := d.payments[p.ID]
		if !ok {
			return notFound("payment", p.ID)
		}
		existing.WeekNumber = p.WeekNumber
		existing.BalanceAfter = p.BalanceAfter
		return nil
	})
}

func (m *MemoryStore) DeletePayment(ctx context.Context, id uuid.UUID) error {
	return m.write(func(d *memData) error {
		if _, ok := d.payments[id]; !ok {
			return notFound("payment", id)
		}
		delete(d.payments, id)
		return nil
	})
}

func (m *MemoryStore) GetPaymentsForLoan(ctx context.Context, loanID uuid.UUID) ([]*models.Payment, error) {
	var out []*models.Payment
	err := m.read(func(d *memData) error {
		for _, p := range d.payments {
			if p.LoanID == loanID {
				out = append(out, shallow(p))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, err
}

func (m *MemoryStore) CreateTopUp(ctx context.Context, t *models.TopUp) error {
	return m.write(func(d *memData) error {
		if _, ok := d.loans[t.LoanID]; !ok {
			return notFound("loan", t.LoanID)
		}
		d.topUps[t.ID] = shallow(t)
		return nil
	})
}

func (m *MemoryStore) GetTopUpsForLoan(ctx context.Context, loanID uuid.UUID) ([]*models.TopUp, error) {
	var out []*models.TopUp
	err := m.read(func(d *memData) error {
		for _, t := range d.topUps {
			if t.LoanID == loanID {
				out = append(out, shallow(t))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, err
}

func (m *MemoryStore) CreateArchivedLoan(ctx context.Context, a *models.ArchivedLoan) error {
	return m.write(func(d *memData) error {
		d.archived[a.ID] = cloneArchived(a)
		return nil
	})
}

func (m *MemoryStore) GetArchivedLoan(ctx context.Context, id uuid.UUID) (*models.ArchivedLoan, error) {
	var out *models.ArchivedLoan
	err := m.read(func(d *memData) error {
		a, ok := d.archived[id]
		if !ok {
			return notFound("archived loan", id)
		}
		out = cloneArchived(a)
		return nil
	})
	return out, err
}

func (m *MemoryStore) GetAllArchivedLoans(ctx context.Context) ([]*models.ArchivedLoan, error) {
	var out []*models.ArchivedLoan
	err := m.read(func(d *memData) error {
		for _, a := range d.archived {
			out = append(out, cloneArchived(a))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ArchivedAt.Equal(out[j].ArchivedAt) {
			return out[i].ArchivedAt.After(out[j].ArchivedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, err
}

func (m *MemoryStore) DeleteArchivedLoan(ctx context.Context, id uuid.UUID) error {
	return m.write(func(d *memData) error {
		if _, ok := d.archived[id]; !ok {
			return notFound("archived loan", id)
		}
		delete(d.archived, id)
		return nil
	})
}

func (m *MemoryStore) CreateChitGroup(ctx context.Context, g *models.ChitGroup) error {
	return m.write(func(d *memData) error {
		d.chitGroups[g.ID] = shallow(g)
		return nil
	})
}

func (m *MemoryStore) GetChitGroup(ctx context.Context, id uuid.UUID) (*models.ChitGroup, error) {
	var out *models.ChitGroup
	err := m.read(func(d *memData) error {
		g, ok := d.chitGroups[id]
		if !ok {
			return notFound("chit group", id)
		}
		out = shallow(g)
		return nil
	})
	return out, err
}

func (m *MemoryStore) GetAllChitGroups(ctx context.Context) ([]*models.ChitGroup, error) {
	var out []*models.ChitGroup
	err := m.read(func(d *memData) error {
		for _, g := range d.chitGroups {
			out = append(out, shallow(g))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, err
}

func (m *MemoryStore) CreateChitMember(ctx context.Context, member *models.ChitMember) error {
	return m.write(func(d *memData) error {
		if _, ok := d.chitGroups[member.GroupID]; !ok {
			return notFound("chit group", member.GroupID)
		}
		if member.MemberNumber != nil {
			for _, other := range d.chitMembers {
				if other.GroupID == member.GroupID && other.MemberNumber != nil && *other.MemberNumber == *member.MemberNumber {
					return storageErrDuplicate("member number", *member.MemberNumber)
				}
			}
		}
		d.chitMembers[member.ID] = cloneMember(member)
		return nil
	})
}

func (m *MemoryStore) GetChitMember(ctx context.Context, id uuid.UUID) (*models.ChitMember, error) {
	var out *models.ChitMember
	err := m.read(func(d *memData) error {
		member, ok := d.chitMembers[id]
		if !ok {
			return notFound("chit member", id)
		}
		out = cloneMember(member)
		return nil
	})
	return out, err
}

func (m *MemoryStore) GetChitMembers(ctx context.Context, groupID uuid.UUID) ([]*models.ChitMember, error) {
	var out []*models.ChitMember
	err := m.read(func(d *memData) error {
		for _, member := range d.chitMembers {
			if member.GroupID == groupID {
				out = append(out, cloneMember(member))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.MemberNumber != nil && b.MemberNumber != nil && *a.MemberNumber != *b.MemberNumber:
			return *a.MemberNumber < *b.MemberNumber
		case (a.MemberNumber == nil) != (b.MemberNumber == nil):
			return a.MemberNumber != nil
		case !a.CreatedAt.Equal(b.CreatedAt):
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
	return out, err
}

func (m *MemoryStore) DeleteChitMember(ctx context.Context, id uuid.UUID) error {
	return m.write(func(d *memData) error {
		if _, ok := d.chitMembers[id]; !ok {
			return notFound("chit member", id)
		}
		delete(d.chitMembers, id)
		return nil
	})
}

func (m *MemoryStore) CountChitMemberReferences(ctx context.Context, memberID uuid.UUID) (int, error) {
	n := 0
	err := m.read(func(d *memData) error {
		for _, p := range d.chitPayments {
			if p.MemberID == memberID {
				n++
			}
		}
		for _, a := range d.chitAuctions {
			if a.WinnerMemberID == memberID {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (m *MemoryStore) CreateChitPayment(ctx context.Context, p *models.ChitPayment) error {
	return m.write(func(d *memData) error {
		for _, other := range d.chitPayments {
			if other.MemberID == p.MemberID && other.Month == p.Month {
				return storageErrDuplicate("chit payment", p.Month)
			}
		}
		d.chitPayments[p.ID] = shallow(p)
		return nil
	})
}

func (m *MemoryStore) GetChitPayment(ctx context.Context, id uuid.UUID) (*models.ChitPayment, error) {
	var out *models.ChitPayment
	err := m.read(func(d *memData) error {
		p, ok := d.chitPayments[id]
		if !ok {
			return notFound("chit payment", id)
		}
		out = shallow(p)
		return nil
	})
	return out, err
}

func (m *MemoryStore) GetChitPaymentByMemberMonth(ctx context.Context, memberID uuid.UUID, month money.Month) (*models.ChitPayment, error) {
	var out *models.ChitPayment
	err := m.read(func(d *memData) error {
		for _, p := range d.chitPayments {
			if p.MemberID == memberID && p.Month == month {
				out = shallow(p)
				return nil
			}
		}
		return notFound("chit payment for month", month)
	})
	return out, err
}

func (m *MemoryStore) GetChitPaymentsForMonth(ctx context.Context, groupID uuid.UUID, month money.Month) ([]*models.ChitPayment, error) {
	var out []*models.ChitPayment
	err := m.read(func(d *memData) error {
		for _, p := range d.chitPayments {
			if p.GroupID == groupID && p.Month == month {
				out = append(out, shallow(p))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, err
}

func (m *MemoryStore) DeleteChitPayment(ctx context.Context, id uuid.UUID) error {
	return m.write(func(d *memData) error {
		if _, ok := d.chitPayments[id]; !ok {
			return notFound("chit payment", id)
		}
		delete(d.chitPayments, id)
		return nil
	})
}

func (m *MemoryStore) SaveChitAuction(ctx context.Context, a *models.ChitAuction) error {
	return m.write(func(d *memData) error {
		for id, other := range d.chitAuctions {
			if id == a.ID || other.GroupID != a.GroupID {
				continue
			}
			if other.Month == a.Month || other.SlotNumber == a.SlotNumber {
				return storageErrDuplicate("chit auction", a.Month)
			}
		}
		d.chitAuctions[a.ID] = cloneAuction(a)
		return nil
	})
}

func (m *MemoryStore) GetChitAuction(ctx context.Context, id uuid.UUID) (*models.ChitAuction, error) {
	var out *models.ChitAuction
	err := m.read(func(d *memData) error {
		a, ok := d.chitAuctions[id]
		if !ok {
			return notFound("chit auction", id)
		}
		out = cloneAuction(a)
		return nil
	})
	return out, err
}

func (m *MemoryStore) GetChitAuctionByMonth(ctx context.Context, groupID uuid.UUID, month money.Month) (*models.ChitAuction, error) {
	var out *models.ChitAuction
	err := m.read(func(d *memData) error {
		for _, a := range d.chitAuctions {
			if a.GroupID == groupID && a.Month == month {
				out = cloneAuction(a)
				return nil
			}
		}
		return notFound("chit auction for month", month)
	})
	return out, err
}

func (m *MemoryStore) GetChitAuctions(ctx context.Context, groupID uuid.UUID) ([]*models.ChitAuction, error) {
	var out []*models.ChitAuction
	err := m.read(func(d *memData) error {
		for _, a := range d.chitAuctions {
			if a.GroupID == groupID {
				out = append(out, cloneAuction(a))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].SlotNumber < out[j].SlotNumber })
	return out, err
}

func (m *MemoryStore) DeleteChitAuction(ctx context.Context, id uuid.UUID) error {
	return m.write(func(d *memData) error {
		if _, ok := d.chitAuctions[id]; !ok {
			return notFound("chit auction", id)
		}
		delete(d.chitAuctions, id)
		return nil
	})
}
