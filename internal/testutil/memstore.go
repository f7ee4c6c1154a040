// Package testutil provides an in-memory registry store for service and
// pipeline tests.
package testutil

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/models"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/repository"
)

// MemStore implements repository.Store and repository.Provider in memory.
// InTx snapshots the state and restores it when fn fails.
type MemStore struct {
	mu sync.Mutex

	buildings    map[int64]*models.Building
	permits      map[int64]*models.Permit
	transactions map[int64][]models.Transaction
	intelligence map[int64]models.Intelligence
	nextID       int64

	// Writes counts mutating calls, including stamps.
	Writes int
	// LedgerWrites counts ReplaceLedger calls.
	LedgerWrites int

	// Injected failures, returned by the matching operation when non-nil.
	FailApply   error
	FailReplace error
	FailStamp   error
	FailList    error

	active    int
	MaxActive int
	Conns     int
}

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		buildings:    map[int64]*models.Building{},
		permits:      map[int64]*models.Permit{},
		transactions: map[int64][]models.Transaction{},
		intelligence: map[int64]models.Intelligence{},
	}
}

// WithStore implements repository.Provider and tracks concurrent holders.
func (m *MemStore) WithStore(ctx context.Context, fn func(repository.Store) error) error {
	m.mu.Lock()
	m.active++
	m.Conns++
	if m.active > m.MaxActive {
		m.MaxActive = m.active
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.active--
		m.mu.Unlock()
	}()
	return fn(m)
}

func (m *MemStore) Buildings() repository.BuildingRepository       { return memBuildings{m} }
func (m *MemStore) Permits() repository.PermitRepository           { return memPermits{m} }
func (m *MemStore) Transactions() repository.TransactionRepository { return memTransactions{m} }
func (m *MemStore) Intelligence() repository.IntelligenceRepository {
	return memIntelligence{m}
}

// InTx runs fn and rolls the state back if it fails. Transactions of
// different goroutines are not isolated from each other.
func (m *MemStore) InTx(ctx context.Context, fn func(repository.Store) error) error {
	m.mu.Lock()
	snap := m.snapshot()
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.restore(snap)
		m.mu.Unlock()
		return err
	}
	return nil
}

type memSnapshot struct {
	buildings    map[int64]models.Building
	permits      map[int64]models.Permit
	transactions map[int64][]models.Transaction
	intelligence map[int64]models.Intelligence
}

func (m *MemStore) snapshot() memSnapshot {
	s := memSnapshot{
		buildings:    make(map[int64]models.Building, len(m.buildings)),
		permits:      make(map[int64]models.Permit, len(m.permits)),
		transactions: make(map[int64][]models.Transaction, len(m.transactions)),
		intelligence: make(map[int64]models.Intelligence, len(m.intelligence)),
	}
	for id, b := range m.buildings {
		s.buildings[id] = *b
	}
	for id, p := range m.permits {
		s.permits[id] = *p
	}
	for id, t := range m.transactions {
		s.transactions[id] = append([]models.Transaction(nil), t...)
	}
	for id, in := range m.intelligence {
		s.intelligence[id] = in
	}
	return s
}

func (m *MemStore) restore(s memSnapshot) {
	m.buildings = make(map[int64]*models.Building, len(s.buildings))
	for id, b := range s.buildings {
		b := b
		m.buildings[id] = &b
	}
	m.permits = make(map[int64]*models.Permit, len(s.permits))
	for id, p := range s.permits {
		p := p
		m.permits[id] = &p
	}
	m.transactions = s.transactions
	m.intelligence = s.intelligence
}

// AddBuilding inserts b, assigning an id when it has none, and returns the id.
func (m *MemStore) AddBuilding(b models.Building) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.ID == 0 {
		m.nextID++
		b.ID = m.nextID
	} else if b.ID > m.nextID {
		m.nextID = b.ID
	}
	m.buildings[b.ID] = &b
	return b.ID
}

// AddPermit inserts p.
func (m *MemStore) AddPermit(p models.Permit) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.permits[p.ID] = &p
}

// AddTransactions seeds a building's ledger.
func (m *MemStore) AddTransactions(buildingID int64, txns ...models.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range txns {
		txns[i].BuildingID = buildingID
	}
	m.transactions[buildingID] = append(m.transactions[buildingID], txns...)
}

// Building returns a copy of the building with id.
func (m *MemStore) Building(id int64) (models.Building, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buildings[id]
	if !ok {
		return models.Building{}, false
	}
	return *b, true
}

// Permit returns a copy of the permit with id.
func (m *MemStore) Permit(id int64) (models.Permit, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.permits[id]
	if !ok {
		return models.Permit{}, false
	}
	return *p, true
}

// Ledger returns a copy of a building's transactions.
func (m *MemStore) Ledger(buildingID int64) []models.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Transaction(nil), m.transactions[buildingID]...)
}

// Score returns the stored intelligence row.
func (m *MemStore) Score(buildingID int64) (models.Intelligence, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.intelligence[buildingID]
	return in, ok
}

// BuildingCount returns the number of buildings.
func (m *MemStore) BuildingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buildings)
}

func (m *MemStore) sortedBuildings() []*models.Building {
	out := make([]*models.Building, 0, len(m.buildings))
	for _, b := range m.buildings {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type memBuildings struct{ m *MemStore }

func (r memBuildings) UpsertFromPermit(ctx context.Context, id string, p models.Permit) (int64, bool, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Writes++
	for _, b := range m.buildings {
		if b.BBL == id {
			if b.Address == nil && p.Address != "" {
				addr := p.Address
				b.Address = &addr
			}
			return b.ID, false, nil
		}
	}
	m.nextID++
	b := &models.Building{ID: m.nextID, BBL: id, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	if p.Address != "" {
		addr := p.Address
		b.Address = &addr
	}
	m.buildings[b.ID] = b
	return b.ID, true, nil
}

func (r memBuildings) FindByBBL(ctx context.Context, id string) (*models.Building, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.buildings {
		if b.BBL == id {
			cp := *b
			return &cp, nil
		}
	}
	return nil, nil
}

func (r memBuildings) ListNeedingEnrichment(ctx context.Context, source models.Source, policy models.FreshnessPolicy, now time.Time, afterID int64, limit int) ([]models.Building, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailList != nil {
		return nil, m.FailList
	}
	out := []models.Building{}
	for _, b := range m.sortedBuildings() {
		if b.ID <= afterID || !models.NeedsEnrichment(b, source, policy, now) {
			continue
		}
		out = append(out, *b)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r memBuildings) ListAll(ctx context.Context, afterID int64, limit int) ([]models.Building, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailList != nil {
		return nil, m.FailList
	}
	out := []models.Building{}
	for _, b := range m.sortedBuildings() {
		if b.ID <= afterID {
			continue
		}
		out = append(out, *b)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r memBuildings) ApplyFields(ctx context.Context, id int64, source models.Source, fields models.FieldSet, mode models.MergeMode, at time.Time) error {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailApply != nil {
		return m.FailApply
	}
	b, ok := m.buildings[id]
	if !ok {
		return fmt.Errorf("building %d not found", id)
	}
	for col := range fields {
		if !source.Owns(col) {
			return fmt.Errorf("%w: %s does not own %s", repository.ErrColumnNotOwned, source, col)
		}
	}
	for col, v := range fields {
		if err := setColumn(b, col, v, mode); err != nil {
			return err
		}
	}
	m.Writes++
	return setColumn(b, source.StampColumn(), at, models.MergeReplace)
}

func (r memBuildings) Stamp(ctx context.Context, id int64, source models.Source, at time.Time) error {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailStamp != nil {
		return m.FailStamp
	}
	b, ok := m.buildings[id]
	if !ok {
		return fmt.Errorf("building %d not found", id)
	}
	m.Writes++
	return setColumn(b, source.StampColumn(), at, models.MergeReplace)
}

func (r memBuildings) CurrentOwnerNames(ctx context.Context) ([]string, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	names := []string{}
	for _, b := range m.sortedBuildings() {
		if owner := b.CurrentOwner(); owner != "" {
			names = append(names, owner)
		}
	}
	return names, nil
}

type memPermits struct{ m *MemStore }

func (r memPermits) ListUnlinked(ctx context.Context, afterID int64, limit int) ([]models.Permit, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Permit{}
	for _, p := range m.permits {
		if p.BBL == nil && p.ID > afterID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memPermits) LinkBBL(ctx context.Context, permitID int64, id string) error {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.permits[permitID]
	if !ok {
		return fmt.Errorf("permit %d not found", permitID)
	}
	m.Writes++
	p.BBL = &id
	return nil
}

type memTransactions struct{ m *MemStore }

func (r memTransactions) CountForBuilding(ctx context.Context, buildingID int64) (int, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.transactions[buildingID]), nil
}

func (r memTransactions) ListForBuilding(ctx context.Context, buildingID int64) ([]models.Transaction, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Transaction{}, m.transactions[buildingID]...), nil
}

func (r memTransactions) ReplaceLedger(ctx context.Context, buildingID int64, txns []models.Transaction) error {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailReplace != nil {
		return m.FailReplace
	}
	ledger := make([]models.Transaction, len(txns))
	for i, t := range txns {
		t.BuildingID = buildingID
		t.ID = int64(i + 1)
		ledger[i] = t
	}
	m.transactions[buildingID] = ledger
	m.Writes++
	m.LedgerWrites++
	return nil
}

type memIntelligence struct{ m *MemStore }

func (r memIntelligence) Upsert(ctx context.Context, in models.Intelligence) error {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	m.intelligence[in.BuildingID] = in
	m.Writes++
	return nil
}

func (r memIntelligence) FindByBuilding(ctx context.Context, buildingID int64) (*models.Intelligence, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.intelligence[buildingID]
	if !ok {
		return nil, nil
	}
	return &in, nil
}

// setColumn assigns v to the Building field whose json tag is the camel-case
// form of column, honouring mode.
func setColumn(b *models.Building, column string, v interface{}, mode models.MergeMode) error {
	field, ok := fieldByColumn(b, column)
	if !ok {
		return fmt.Errorf("unknown column %s", column)
	}

	if v == models.Cleared {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}

	switch mode {
	case models.MergeFillNulls:
		if !field.IsNil() || v == nil {
			return nil
		}
	case models.MergeRefresh:
		if v == nil {
			return nil
		}
	}

	if v == nil {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}

	elem := field.Type().Elem()
	val := reflect.ValueOf(v)
	if !val.Type().ConvertibleTo(elem) {
		return fmt.Errorf("column %s: cannot store %T", column, v)
	}
	p := reflect.New(elem)
	p.Elem().Set(val.Convert(elem))
	field.Set(p)
	return nil
}

func fieldByColumn(b *models.Building, column string) (reflect.Value, bool) {
	tag := snakeToCamel(column)
	rv := reflect.ValueOf(b).Elem()
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		name := strings.Split(rt.Field(i).Tag.Get("json"), ",")[0]
		if name == tag && rt.Field(i).Type.Kind() == reflect.Ptr {
			return rv.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func snakeToCamel(s string) string {
	parts := strings.Split(s, "_")
	for i := 1; i < len(parts); i++ {
		if parts[i] != "" {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}
