// Package permission implements the permission-check decorator of §4.4: a
// ModuleScopedStore wraps the shared ECS and authorises every call against
// the holder's capability token, re-verifying the token's signature on
// every use as the contract requires.
package permission

import (
	"github.com/simfleet/simfleet/internal/ecs"
	"github.com/simfleet/simfleet/internal/simerr"
	"github.com/simfleet/simfleet/internal/token"
)

// Check implements the enforcement algorithm of §4.4 for component c on
// behalf of claims, for a read (write=false) or write (write=true) access.
func Check(claims token.Claims, comp ecs.ComponentID, write bool) error {
	if claims.IsSuperuser {
		return nil
	}
	// The three platform core components are ungated (KindCore, §3): every
	// module may read or write them regardless of declared permissions,
	// since ENTITY_ID/MATCH_ID/OWNER_ID are platform-managed bookkeeping,
	// not module-owned data.
	if comp == ecs.EntityIDComponent || comp == ecs.MatchIDComponent || comp == ecs.OwnerIDComponent {
		return nil
	}

	// Only Permissioned-flavour components are ever registered in the
	// permission registry (§4.5 step 3 registers "each Permissioned
	// component", not every declared one); a component with no entry is
	// Flag, Value, or Core and is therefore ungated like the platform core
	// components above.
	perm, ok := claims.ComponentPermissions[comp]
	if !ok {
		return nil
	}

	if perm.Level == token.Private {
		if perm.OwnerModule == claims.ModuleName {
			return nil
		}
		return forbidden(claims.ModuleName, comp, perm.Level)
	}

	if !write && (perm.Level == token.Read || perm.Level == token.Write) {
		return nil
	}
	if write && perm.Level == token.Write {
		return nil
	}
	return forbidden(claims.ModuleName, comp, perm.Level)
}

func forbidden(module string, comp ecs.ComponentID, level token.Level) error {
	return simerr.AccessForbiddenf("module %s denied %s on component %d", module, levelName(level), comp).
		WithDetails(map[string]any{"component": comp, "level": levelName(level)})
}

func levelName(l token.Level) string {
	switch l {
	case token.Private:
		return "PRIVATE"
	case token.Read:
		return "READ"
	case token.Write:
		return "WRITE"
	default:
		return "UNKNOWN"
	}
}

// ModuleScopedStore is the per-module view of the shared ECS the registry
// installs into a module's context (§4.4, §4.5 step 6). Every operation
// re-verifies the held token's signature, then checks permission for the
// components it touches, before delegating to the shared store.
type ModuleScopedStore struct {
	shared  ecs.Interface
	service *token.Service
	raw     string
}

// NewModuleScopedStore builds a scoped view over shared, authorised by the
// capability token whose signed form is raw.
func NewModuleScopedStore(shared ecs.Interface, service *token.Service, raw string) *ModuleScopedStore {
	return &ModuleScopedStore{shared: shared, service: service, raw: raw}
}

// SetToken installs a newer signed token, the form a refreshToken call
// takes effect in — the scoped store always re-verifies on next use, so
// swapping the raw string is all a caller needs to do after incremental
// re-authorisation (§4.5).
func (m *ModuleScopedStore) SetToken(raw string) {
	m.raw = raw
}

func (m *ModuleScopedStore) claims() (token.Claims, error) {
	return m.service.Verify(m.raw)
}

func (m *ModuleScopedStore) CreateEntity(id ecs.EntityID) error {
	if _, err := m.claims(); err != nil {
		return err
	}
	return m.shared.CreateEntity(id)
}

func (m *ModuleScopedStore) CreateEntityForMatch(matchID int64) (ecs.EntityID, error) {
	if _, err := m.claims(); err != nil {
		return 0, err
	}
	return m.shared.CreateEntityForMatch(matchID)
}

func (m *ModuleScopedStore) DeleteEntity(id ecs.EntityID) error {
	if _, err := m.claims(); err != nil {
		return err
	}
	return m.shared.DeleteEntity(id)
}

func (m *ModuleScopedStore) AttachComponent(id ecs.EntityID, comp ecs.ComponentID, value float32) error {
	claims, err := m.claims()
	if err != nil {
		return err
	}
	if err := Check(claims, comp, true); err != nil {
		return err
	}
	return m.shared.AttachComponent(id, comp, value)
}

func (m *ModuleScopedStore) AttachComponents(id ecs.EntityID, values map[ecs.ComponentID]float32) error {
	claims, err := m.claims()
	if err != nil {
		return err
	}
	for comp := range values {
		if err := Check(claims, comp, true); err != nil {
			return err
		}
	}
	return m.shared.AttachComponents(id, values)
}

func (m *ModuleScopedStore) RemoveComponent(id ecs.EntityID, comp ecs.ComponentID) error {
	claims, err := m.claims()
	if err != nil {
		return err
	}
	if err := Check(claims, comp, true); err != nil {
		return err
	}
	return m.shared.RemoveComponent(id, comp)
}

func (m *ModuleScopedStore) GetComponent(id ecs.EntityID, comp ecs.ComponentID) (float32, error) {
	claims, err := m.claims()
	if err != nil {
		return ecs.Null(), err
	}
	if err := Check(claims, comp, false); err != nil {
		return ecs.Null(), err
	}
	return m.shared.GetComponent(id, comp)
}

func (m *ModuleScopedStore) GetComponents(id ecs.EntityID, comps []ecs.ComponentID) (map[ecs.ComponentID]float32, error) {
	claims, err := m.claims()
	if err != nil {
		return nil, err
	}
	for _, comp := range comps {
		if err := Check(claims, comp, false); err != nil {
			return nil, err
		}
	}
	return m.shared.GetComponents(id, comps)
}

func (m *ModuleScopedStore) HasComponent(id ecs.EntityID, comp ecs.ComponentID) (bool, error) {
	claims, err := m.claims()
	if err != nil {
		return false, err
	}
	if err := Check(claims, comp, false); err != nil {
		return false, err
	}
	return m.shared.HasComponent(id, comp)
}

func (m *ModuleScopedStore) EntitiesWithComponents(comps ...ecs.ComponentID) (map[ecs.EntityID]struct{}, error) {
	claims, err := m.claims()
	if err != nil {
		return nil, err
	}
	for _, comp := range comps {
		if err := Check(claims, comp, false); err != nil {
			return nil, err
		}
	}
	return m.shared.EntitiesWithComponents(comps...)
}

func (m *ModuleScopedStore) Reset() {
	m.shared.Reset()
}

func (m *ModuleScopedStore) EntityCount() int   { return m.shared.EntityCount() }
func (m *ModuleScopedStore) MaxEntities() int   { return m.shared.MaxEntities() }
func (m *ModuleScopedStore) MaxComponents() int { return m.shared.MaxComponents() }

var _ ecs.Interface = (*ModuleScopedStore)(nil)
