package ecs

// EntityID is a caller-visible, 64-bit entity identifier, unique within one
// container. It is not a row index — the store maps it to a dense
// entityIdx internally.
type EntityID int64

// ComponentID is a 64-bit identifier for a typed column.
type ComponentID int64

// ComponentKind is one of the four declared component flavours.
type ComponentKind int

const (
	// KindFlag marks presence/absence; the value is arbitrary when present.
	KindFlag ComponentKind = iota
	// KindValue is an ordinary numeric column.
	KindValue
	// KindPermissioned is a value column gated by a PermissionLevel.
	KindPermissioned
	// KindCore is platform-defined and ungated.
	KindCore
)

// Platform-defined core components, always present. ENTITY_ID stores the
// entity id as a float so it survives a columnar snapshot read; MATCH_ID is
// the owning match; OWNER_ID is the owning player, optional per entity.
const (
	EntityIDComponent ComponentID = -1
	MatchIDComponent  ComponentID = -2
	OwnerIDComponent  ComponentID = -3
)

// ComponentDescriptor names a component for registry/permission purposes.
type ComponentDescriptor struct {
	ID   ComponentID
	Name string
	Kind ComponentKind
}

// Interface is the pre-permission ECS contract (§4.3). Store satisfies it
// directly; LockingStore and DirtyTrackingStore are decorators over it.
type Interface interface {
	CreateEntity(id EntityID) error
	CreateEntityForMatch(matchID int64) (EntityID, error)
	DeleteEntity(id EntityID) error
	AttachComponent(id EntityID, comp ComponentID, value float32) error
	AttachComponents(id EntityID, values map[ComponentID]float32) error
	RemoveComponent(id EntityID, comp ComponentID) error
	GetComponent(id EntityID, comp ComponentID) (float32, error)
	GetComponents(id EntityID, comps []ComponentID) (map[ComponentID]float32, error)
	HasComponent(id EntityID, comp ComponentID) (bool, error)
	EntitiesWithComponents(comps ...ComponentID) (map[EntityID]struct{}, error)
	Reset()
	EntityCount() int
	MaxEntities() int
	MaxComponents() int
}
