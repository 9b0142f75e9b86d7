package crud

import (
	"fmt"
	"sync"

	"github.com/conduit-lang/restgen/internal/orm/derive"
	"github.com/conduit-lang/restgen/internal/orm/query"
	"github.com/conduit-lang/restgen/internal/orm/schema"
	"github.com/conduit-lang/restgen/internal/orm/shape"
	"github.com/conduit-lang/restgen/internal/orm/transaction"
)

// ChangeEvent describes a committed write
type ChangeEvent struct {
	Entity    string        `json:"entity"`
	Operation string        `json:"operation"`
	Key       interface{}   `json:"key"`
	Record    *shape.Object `json:"record,omitempty"`
}

// Listener receives change events after their transaction commits
type Listener func(ChangeEvent)

// slot memoizes one controller
type slot struct {
	once  sync.Once
	value interface{}
}

func (s *slot) load(build func() interface{}) interface{} {
	s.once.Do(func() {
		s.value = build()
	})
	return s.value
}

const numOperations = int(schema.OpSearch) + 1

type entitySlots struct {
	ops  [numOperations]slot
	rels map[string]*slot
}

// Controllers builds the controllers of every registered entity on first
// use and keeps them for the lifetime of the engine. The slot table is
// allocated up front so lookups never write to shared maps.
type Controllers struct {
	engine *derive.Engine
	tm     *transaction.Manager
	slots  map[string]*entitySlots

	mu        sync.RWMutex
	listeners []Listener
}

// NewControllers creates the controller set of a derived engine
func NewControllers(engine *derive.Engine, tm *transaction.Manager) *Controllers {
	c := &Controllers{
		engine: engine,
		tm:     tm,
		slots:  make(map[string]*entitySlots),
	}
	for _, e := range engine.Registry().All() {
		s := &entitySlots{rels: make(map[string]*slot)}
		for _, name := range e.Read.RoutedRelationships {
			s.rels[name] = &slot{}
		}
		c.slots[e.Name] = s
	}
	return c
}

// Engine returns the schema engine the controllers were built from
func (c *Controllers) Engine() *derive.Engine {
	return c.engine
}

// Subscribe registers a listener for committed writes
func (c *Controllers) Subscribe(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

func (c *Controllers) publish(event ChangeEvent) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, l := range c.listeners {
		l(event)
	}
}

// Create returns the create controller of an entity
func (c *Controllers) Create(entity string) (*CreateController, error) {
	v, err := c.controller(entity, schema.OpCreate, func(b *base) interface{} {
		return &CreateController{base: b}
	})
	if err != nil {
		return nil, err
	}
	return v.(*CreateController), nil
}

// Read returns the read controller of an entity
func (c *Controllers) Read(entity string) (*ReadController, error) {
	v, err := c.controller(entity, schema.OpRead, func(b *base) interface{} {
		return &ReadController{base: b}
	})
	if err != nil {
		return nil, err
	}
	return v.(*ReadController), nil
}

// Patch returns the patch controller of an entity
func (c *Controllers) Patch(entity string) (*PatchController, error) {
	v, err := c.controller(entity, schema.OpPatch, func(b *base) interface{} {
		return &PatchController{base: b}
	})
	if err != nil {
		return nil, err
	}
	return v.(*PatchController), nil
}

// Delete returns the delete controller of an entity
func (c *Controllers) Delete(entity string) (*DeleteController, error) {
	v, err := c.controller(entity, schema.OpDelete, func(b *base) interface{} {
		return &DeleteController{base: b}
	})
	if err != nil {
		return nil, err
	}
	return v.(*DeleteController), nil
}

// Search returns the search controller of an entity
func (c *Controllers) Search(entity string) (*SearchController, error) {
	v, err := c.controller(entity, schema.OpSearch, func(b *base) interface{} {
		return &SearchController{base: b}
	})
	if err != nil {
		return nil, err
	}
	return v.(*SearchController), nil
}

// Relationship returns the pagination controller of a routed relationship
func (c *Controllers) Relationship(entity, name string) (*RelationshipController, error) {
	s, ok := c.slots[entity]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, entity)
	}
	rs, ok := s.rels[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s is not a routed relationship", ErrOperationDisabled, entity, name)
	}
	b, err := c.base(entity)
	if err != nil {
		return nil, err
	}
	return rs.load(func() interface{} {
		return newRelationshipController(b, name)
	}).(*RelationshipController), nil
}

// reader returns the read controller of an entity whether or not its read
// endpoint is enabled, for resolving identifiers
func (c *Controllers) reader(entity string) (*ReadController, error) {
	s, ok := c.slots[entity]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, entity)
	}
	b, err := c.base(entity)
	if err != nil {
		return nil, err
	}
	return s.ops[schema.OpRead].load(func() interface{} {
		return &ReadController{base: b}
	}).(*ReadController), nil
}

func (c *Controllers) controller(entity string, op schema.Operation, build func(*base) interface{}) (interface{}, error) {
	s, ok := c.slots[entity]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, entity)
	}
	b, err := c.base(entity)
	if err != nil {
		return nil, err
	}
	if !b.entity.Enabled(op) {
		return nil, fmt.Errorf("%w: %s %s", ErrOperationDisabled, op, entity)
	}
	return s.ops[op].load(func() interface{} {
		return build(b)
	}), nil
}

func (c *Controllers) base(entity string) (*base, error) {
	set, ok := c.engine.Set(entity)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, entity)
	}
	return &base{controllers: c, entity: set.Entity, set: set}, nil
}

// base holds what every controller of one entity closes over
type base struct {
	controllers *Controllers
	entity      *schema.Entity
	set         *derive.Set
}

// Entity returns the entity the controller serves
func (b *base) Entity() *schema.Entity {
	return b.entity
}

func (b *base) query(q query.Querier) *query.QueryBuilder {
	return b.table(q, b.entity.Table)
}

func (b *base) table(q query.Querier, table string) *query.QueryBuilder {
	return query.New(q, b.controllers.engine.Dialect(), table)
}

func (b *base) pk() string {
	return b.entity.PrimaryKey().Name
}
