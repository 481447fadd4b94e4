package models

import (
	"testing"

	"github.com/google/uuid"
)

func TestBeforeCreateAssignsID(t *testing.T) {
	t.Parallel()

	var fresh Base
	if err := fresh.BeforeCreate(nil); err != nil {
		t.Fatalf("BeforeCreate returned error: %v", err)
	}
	if fresh.ID == uuid.Nil {
		t.Fatal("expected an identifier to be assigned")
	}

	preset := uuid.New()
	kept := Base{ID: preset}
	if err := kept.BeforeCreate(nil); err != nil {
		t.Fatalf("BeforeCreate returned error: %v", err)
	}
	if kept.ID != preset {
		t.Fatalf("expected preset id %s to be kept, got %s", preset, kept.ID)
	}
}

func TestComponentIDs(t *testing.T) {
	t.Parallel()

	flour := &Product{Base: Base{ID: uuid.New()}, Name: "Flour"}
	milk := &Product{Base: Base{ID: uuid.New()}, Name: "Milk"}
	dish := Product{Name: "Pancakes", Components: []*Product{flour, nil, milk}}

	ids := dish.ComponentIDs()
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %d", len(ids))
	}
	if ids[0] != flour.ID || ids[1] != milk.ID {
		t.Fatalf("unexpected ids %v", ids)
	}

	if got := (&Product{}).ComponentIDs(); len(got) != 0 {
		t.Fatalf("expected no ids for a product without components, got %v", got)
	}
}

func TestEntitiesMatchMigrationOrder(t *testing.T) {
	t.Parallel()

	all, entities := All(), Entities()
	if len(all) != len(entities) {
		t.Fatalf("expected %d entities, got %d", len(all), len(entities))
	}
	for idx, model := range all {
		entity, ok := model.(Entity)
		if !ok {
			t.Fatalf("model %T does not implement Entity", model)
		}
		if entity.TableName() != entities[idx].TableName() {
			t.Fatalf("position %d: table %q, want %q", idx, entities[idx].TableName(), entity.TableName())
		}
	}
}
