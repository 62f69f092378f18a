package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// IDs are assigned in Go so rows insert identically on Postgres and SQLite.

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func (p *Product) BeforeCreate(*gorm.DB) error             { ensureID(&p.ID); return nil }
func (c *Cart) BeforeCreate(*gorm.DB) error                { ensureID(&c.ID); return nil }
func (l *CartLine) BeforeCreate(*gorm.DB) error            { ensureID(&l.ID); return nil }
func (p *PaymentIntent) BeforeCreate(*gorm.DB) error       { ensureID(&p.ID); return nil }
func (o *Order) BeforeCreate(*gorm.DB) error               { ensureID(&o.ID); return nil }
func (i *OrderItem) BeforeCreate(*gorm.DB) error           { ensureID(&i.ID); return nil }
func (r *CancellationRequest) BeforeCreate(*gorm.DB) error { ensureID(&r.ID); return nil }
func (e *OutboxEvent) BeforeCreate(*gorm.DB) error         { ensureID(&e.ID); return nil }

// All lists every persisted model in dependency order.
func All() []any {
	return []any{
		&Product{},
		&Cart{},
		&CartLine{},
		&PaymentIntent{},
		&Order{},
		&OrderItem{},
		&CancellationRequest{},
		&OutboxEvent{},
	}
}
