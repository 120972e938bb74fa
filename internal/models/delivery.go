package models

import "time"

// Delivery is a user-declared shipment.
type Delivery struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	TrackingNumber string     `json:"tracking_number"`
	Carrier        string     `json:"carrier"`
	Notes          string     `json:"notes,omitempty"`
	Archived       bool       `json:"archived"`
	ArchivedAt     *time.Time `json:"archived_at,omitempty"`

	// Used only when the carrier cannot be tracked remotely.
	ManualMarkedAsDelivered bool `json:"manual_marked_as_delivered"`

	// Debug deliveries never hit the network.
	Debug bool `json:"debug"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type DeliveryCreateInput struct {
	Name           string `json:"name" validate:"required,max=200"`
	TrackingNumber string `json:"tracking_number" validate:"required,max=100"`
	Carrier        string `json:"carrier" validate:"required"`
	Notes          string `json:"notes" validate:"max=2000"`
	Debug          bool   `json:"debug"`
}

// DeliveryPatch carries optional field updates; nil fields stay unchanged.
type DeliveryPatch struct {
	Name           *string `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	TrackingNumber *string `json:"tracking_number,omitempty" validate:"omitempty,min=1,max=100"`
	Carrier        *string `json:"carrier,omitempty" validate:"omitempty,min=1"`
	Notes          *string `json:"notes,omitempty" validate:"omitempty,max=2000"`
}
