// Package session tracks per-phone-key conversational state: the external
// conversation thread handle plus the inspection context the tool handlers
// read and write between turns.
package session

import (
	"time"
)

// WorkflowPhase tracks where a session is in the job workflow.
type WorkflowPhase string

const (
	PhaseNone       WorkflowPhase = "none"
	PhaseConfirming WorkflowPhase = "confirming"
	PhaseStarted    WorkflowPhase = "started"
)

// Metadata is the typed view of the opaque string bag the conversation
// engine persists on our behalf. It crosses two boundaries as a flat
// map[string]string: the thread-metadata mirror and the postgres jsonb
// column. Everywhere else it stays typed.
type Metadata struct {
	InspectorID     string
	InspectorName   string
	WorkOrderID     string
	CustomerName    string
	PropertyAddress string
	PostalCode      string
	CurrentLocation string
	Phase           WorkflowPhase
	LocationTouched time.Time
}

// Map keys for the flat representation.
const (
	keyInspectorID     = "inspectorId"
	keyInspectorName   = "inspectorName"
	keyWorkOrderID     = "workOrderId"
	keyCustomerName    = "customerName"
	keyPropertyAddress = "propertyAddress"
	keyPostalCode      = "postalCode"
	keyCurrentLocation = "currentLocation"
	keyPhase           = "workflowPhase"
	keyLocationTouched = "locationTouchedAt"
)

// ToMap flattens the metadata, dropping empty fields.
func (m Metadata) ToMap() map[string]string {
	out := map[string]string{}
	put := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	put(keyInspectorID, m.InspectorID)
	put(keyInspectorName, m.InspectorName)
	put(keyWorkOrderID, m.WorkOrderID)
	put(keyCustomerName, m.CustomerName)
	put(keyPropertyAddress, m.PropertyAddress)
	put(keyPostalCode, m.PostalCode)
	put(keyCurrentLocation, m.CurrentLocation)
	put(keyPhase, string(m.Phase))
	if !m.LocationTouched.IsZero() {
		put(keyLocationTouched, m.LocationTouched.UTC().Format(time.RFC3339))
	}
	return out
}

// MetadataFromMap rebuilds typed metadata from the flat representation.
// Unknown keys are ignored; a malformed timestamp is dropped.
func MetadataFromMap(in map[string]string) Metadata {
	m := Metadata{
		InspectorID:     in[keyInspectorID],
		InspectorName:   in[keyInspectorName],
		WorkOrderID:     in[keyWorkOrderID],
		CustomerName:    in[keyCustomerName],
		PropertyAddress: in[keyPropertyAddress],
		PostalCode:      in[keyPostalCode],
		CurrentLocation: in[keyCurrentLocation],
		Phase:           WorkflowPhase(in[keyPhase]),
	}
	if m.Phase == "" {
		m.Phase = PhaseNone
	}
	if ts := in[keyLocationTouched]; ts != "" {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			m.LocationTouched = parsed
		}
	}
	return m
}

// Session is the per-phone-key record. ThreadID never changes once created.
type Session struct {
	PhoneKey  string
	ThreadID  string
	Metadata  Metadata
	CreatedAt time.Time
	UpdatedAt time.Time
}
