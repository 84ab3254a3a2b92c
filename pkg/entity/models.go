package entity

import "time"

// Sample is a biological sample registered in the LIMS.
type Sample struct {
	ID           int64      `json:"id"`
	GUID         string     `json:"guid"`
	Name         string     `json:"name"`
	Type         string     `json:"type"`
	Status       string     `json:"status"`
	ProjectID    *int64     `json:"project,omitempty"`
	ContainerID  *int64     `json:"container,omitempty"`
	IndividualID *int64     `json:"individual,omitempty"`
	SpeciesID    *int64     `json:"species,omitempty"`
	LocationID   *int64     `json:"location,omitempty"`
	DateSampled  *time.Time `json:"date_sampled,omitempty"`
}

// EntityID returns the sample id.
func (s Sample) EntityID() int64 { return s.ID }

// Container holds samples at a storage location.
type Container struct {
	ID         int64  `json:"id"`
	Barcode    string `json:"barcode"`
	Kind       string `json:"kind"`
	LocationID *int64 `json:"location,omitempty"`
	ParentID   *int64 `json:"parent,omitempty"`
}

// EntityID returns the container id.
func (c Container) EntityID() int64 { return c.ID }

// Project groups samples and runs.
type Project struct {
	ID       int64  `json:"id"`
	Number   string `json:"number"`
	Name     string `json:"name"`
	Verified bool   `json:"verified"`
	Active   bool   `json:"active"`
}

// EntityID returns the project id.
func (p Project) EntityID() int64 { return p.ID }

// Run is a sequencing or analysis run over a set of samples.
type Run struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Kind      string     `json:"kind"`
	ProjectID *int64     `json:"project,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
}

// EntityID returns the run id.
func (r Run) EntityID() int64 { return r.ID }

// Individual is the organism a sample was taken from.
type Individual struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	SpeciesID *int64 `json:"species,omitempty"`
}

// EntityID returns the individual id.
func (i Individual) EntityID() int64 { return i.ID }
