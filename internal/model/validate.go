package model

import (
	"fmt"
	"strings"
)

// Content is the citizen-editable part of a report.
type Content struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    Category `json:"category"`
	Location    string   `json:"location"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	Images      []string `json:"images,omitempty"`
	IsPublic    bool     `json:"isPublic"`
}

// Patch is a partial update of Content. Nil fields are left unchanged.
// A non-nil empty Images slice clears the photos.
type Patch struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Category    *Category `json:"category,omitempty"`
	Location    *string   `json:"location,omitempty"`
	Latitude    *float64  `json:"latitude,omitempty"`
	Longitude   *float64  `json:"longitude,omitempty"`
	Images      []string  `json:"images,omitempty"`
	IsPublic    *bool     `json:"isPublic,omitempty"`
}

// Validate checks the fields a citizen supplies when creating a report.
func (c *Content) Validate() error {
	if strings.TrimSpace(c.Title) == "" {
		return Invalid("title", "is required")
	}
	if strings.TrimSpace(c.Description) == "" {
		return Invalid("description", "is required")
	}
	if !c.Category.Valid() {
		return Invalid("category", fmt.Sprintf("must be one of %v", Categories))
	}
	if strings.TrimSpace(c.Location) == "" {
		return Invalid("location", "is required")
	}
	return validatePlace(c.Latitude, c.Longitude, c.Images)
}

// Apply returns the content of r with p merged over it.
func (p *Patch) Apply(r *Report) Content {
	c := Content{
		Title:       r.Title,
		Description: r.Description,
		Category:    r.Category,
		Location:    r.Location,
		Latitude:    r.Latitude,
		Longitude:   r.Longitude,
		Images:      r.Images,
		IsPublic:    r.IsPublic,
	}
	if p.Title != nil {
		c.Title = *p.Title
	}
	if p.Description != nil {
		c.Description = *p.Description
	}
	if p.Category != nil {
		c.Category = *p.Category
	}
	if p.Location != nil {
		c.Location = *p.Location
	}
	if p.Latitude != nil {
		c.Latitude = p.Latitude
	}
	if p.Longitude != nil {
		c.Longitude = p.Longitude
	}
	if p.Images != nil {
		c.Images = p.Images
	}
	if p.IsPublic != nil {
		c.IsPublic = *p.IsPublic
	}
	return c
}

// Validate checks the structural shape of a stored report.
// A resolved report must carry its resolution time. The converse is not
// checked: a report reopened under Policy.AllowReopen keeps its resolution.
func (r *Report) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return Invalid("id", "is required")
	}
	content := Content{
		Title:       r.Title,
		Description: r.Description,
		Category:    r.Category,
		Location:    r.Location,
		Latitude:    r.Latitude,
		Longitude:   r.Longitude,
		Images:      r.Images,
	}
	if err := content.Validate(); err != nil {
		return err
	}
	if !r.Status.Valid() {
		return Invalid("status", fmt.Sprintf("must be one of %v", Statuses))
	}
	if r.Status == StatusResolved && r.Resolution == nil {
		return Invalid("resolvedAt", "is required when status is resolved")
	}
	if r.Assignment != nil && r.Assignment.AuthorityID == "" {
		return Invalid("assignedTo", "is empty")
	}
	if strings.TrimSpace(r.CitizenID) == "" {
		return Invalid("citizenId", "is required")
	}
	if strings.TrimSpace(r.CitizenName) == "" {
		return Invalid("citizenName", "is required")
	}
	if r.CreatedAt.IsZero() {
		return Invalid("createdAt", "is required")
	}
	if r.Upvotes < 0 || r.Downvotes < 0 {
		return Invalid("upvotes", "vote counts must be non-negative")
	}
	return nil
}

func validatePlace(lat, lng *float64, images []string) error {
	if lat != nil && (*lat < -90 || *lat > 90) {
		return Invalid("latitude", "must be between -90 and 90")
	}
	if lng != nil && (*lng < -180 || *lng > 180) {
		return Invalid("longitude", "must be between -180 and 180")
	}
	if len(images) > MaxImages {
		return Invalid("images", fmt.Sprintf("at most %d images are allowed", MaxImages))
	}
	return nil
}
