package storage

import "time"

// Stamp records who created and last changed a row, and when.
type Stamp struct {
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
	CreatedByID uint      `gorm:"not null" json:"created_by_id"`
	UpdatedByID uint      `gorm:"not null" json:"updated_by_id"`
}

// Company is a researched organisation.
type Company struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"size:255;not null;index" json:"name"`
	Description string `gorm:"type:text" json:"description,omitempty"`
	Website     string `gorm:"size:512" json:"website,omitempty"`
	Industry    string `gorm:"size:255" json:"industry,omitempty"`
	Stamp
}

func (Company) TableName() string { return "companies" }

// Person is a researched individual, optionally linked to a company.
type Person struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"size:255;not null;index" json:"name"`
	CompanyID   *uint  `gorm:"index" json:"company_id,omitempty"`
	Title       string `gorm:"size:255" json:"title,omitempty"`
	Description string `gorm:"type:text" json:"description,omitempty"`
	Stamp
}

func (Person) TableName() string { return "persons" }

func (c *Company) stamp() *Stamp { return &c.Stamp }
func (c *Company) key() uint { return c.ID }
func (c *Company) name() string { return c.Name }
func (c *Company) columns() map[string]any {
	return map[string]any{
		"name":        c.Name,
		"description": c.Description,
		"website":     c.Website,
		"industry":    c.Industry,
	}
}

func (p *Person) stamp() *Stamp { return &p.Stamp }
func (p *Person) key() uint { return p.ID }
func (p *Person) name() string { return p.Name }
func (p *Person) columns() map[string]any {
	return map[string]any{
		"name":        p.Name,
		"company_id":  p.CompanyID,
		"title":       p.Title,
		"description": p.Description,
	}
}
