package models

// Customer is embedded in every order document.
type Customer struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// Rider is filled in once the vendor assigns a delivery rider.
type Rider struct {
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	Vehicle     string `json:"vehicle"`
	PlateNumber string `json:"plateNumber"`
}

// IsZero reports whether no rider has been assigned.
func (r Rider) IsZero() bool {
	return r == Rider{}
}
