package backoffice

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/odyssey-erp/backoffice/internal/grid"
	"github.com/odyssey-erp/backoffice/internal/grid/column"
	"github.com/odyssey-erp/backoffice/internal/grid/source"
)

// Brand is a catalogue brand.
type Brand struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Country  string `json:"country"`
	Status   string `json:"status"`
	Products int    `json:"products"`
}

// Region groups stores.
type Region struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Store is the outlet a reservation was made at.
type Store struct {
	ID     int64   `json:"id"`
	Name   string  `json:"name"`
	Region *Region `json:"region,omitempty"`
}

// Reservation is a stock reservation placed by a user.
type Reservation struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Customer  string    `json:"customer"`
	Status    string    `json:"status"`
	Quantity  int       `json:"quantity"`
	Store     *Store    `json:"store,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	CreatedBy string    `json:"created_by"`
}

// User is a back-office account.
type User struct {
	ID        int64      `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	Role      string     `json:"role"`
	Active    bool       `json:"active"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

func formatTime(value any) string {
	switch t := value.(type) {
	case time.Time:
		if t.IsZero() {
			return ""
		}
		return t.Format("02 Jan 2006 15:04")
	case *time.Time:
		if t == nil {
			return "never"
		}
		return t.Format("02 Jan 2006 15:04")
	default:
		return "never"
	}
}

func yesNo(value any) string {
	if b, ok := value.(bool); ok && b {
		return "Yes"
	}
	return "No"
}

var statusOptions = []Option{
	{Value: "active", Label: "Active"},
	{Value: "held", Label: "Held"},
	{Value: "cancelled", Label: "Cancelled"},
}

// BrandResource lists brands.
func BrandResource(rows func(ctx context.Context) ([]Brand, error)) Resource[Brand] {
	return Resource[Brand]{
		Name:  "brands",
		Title: "Brands",
		Columns: []column.Def[Brand]{
			{Key: "id", Title: "ID", Sortable: true},
			{Key: "name", Title: "Name", Sortable: true, Searchable: true},
			{Key: "country", Title: "Country", Sortable: true, Searchable: true, Hidden: "country"},
			{Key: "status", Title: "Status"},
			{Key: "products", Title: "Products", Sortable: true, Hidden: "products"},
		},
		Filters: []FilterField{
			{Key: "status", Label: "Status", Options: []Option{{Value: "active", Label: "Active"}, {Value: "inactive", Label: "Inactive"}}},
			{Key: "country", Label: "Country"},
		},
		SearchMode: grid.SearchFuzzy,
		Rows:       rows,
	}
}

// ReservationResource lists reservations with compound filters on the
// creation date and author.
func ReservationResource() Resource[Reservation] {
	return Resource[Reservation]{
		Name:  "reservations",
		Title: "Reservations",
		Columns: []column.Def[Reservation]{
			{Key: "id", Title: "ID", Sortable: true},
			{Key: "code", Title: "Code", Sortable: true, Searchable: true},
			{Key: "customer", Title: "Customer", Sortable: true, Searchable: true},
			{Key: "status", Title: "Status", Sortable: true},
			{Key: "quantity", Title: "Qty", Sortable: true},
			{Key: "store", Title: "Store", DataPath: "store.name", Sortable: true, Hidden: "store"},
			{Key: "region", Title: "Region", DataPath: "store.region.name", Sortable: true, Hidden: "store"},
			{Key: "created_at", Title: "Created", Sortable: true, Render: func(v any, r Reservation) string { return formatTime(v) }},
			{Key: "created_by", Title: "Created by", Searchable: true, Hidden: "audit"},
		},
		Filters: []FilterField{
			{Key: "status", Label: "Status", Options: statusOptions},
			{Key: "filter_region", Label: "Region"},
		},
		Compound: []CompoundField{
			{Field: "created_at", Label: "Created", Input: "date"},
			{Field: "created_by", Label: "Created by"},
		},
		FilterPaths:   map[string]string{"filter_region": "store.region.name"},
		DefaultHidden: []string{"audit"},
	}
}

// UserResource lists users.
func UserResource() Resource[User] {
	return Resource[User]{
		Name:  "users",
		Title: "Users",
		Columns: []column.Def[User]{
			{Key: "id", Title: "ID", Sortable: true},
			{Key: "email", Title: "Email", Sortable: true, Searchable: true},
			{Key: "name", Title: "Name", Sortable: true, Searchable: true},
			{Key: "role", Title: "Role", Sortable: true},
			{Key: "active", Title: "Active", Render: func(v any, u User) string { return yesNo(v) }},
			{Key: "last_login", Title: "Last login", Sortable: true, Render: func(v any, u User) string { return formatTime(v) }},
		},
		Filters: []FilterField{
			{Key: "role", Label: "Role", Options: []Option{{Value: "admin", Label: "Admin"}, {Value: "staff", Label: "Staff"}}},
		},
		Compound: []CompoundField{{Field: "last_login", Label: "Last login", Input: "date"}},
	}
}

// RegisterDemo registers the brand, reservation and user pages. Brands are
// always served in memory; reservations and users come from backendURL
// when set and from fixtures otherwise.
func RegisterDemo(reg *Registry, backendURL string, httpClient *http.Client) error {
	if err := Register(reg, BrandResource(func(context.Context) ([]Brand, error) { return DemoBrands(), nil })); err != nil {
		return err
	}

	reservations := ReservationResource()
	users := UserResource()
	if backendURL != "" {
		reservations.Source = source.NewClient[Reservation](backendURL, reservations.Name, httpClient)
		users.Source = source.NewClient[User](backendURL, users.Name, httpClient)
	} else {
		reservations.Rows = func(context.Context) ([]Reservation, error) { return DemoReservations(), nil }
		users.Rows = func(context.Context) ([]User, error) { return DemoUsers(), nil }
	}
	if err := Register(reg, reservations); err != nil {
		return err
	}
	return Register(reg, users)
}

// DemoBrands returns a fixed brand catalogue.
func DemoBrands() []Brand {
	names := []string{"Acme", "Borealis", "Cobalt", "Dunmore", "Élan", "Fjord", "Granite", "Halcyon", "Ironwood", "Juniper", "Kestrel", "Lumen"}
	countries := []string{"ID", "SG", "MY", "TH"}
	out := make([]Brand, 0, len(names))
	for i, name := range names {
		status := "active"
		if i%5 == 4 {
			status = "inactive"
		}
		out = append(out, Brand{
			ID:       int64(i + 1),
			Name:     name,
			Country:  countries[i%len(countries)],
			Status:   status,
			Products: (i*7)%23 + 1,
		})
	}
	return out
}

// DemoReservations returns deterministic reservations. Every seventh one
// has no store, so region paths resolve to nothing.
func DemoReservations() []Reservation {
	regions := []*Region{{Code: "JKT", Name: "Jakarta"}, {Code: "BDG", Name: "Bandung"}, nil}
	statuses := []string{"active", "held", "cancelled"}
	authors := []string{"admin", "rina", "budi", "admin.ops"}
	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	out := make([]Reservation, 0, 60)
	for i := range 60 {
		r := Reservation{
			ID:        int64(i + 1),
			Code:      fmt.Sprintf("RSV-%04d", i+1),
			Customer:  fmt.Sprintf("Customer %02d", i%17+1),
			Status:    statuses[i%len(statuses)],
			Quantity:  (i*13)%40 + 1,
			CreatedAt: base.Add(time.Duration(i) * 26 * time.Hour),
			CreatedBy: authors[i%len(authors)],
		}
		if i%7 != 6 {
			r.Store = &Store{ID: int64(i%5 + 1), Name: fmt.Sprintf("Store %d", i%5+1), Region: regions[i%len(regions)]}
		}
		out = append(out, r)
	}
	return out
}

// DemoUsers returns deterministic users; some never logged in.
func DemoUsers() []User {
	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	out := make([]User, 0, 24)
	for i := range 24 {
		u := User{
			ID:     int64(i + 1),
			Email:  fmt.Sprintf("user%02d@odyssey.test", i+1),
			Name:   fmt.Sprintf("User %02d", i+1),
			Role:   "staff",
			Active: i%6 != 5,
		}
		if i%4 == 0 {
			u.Role = "admin"
		}
		if i%3 != 2 {
			at := base.Add(time.Duration(i) * 36 * time.Hour)
			u.LastLogin = &at
		}
		out = append(out, u)
	}
	return out
}
