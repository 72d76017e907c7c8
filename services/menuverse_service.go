package services

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/machinebox/graphql"
	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/chopchop-backend/utils"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// MenuverseConfig holds the upstream vendor API settings.
type MenuverseConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// MenuverseService talks to the vendor platform's GraphQL API.
type MenuverseService struct {
	config *MenuverseConfig
	client *graphql.Client
}

func NewMenuverseService(cfg MenuverseConfig) *MenuverseService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	httpClient := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	client := graphql.NewClient(cfg.URL, graphql.WithHTTPClient(httpClient))
	client.Log = func(s string) {
		utils.InfoLogger.WithField("upstream", "menuverse").Trace(s)
	}
	return &MenuverseService{config: &cfg, client: client}
}

// UpstreamRestaurant is a restaurant reference inside an upstream order.
type UpstreamRestaurant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// UpstreamOrder is the vendor platform's view of an order.
type UpstreamOrder struct {
	ID         string             `json:"id"`
	Status     string             `json:"status"`
	Restaurant UpstreamRestaurant `json:"restaurant"`
	CreatedAt  string             `json:"createdAt"`
	UpdatedAt  string             `json:"updatedAt"`
}

type Restaurant struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Address     string   `json:"address"`
	Cuisine     []string `json:"cuisine"`
	Rating      float64  `json:"rating"`
	ImageURL    string   `json:"imageUrl"`
	IsOpen      bool     `json:"isOpen"`
}

type MenuItem struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Category    string  `json:"category"`
	ImageURL    string  `json:"imageUrl"`
	Available   bool    `json:"available"`
}

const (
	queryOrder = `
query GetOrder($id: ID!) {
  order(id: $id) {
    id
    status
    restaurant { id name }
    createdAt
    updatedAt
  }
}`

	queryRestaurants = `
query GetRestaurants($search: String, $cuisine: String, $limit: Int) {
  restaurants(search: $search, cuisine: $cuisine, limit: $limit) {
    id
    name
    description
    address
    cuisine
    rating
    imageUrl
    isOpen
  }
}`

	queryRestaurant = `
query GetRestaurant($id: ID!) {
  restaurant(id: $id) {
    id
    name
    description
    address
    cuisine
    rating
    imageUrl
    isOpen
  }
}`

	queryMenuItems = `
query GetMenuItems($restaurantId: ID!) {
  menuItems(restaurantId: $restaurantId) {
    id
    name
    description
    price
    category
    imageUrl
    available
  }
}`

	mutationUpdateOrderStatus = `
mutation UpdateOrderStatus($id: ID!, $status: OrderStatus!) {
  updateOrderStatus(id: $id, status: $status) {
    id
    status
    restaurant { id name }
    createdAt
    updatedAt
  }
}`
)

func (s *MenuverseService) newRequest(query string) *graphql.Request {
	req := graphql.NewRequest(query)
	if s.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	}
	return req
}

func (s *MenuverseService) run(ctx context.Context, op string, req *graphql.Request, resp interface{}) error {
	if strings.TrimSpace(s.config.URL) == "" {
		return newError(CodeUpstream, "menuverse API URL is not configured", nil)
	}
	if err := s.client.Run(ctx, req, resp); err != nil {
		utils.ErrorLogger.WithFields(logrus.Fields{
			"upstream":  "menuverse",
			"operation": op,
		}).WithError(err).Error("Upstream request failed")
		return newError(CodeUpstream, op+" failed", err)
	}
	return nil
}

// FetchOrder returns the upstream order, or ErrOrderNotFound when the API
// answers with a null order.
func (s *MenuverseService) FetchOrder(ctx context.Context, orderID string) (*UpstreamOrder, error) {
	req := s.newRequest(queryOrder)
	req.Var("id", orderID)

	var resp struct {
		Order *UpstreamOrder `json:"order"`
	}
	if err := s.run(ctx, "GetOrder", req, &resp); err != nil {
		return nil, err
	}
	if resp.Order == nil {
		return nil, ErrOrderNotFound
	}
	return resp.Order, nil
}

func (s *MenuverseService) GetRestaurants(ctx context.Context, search, cuisine string, limit int) ([]Restaurant, error) {
	req := s.newRequest(queryRestaurants)
	if search != "" {
		req.Var("search", search)
	}
	if cuisine != "" {
		req.Var("cuisine", cuisine)
	}
	if limit > 0 {
		req.Var("limit", limit)
	}

	var resp struct {
		Restaurants []Restaurant `json:"restaurants"`
	}
	if err := s.run(ctx, "GetRestaurants", req, &resp); err != nil {
		return nil, err
	}
	if resp.Restaurants == nil {
		return []Restaurant{}, nil
	}
	return resp.Restaurants, nil
}

func (s *MenuverseService) GetRestaurant(ctx context.Context, id string) (*Restaurant, error) {
	req := s.newRequest(queryRestaurant)
	req.Var("id", id)

	var resp struct {
		Restaurant *Restaurant `json:"restaurant"`
	}
	if err := s.run(ctx, "GetRestaurant", req, &resp); err != nil {
		return nil, err
	}
	if resp.Restaurant == nil {
		return nil, newError(CodeVendorNotFound, "restaurant "+id+" not found", nil)
	}
	return resp.Restaurant, nil
}

// GetMenuItems returns the menu sorted by category, then name.
func (s *MenuverseService) GetMenuItems(ctx context.Context, restaurantID string) ([]MenuItem, error) {
	req := s.newRequest(queryMenuItems)
	req.Var("restaurantId", restaurantID)

	var resp struct {
		MenuItems []MenuItem `json:"menuItems"`
	}
	if err := s.run(ctx, "GetMenuItems", req, &resp); err != nil {
		return nil, err
	}
	items := resp.MenuItems
	if items == nil {
		items = []MenuItem{}
	}
	sortMenuItems(items)
	return items, nil
}

// UpdateOrderStatus pushes a vendor status to the upstream platform.
func (s *MenuverseService) UpdateOrderStatus(ctx context.Context, orderID, vendorStatus string) (*UpstreamOrder, error) {
	req := s.newRequest(mutationUpdateOrderStatus)
	req.Var("id", orderID)
	req.Var("status", vendorStatus)

	var resp struct {
		UpdateOrderStatus *UpstreamOrder `json:"updateOrderStatus"`
	}
	if err := s.run(ctx, "UpdateOrderStatus", req, &resp); err != nil {
		return nil, err
	}
	if resp.UpdateOrderStatus == nil {
		return nil, ErrOrderNotFound
	}
	return resp.UpdateOrderStatus, nil
}

func sortMenuItems(items []MenuItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Category != b.Category {
			return strings.ToLower(a.Category) < strings.ToLower(b.Category)
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})
}
