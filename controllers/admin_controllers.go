package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/chopchop-backend/models"
	"github.com/yeremiapane/chopchop-backend/services"
	"github.com/yeremiapane/chopchop-backend/utils"
	"golang.org/x/crypto/bcrypt"
)

type AdminController struct {
	Store *services.OrderStore
}

func NewAdminController(store *services.OrderStore) *AdminController {
	return &AdminController{Store: store}
}

// CreateEatery registers a vendor and the restaurant ids it serves.
func (ac *AdminController) CreateEatery(c *gin.Context) {
	type request struct {
		ID            string   `json:"id"`
		Name          string   `json:"name" binding:"required"`
		Email         string   `json:"email" binding:"required,email"`
		Password      string   `json:"password" binding:"required,min=8"`
		RestaurantIDs []string `json:"restaurantIds"`
	}
	var req request
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	eatery := models.Eatery{
		ID:       strings.TrimSpace(req.ID),
		Name:     req.Name,
		Email:    req.Email,
		Password: string(hashed),
	}
	for _, id := range req.RestaurantIDs {
		if id = strings.TrimSpace(id); id != "" {
			eatery.Restaurants = append(eatery.Restaurants, models.EateryRestaurant{RestaurantID: id})
		}
	}

	if err := ac.Store.CreateEatery(c.Request.Context(), &eatery); err != nil {
		respondServiceError(c, err)
		return
	}

	utils.InfoLogger.Printf("Eatery registered: %s (%d restaurants)", eatery.Email, len(eatery.Restaurants))
	utils.RespondJSON(c, http.StatusCreated, "Eatery registered", eatery)
}

func (ac *AdminController) ListEateries(c *gin.Context) {
	eateries, err := ac.Store.ListEateries(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "List of eateries", eateries)
}
