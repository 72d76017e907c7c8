package controllers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/chopchop-backend/services"
	"github.com/yeremiapane/chopchop-backend/utils"
)

// RestaurantDirectory is the read side of the vendor platform.
type RestaurantDirectory interface {
	GetRestaurants(ctx context.Context, search, cuisine string, limit int) ([]services.Restaurant, error)
	GetRestaurant(ctx context.Context, id string) (*services.Restaurant, error)
	GetMenuItems(ctx context.Context, restaurantID string) ([]services.MenuItem, error)
}

type RestaurantController struct {
	Directory RestaurantDirectory
}

func NewRestaurantController(directory RestaurantDirectory) *RestaurantController {
	return &RestaurantController{Directory: directory}
}

func (rc *RestaurantController) ListRestaurants(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	list, err := rc.Directory.GetRestaurants(c.Request.Context(), c.Query("search"), c.Query("cuisine"), limit)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "List of restaurants", list)
}

func (rc *RestaurantController) GetRestaurant(c *gin.Context) {
	restaurant, err := rc.Directory.GetRestaurant(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Restaurant detail", restaurant)
}

func (rc *RestaurantController) GetMenu(c *gin.Context) {
	items, err := rc.Directory.GetMenuItems(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Menu items", items)
}
