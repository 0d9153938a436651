package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rationly/rationbot/internal/content"
)

type recipeRequest struct {
	Calories  int              `json:"calories"`
	Day       int              `json:"day"`
	Meal      content.MealType `json:"meal_type"`
	Content   string           `json:"content"`
	UpdatedBy string           `json:"updated_by"`
}

func (req *recipeRequest) validate() error {
	if req.Calories <= 0 {
		return fmt.Errorf("calories must be positive")
	}
	if req.Day <= 0 {
		return fmt.Errorf("day must be positive")
	}
	if !req.Meal.Valid() {
		return fmt.Errorf("meal_type must be breakfast, lunch or dinner")
	}
	if req.Content == "" {
		return fmt.Errorf("content is required")
	}
	return nil
}

// SaveRecipe creates or overwrites one ration cell.
func (h *Handlers) SaveRecipe(w http.ResponseWriter, r *http.Request) {
	var req recipeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := req.validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := h.content.Save(r.Context(), content.Recipe{
		Calories:  req.Calories,
		Day:       req.Day,
		Meal:      req.Meal,
		Content:   req.Content,
		UpdatedBy: req.UpdatedBy,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to save recipe")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

// DeleteRecipe removes one ration cell.
func (h *Handlers) DeleteRecipe(w http.ResponseWriter, r *http.Request) {
	calories, err := strconv.Atoi(chi.URLParam(r, "calories"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid calories")
		return
	}
	day, err := strconv.Atoi(chi.URLParam(r, "day"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid day")
		return
	}
	meal := content.MealType(chi.URLParam(r, "meal"))
	if !meal.Valid() {
		respondError(w, http.StatusBadRequest, "invalid meal type")
		return
	}

	deleted, err := h.content.Delete(r.Context(), calories, day, meal)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete recipe")
		return
	}
	if !deleted {
		respondError(w, http.StatusNotFound, "recipe not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
