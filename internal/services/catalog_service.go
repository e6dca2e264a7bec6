package services

import (
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/matchsim/backend/internal/models"
)

// CatalogService owns the player table: the write-once seeded catalog plus
// admin-authored custom entries.
type CatalogService struct {
	db        *sql.DB
	validator *ValidationHelper
}

func NewCatalogService(db *sql.DB) *CatalogService {
	return &CatalogService{db: db, validator: NewValidationHelper()}
}

// Column names expected in the catalog CSV header.
var csvColumns = []string{"sofifa_id", "short_name", "player_positions", "club_name",
	"age", "nationality_name", "overall", "potential", "value_eur", "wage_eur"}

// SeedFromCSV loads catalog players from the flat file. Idempotent: rows are
// keyed on the external player id, so re-running the seed inserts nothing new
// for ids already present.
func (s *CatalogService) SeedFromCSV(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open catalog file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("read catalog header: %w", err)
	}
	cols := map[string]int{}
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"sofifa_id", "short_name"} {
		if _, ok := cols[required]; !ok {
			return 0, fmt.Errorf("catalog file missing column %q", required)
		}
	}

	inserted := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("[CATALOG] Skipping malformed row: %v", err)
			continue
		}

		field := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		externalID := field("sofifa_id")
		name := field("short_name")
		if externalID == "" || name == "" {
			continue
		}

		result, err := s.db.Exec(`
			INSERT INTO players (external_id, name, positions, club_name, age, nationality, rating, potential, value, wage, is_custom, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, FALSE, NOW())
			ON CONFLICT (external_id) DO NOTHING`,
			externalID, name, field("player_positions"), field("club_name"),
			atoiOrZero(field("age")), field("nationality_name"),
			atoiOrZero(field("overall")), atoiOrZero(field("potential")),
			eurosToCents(field("value_eur")), eurosToCents(field("wage_eur")))
		if err != nil {
			return inserted, fmt.Errorf("%w: seed catalog: %v", models.ErrStorageUnavailable, err)
		}
		if n, _ := result.RowsAffected(); n > 0 {
			inserted++
		}
	}

	log.Printf("[CATALOG] Seed complete: %d new players from %s", inserted, path)
	return inserted, nil
}

func atoiOrZero(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}

func eurosToCents(s string) int64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int64(v * 100)
}

// Get returns a player by external id.
func (s *CatalogService) Get(externalID string) (*models.Player, error) {
	var p models.Player
	err := s.db.QueryRow(`
		SELECT id, external_id, name, positions, club_name, age, nationality, rating, potential, value, wage, is_custom, created_at
		FROM players WHERE external_id = $1`,
		externalID,
	).Scan(&p.ID, &p.ExternalID, &p.Name, &p.Positions, &p.ClubName, &p.Age, &p.Nationality,
		&p.Rating, &p.Potential, &p.Value, &p.Wage, &p.IsCustom, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SearchPlayers searches the catalog
// @Summary Search players
// @Description Search players by name, position, nationality and minimum rating
// @Tags players
// @Produce json
// @Security BearerAuth
// @Param name query string false "Name fragment"
// @Param position query string false "Position code"
// @Param nationality query string false "Nationality"
// @Param minRating query int false "Minimum overall rating"
// @Param limit query int false "Max results (default 50, max 200)"
// @Success 200 {object} object{players=[]models.Player,count=int}
// @Router /players [get]
func (s *CatalogService) SearchPlayers(w http.ResponseWriter, r *http.Request) {
	var conditions []string
	var args []interface{}
	argIndex := 1

	if name := r.URL.Query().Get("name"); name != "" {
		conditions = append(conditions, fmt.Sprintf("name ILIKE $%d", argIndex))
		args = append(args, "%"+name+"%")
		argIndex++
	}
	if pos := r.URL.Query().Get("position"); pos != "" {
		conditions = append(conditions, fmt.Sprintf("positions ILIKE $%d", argIndex))
		args = append(args, "%"+pos+"%")
		argIndex++
	}
	if nat := r.URL.Query().Get("nationality"); nat != "" {
		conditions = append(conditions, fmt.Sprintf("nationality ILIKE $%d", argIndex))
		args = append(args, nat)
		argIndex++
	}
	if minRating := r.URL.Query().Get("minRating"); minRating != "" {
		rating, err := strconv.Atoi(minRating)
		if err != nil {
			SendErrorResponse(w, "Invalid minRating", http.StatusBadRequest, nil)
			return
		}
		conditions = append(conditions, fmt.Sprintf("rating >= $%d", argIndex))
		args = append(args, rating)
		argIndex++
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil && l > 0 && l <= 200 {
			limit = l
		}
	}

	query := `
		SELECT id, external_id, name, positions, club_name, age, nationality, rating, potential, value, wage, is_custom, created_at
		FROM players`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY rating DESC, name ASC LIMIT $%d", argIndex)
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		log.Printf("[CATALOG] Search failed: %v", err)
		SendErrorResponse(w, "Failed to search players", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	players := []models.Player{}
	for rows.Next() {
		var p models.Player
		if err := rows.Scan(&p.ID, &p.ExternalID, &p.Name, &p.Positions, &p.ClubName, &p.Age, &p.Nationality,
			&p.Rating, &p.Potential, &p.Value, &p.Wage, &p.IsCustom, &p.CreatedAt); err != nil {
			SendErrorResponse(w, "Failed to search players", http.StatusInternalServerError, nil)
			return
		}
		players = append(players, p)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"players": players, "count": len(players)})
}

// GetPlayer fetches a player
// @Summary Get player
// @Tags players
// @Produce json
// @Security BearerAuth
// @Param playerId path string true "External player ID"
// @Success 200 {object} models.Player
// @Failure 404 {object} services.ErrorResponse
// @Router /players/{playerId} [get]
func (s *CatalogService) GetPlayer(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerId")

	player, err := s.Get(playerID)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Player not found", http.StatusNotFound, nil)
		} else {
			SendErrorResponse(w, "Failed to fetch player", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(player)
}

type playerRequest struct {
	PlayerID    string `json:"playerId" validate:"required,max=32"`
	Name        string `json:"name" validate:"required,max=100"`
	Positions   string `json:"positions" validate:"max=50"`
	ClubName    string `json:"clubName" validate:"max=100"`
	Age         int    `json:"age" validate:"gte=0,lte=60"`
	Nationality string `json:"nationality" validate:"max=60"`
	Rating      int    `json:"rating" validate:"gte=0,lte=99"`
	Potential   int    `json:"potential" validate:"gte=0,lte=99"`
	Value       int64  `json:"value" validate:"gte=0"`
	Wage        int64  `json:"wage" validate:"gte=0"`
}

// CreateCustomPlayer adds an admin-authored player
// @Summary Create custom player
// @Description Add a custom player entry outside the seeded catalog
// @Tags players
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body playerRequest true "Player details"
// @Success 201 {object} models.Player
// @Failure 409 {object} services.ErrorResponse
// @Router /admin/players [post]
func (s *CatalogService) CreateCustomPlayer(w http.ResponseWriter, r *http.Request) {
	var req playerRequest

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	player := models.Player{
		ExternalID:  req.PlayerID,
		Name:        req.Name,
		Positions:   req.Positions,
		ClubName:    req.ClubName,
		Age:         req.Age,
		Nationality: req.Nationality,
		Rating:      req.Rating,
		Potential:   req.Potential,
		Value:       req.Value,
		Wage:        req.Wage,
		IsCustom:    true,
	}
	err := s.db.QueryRow(`
		INSERT INTO players (external_id, name, positions, club_name, age, nationality, rating, potential, value, wage, is_custom, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, TRUE, NOW())
		RETURNING id, created_at`,
		req.PlayerID, req.Name, req.Positions, req.ClubName, req.Age, req.Nationality,
		req.Rating, req.Potential, req.Value, req.Wage,
	).Scan(&player.ID, &player.CreatedAt)
	if err != nil {
		log.Printf("[CATALOG] Custom player creation failed: %v", err)
		SendErrorResponse(w, "Player ID already exists", http.StatusConflict, nil)
		return
	}

	log.Printf("[CATALOG] Custom player %s created", req.PlayerID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(player)
}

// UpdateCustomPlayer edits a custom player
// @Summary Update custom player
// @Description Edit a custom player; seeded catalog entries are write-once and cannot be edited
// @Tags players
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param playerId path string true "External player ID"
// @Param request body playerRequest true "Player details"
// @Success 200 {object} models.Player
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /admin/players/{playerId} [put]
func (s *CatalogService) UpdateCustomPlayer(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerId")

	var req playerRequest
	req.PlayerID = playerID

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	req.PlayerID = playerID
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	// is_custom predicate keeps seeded rows write-once
	result, err := s.db.Exec(`
		UPDATE players
		SET name = $1, positions = $2, club_name = $3, age = $4, nationality = $5,
		    rating = $6, potential = $7, value = $8, wage = $9
		WHERE external_id = $10 AND is_custom = TRUE`,
		req.Name, req.Positions, req.ClubName, req.Age, req.Nationality,
		req.Rating, req.Potential, req.Value, req.Wage, playerID)
	if err != nil {
		log.Printf("[CATALOG] Custom player update failed: %v", err)
		SendErrorResponse(w, "Failed to update player", http.StatusInternalServerError, nil)
		return
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		if _, err := s.Get(playerID); err == sql.ErrNoRows {
			SendErrorResponse(w, "Player not found", http.StatusNotFound, nil)
		} else {
			SendErrorResponse(w, "Catalog players cannot be edited", http.StatusForbidden, nil)
		}
		return
	}

	player, err := s.Get(playerID)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch player", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(player)
}
