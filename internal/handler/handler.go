// Package handler содержит HTTP-обработчики API аукционного сервиса.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/auction-system/internal/model"
	"github.com/mmeshcher/auction-system/internal/repository"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	CreateItem(ctx context.Context, it *model.Item) error
	GetItem(ctx context.Context, id string) (*model.Item, error)
	CreateAction(ctx context.Context, a *model.Action) error
	GetAction(ctx context.Context, id string) (*model.Action, error)
	StartDropCountdown(ctx context.Context, dropID, taskID string) error
	Ping(ctx context.Context) error
}

// Handler реализует HTTP-обработчики API аукционного сервиса.
type Handler struct {
	service Service
	logger  *zap.Logger
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: s,
		logger:  logger,
	}
}

type actionRequest struct {
	Type        string `json:"type"`
	ItemID      string `json:"itemId"`
	UserID      string `json:"userId"`
	Nickname    string `json:"nickname"`
	Amount      int64  `json:"amount"`
	RefActionID string `json:"refActionId"`
}

type createdResponse struct {
	ID string `json:"id"`
}

// CreateAction принимает новое действие. Действие обрабатывается асинхронно:
// клиент наблюдает итог через статус и результат действия.
func (h *Handler) CreateAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Type == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	action := &model.Action{
		ID:          uuid.NewString(),
		Type:        model.ActionType(req.Type),
		Status:      model.ActionStatusCreated,
		ItemID:      req.ItemID,
		UserID:      req.UserID,
		Nickname:    req.Nickname,
		Amount:      req.Amount,
		RefActionID: req.RefActionID,
		CreatedDate: time.Now(),
	}

	if err := h.service.CreateAction(r.Context(), action); err != nil {
		h.logger.Error("create action error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(createdResponse{ID: action.ID}); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

type actionResponse struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	Status        string `json:"status"`
	Result        string `json:"result,omitempty"`
	ItemID        string `json:"itemId,omitempty"`
	UserID        string `json:"userId,omitempty"`
	Amount        int64  `json:"amount,omitempty"`
	CreatedDate   string `json:"createdDate"`
	ProcessedDate string `json:"processedDate,omitempty"`
}

// GetAction возвращает статус и результат действия.
func (h *Handler) GetAction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	action, err := h.service.GetAction(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrActionNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get action error", zap.Error(err), zap.String("actionID", id))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := actionResponse{
		ID:          action.ID,
		Type:        string(action.Type),
		Status:      string(action.Status),
		Result:      string(action.Result),
		ItemID:      action.ItemID,
		UserID:      action.UserID,
		Amount:      action.Amount,
		CreatedDate: action.CreatedDate.Format(time.RFC3339),
	}
	if action.ProcessedDate != nil {
		resp.ProcessedDate = action.ProcessedDate.Format(time.RFC3339)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

type itemRequest struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	SaleType   string `json:"saleType"`
	StartPrice int64  `json:"startPrice"`
	DropID     string `json:"dropId"`
}

// CreateItem сохраняет новый лот в статусе Setup.
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Name == "" || req.StartPrice <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	saleType := model.SaleType(req.SaleType)
	if saleType == "" {
		saleType = model.SaleTypeStandard
	}

	item := &model.Item{
		ID:         req.ID,
		Name:       req.Name,
		SaleType:   saleType,
		Status:     model.ItemStatusSetup,
		StartPrice: req.StartPrice,
		DropID:     req.DropID,
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}

	if err := h.service.CreateItem(r.Context(), item); err != nil {
		h.logger.Error("create item error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(createdResponse{ID: item.ID}); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

type itemResponse struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	SaleType       string     `json:"saleType"`
	Status         string     `json:"status"`
	StartPrice     int64      `json:"startPrice"`
	BuyPrice       int64      `json:"buyPrice"`
	BuyerID        string     `json:"buyerId,omitempty"`
	CurrBid        *model.Bid `json:"currBid,omitempty"`
	NumberOfBids   int        `json:"numberOfBids"`
	DropExpireDate string     `json:"dropExpireDate,omitempty"`
}

// GetItem возвращает текущее состояние лота.
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	item, err := h.service.GetItem(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrItemNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get item error", zap.Error(err), zap.String("itemID", id))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := itemResponse{
		ID:           item.ID,
		Name:         item.Name,
		SaleType:     string(item.SaleType),
		Status:       string(item.Status),
		StartPrice:   item.StartPrice,
		BuyPrice:     item.BuyPrice,
		BuyerID:      item.BuyerID,
		CurrBid:      item.CurrBid,
		NumberOfBids: item.NumberOfBids,
	}
	if item.DropExpireDate != nil {
		resp.DropExpireDate = item.DropExpireDate.Format(time.RFC3339)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

type countdownRequest struct {
	DropID string `json:"dropId"`
	TaskID string `json:"taskId"`
}

// StartDropCountdown обрабатывает callback планировщика, запускающий
// обратный отсчёт дропа. Устаревшие доставки завершаются успешно без
// изменения состояния.
func (h *Handler) StartDropCountdown(w http.ResponseWriter, r *http.Request) {
	var req countdownRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.DropID == "" || req.TaskID == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.StartDropCountdown(r.Context(), req.DropID, req.TaskID); err != nil {
		if errors.Is(err, repository.ErrDropNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("start drop countdown error", zap.Error(err), zap.String("dropID", req.DropID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// Ping проверяет доступность хранилища данных.
func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		h.logger.Error("ping database error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
