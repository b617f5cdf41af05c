// Package model содержит доменные сущности аукционного сервиса.
package model

import "time"

// SaleType определяет способ продажи лота.
type SaleType string

const (
	SaleTypeDrop     SaleType = "Drop"
	SaleTypeStandard SaleType = "Standard"
)

// ItemStatus описывает статус лота.
type ItemStatus string

const (
	ItemStatusSetup     ItemStatus = "Setup"
	ItemStatusAvailable ItemStatus = "Available"
	ItemStatusLive      ItemStatus = "Live"
	ItemStatusDropping  ItemStatus = "Dropping"
	ItemStatusRequested ItemStatus = "Requested"
	ItemStatusOnHold    ItemStatus = "On Hold"
	ItemStatusSold      ItemStatus = "Sold"
	ItemStatusClosed    ItemStatus = "Closed"
)

// Bid описывает принятую ставку на лот.
type Bid struct {
	ActionID string    `json:"actionId"`
	UserID   string    `json:"userId"`
	Nickname string    `json:"nickname"`
	Amount   int64     `json:"amount"`
	Date     time.Time `json:"date"`
}

// PurchaseRequest описывает запрос на покупку лота по фиксированной цене.
type PurchaseRequest struct {
	ActionID string    `json:"actionId"`
	UserID   string    `json:"userId"`
	Nickname string    `json:"nickname"`
	Amount   int64     `json:"amount"`
	Date     time.Time `json:"date"`
}

// Item представляет лот аукциона или дропа.
//
// BuyPrice равен нулю, пока не принята ни одна ставка или покупка;
// после первой ставки он только растёт. CurrBid всегда содержит
// последнего принятого лидера, PrevBids — историю вытесненных ставок
// в порядке добавления.
type Item struct {
	ID                   string
	Name                 string
	SaleType             SaleType
	Status               ItemStatus
	StartPrice           int64
	BuyPrice             int64
	BuyerID              string
	BuyDate              *time.Time
	CurrBid              *Bid
	PrevBids             []Bid
	BidderIDs            []string
	NumberOfBids         int
	DropExpireDate       *time.Time
	PurchaseReqs         []PurchaseRequest
	NumberOfPurchaseReqs int
	DropID               string
	Version              int64
}

// IsDrop сообщает, продаётся ли лот в составе дропа.
func (i *Item) IsDrop() bool { return i.SaleType == SaleTypeDrop }

// HasBidder сообщает, делал ли пользователь ставки на лот.
func (i *Item) HasBidder(userID string) bool {
	for _, id := range i.BidderIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// ActionType определяет тип действия.
type ActionType string

const (
	ActionTypeBid             ActionType = "Bid"
	ActionTypePurchaseRequest ActionType = "Purchase Request"
	ActionTypeAcceptRequest   ActionType = "Accept Purchase Request"
	ActionTypeInvoicePayment  ActionType = "Invoice Payment"
	ActionTypeVerifyEmail     ActionType = "Verify Email"
	ActionTypeConfirmEmail    ActionType = "Confirm Email"
)

// ActionStatus описывает статус обработки действия. Processed — терминальный.
type ActionStatus string

const (
	ActionStatusCreated   ActionStatus = "Created"
	ActionStatusQueued    ActionStatus = "Queued"
	ActionStatusProcessed ActionStatus = "Processed"
)

// ActionResult описывает итог обработки действия.
type ActionResult string

const (
	ActionResultHighBid          ActionResult = "High Bid"
	ActionResultIncreased        ActionResult = "Increased"
	ActionResultOutbid           ActionResult = "Outbid"
	ActionResultLateBid          ActionResult = "Late Bid"
	ActionResultPurchased        ActionResult = "Purchased"
	ActionResultAlreadySold      ActionResult = "Already Sold"
	ActionResultWinningBid       ActionResult = "Winning Bid"
	ActionResultVerifySent       ActionResult = "Verify Sent"
	ActionResultEmailVerified    ActionResult = "Email Verified"
	ActionResultEmailNotVerified ActionResult = "Email Not Verified"
	ActionResultPaidFull         ActionResult = "Paid Full"
	// ActionResultInvalid присваивается действиям, не прошедшим валидацию.
	ActionResultInvalid ActionResult = "Invalid"
)

// Action представляет запрос на изменение состояния лота и его итог.
type Action struct {
	ID            string
	Type          ActionType
	Status        ActionStatus
	Result        ActionResult
	ItemID        string
	ItemName      string
	UserID        string
	Nickname      string
	Amount        int64
	MaxAmount     int64
	RefActionID   string
	CreatedDate   time.Time
	ProcessedDate *time.Time
}

// IsWinningBid сообщает, является ли действие синтетической записью о выигрыше.
func (a *Action) IsWinningBid() bool { return a.Result == ActionResultWinningBid }

// Timer представляет активный отсчёт до закрытия ставок или старта дропа.
// Заполнено ровно одно из полей ItemID и DropID.
type Timer struct {
	ID               string
	ItemID           string
	DropID           string
	ExpireDate       time.Time
	RemainingSeconds int
}

// ItemTimerID возвращает идентификатор таймера лота.
func ItemTimerID(itemID string) string { return "i-" + itemID }

// DropTimerID возвращает идентификатор таймера дропа.
func DropTimerID(dropID string) string { return "d-" + dropID }

// DropStatus описывает статус дропа.
type DropStatus string

const (
	DropStatusScheduling     DropStatus = "Scheduling"
	DropStatusScheduled      DropStatus = "Scheduled"
	DropStatusStartCountdown DropStatus = "Start Countdown"
	DropStatusCountdown      DropStatus = "Countdown"
	DropStatusLive           DropStatus = "Live"
)

// Drop представляет партию лотов, выпускаемую одновременно.
// TaskID должен совпадать с идентификатором из callback планировщика,
// иначе срабатывание считается устаревшим и игнорируется.
type Drop struct {
	ID        string
	Name      string
	Status    DropStatus
	StartDate time.Time
	TaskID    string
	Version   int64
}
