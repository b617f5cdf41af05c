// Package notifier публикует уведомления пользователям через NATS.
package notifier

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Типы уведомлений, доставляемых пользователям.
const (
	TemplateOutbid          = "outbid"
	TemplateLateBid         = "lateBid"
	TemplateWinningBid      = "winningBid"
	TemplatePurchaseSuccess = "purchaseSuccess"
	TemplatePurchaseFail    = "purchaseFail"
)

const subjectPrefix = "alerts."

// Alert описывает уведомление для пользователя.
type Alert struct {
	UserID      string    `json:"userId"`
	Template    string    `json:"template"`
	ItemID      string    `json:"itemId,omitempty"`
	ItemName    string    `json:"itemName,omitempty"`
	CreatedDate time.Time `json:"createdDate"`
}

// Notifier отправляет уведомления в шину сообщений по принципу fire-and-forget.
type Notifier struct {
	conn *nats.Conn
}

// New подключается к NATS по указанному адресу.
func New(address string) (*Notifier, error) {
	conn, err := nats.Connect(address)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	return &Notifier{conn: conn}, nil
}

// Close закрывает соединение с NATS.
func (n *Notifier) Close() {
	if n == nil || n.conn == nil {
		return
	}
	n.conn.Close()
}

// Notify публикует уведомление для пользователя. Отсутствие подключения
// не является ошибкой: доставка уведомлений не должна блокировать обработку.
func (n *Notifier) Notify(userID, template, itemID, itemName string) error {
	if n == nil || n.conn == nil {
		return nil
	}

	alert := Alert{
		UserID:      userID,
		Template:    template,
		ItemID:      itemID,
		ItemName:    itemName,
		CreatedDate: time.Now(),
	}

	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	if err := n.conn.Publish(subjectPrefix+template, data); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}

	return nil
}
