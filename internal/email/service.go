package email

import (
	"fmt"
	"net/smtp"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// Service sends transactional email over SMTP. The circuit breaker keeps a
// flapping mail relay from blocking the notifier's consumer loop.
type Service struct {
	host string
	port string
	from string
	cb   *gobreaker.CircuitBreaker
}

func NewService(host, port, from string) *Service {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "smtp",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logrus.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).
				Warn("smtp breaker state change")
		},
	})
	return &Service{host: host, port: port, from: from, cb: cb}
}

// SendOrderConfirmation sends the order confirmation email.
func (s *Service) SendOrderConfirmation(to string, data ConfirmationData) error {
	subject := fmt.Sprintf("Order confirmation %s", data.OrderNumber)
	body := BuildOrderConfirmationBody(data)
	return s.send(to, subject, body)
}

// SendStatusUpdate tells the customer their order moved to a new status.
func (s *Service) SendStatusUpdate(to, orderNumber, status string) error {
	subject := fmt.Sprintf("Order %s update", orderNumber)
	body := BuildStatusUpdateBody(orderNumber, status)
	return s.send(to, subject, body)
}

func (s *Service) send(to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		s.from, to, subject, body)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	_, err := s.cb.Execute(func() (any, error) {
		return nil, smtp.SendMail(addr, nil, s.from, []string{to}, []byte(msg))
	})
	return err
}
