package service

import (
	"fmt"

	"github.com/laundryos/auth-api/internal/models"
	"github.com/laundryos/auth-api/pkg/mailer"
)

// Notifier delivers authentication messages to a principal. All calls are
// fire-and-forget relative to the surrounding operation: callers log a
// returned error and move on, so transport flakiness never alters an
// authentication result.
type Notifier interface {
	SendOTP(user *models.User, code *models.OneTimeCode) error
	SendLoginAlert(user *models.User, login *models.DeviceLogin) error
}

// MailNotifier sends notifications over SMTP.
type MailNotifier struct {
	sender mailer.Sender
}

// NewMailNotifier constructs a MailNotifier.
func NewMailNotifier(sender mailer.Sender) *MailNotifier {
	return &MailNotifier{sender: sender}
}

// SendOTP mails the one-time code to the principal's address.
func (n *MailNotifier) SendOTP(user *models.User, code *models.OneTimeCode) error {
	if user.Email == "" {
		return nil
	}
	body := fmt.Sprintf(
		"Hi %s,\n\nYour verification code is %s. It expires at %s.\n\nIf you did not request this code, you can ignore this message.\n",
		user.FullName, code.Code, code.ExpiresAt.Format("15:04 MST"),
	)
	return n.sender.Send(user.Email, "Your verification code", body)
}

// SendLoginAlert mails a new-login notification with connection metadata.
func (n *MailNotifier) SendLoginAlert(user *models.User, login *models.DeviceLogin) error {
	if user.Email == "" {
		return nil
	}
	body := fmt.Sprintf(
		"Hi %s,\n\nA new login to your account was recorded at %s.\n\nIP: %s\nDevice: %s\n\nIf this was not you, revoke your sessions from the app immediately.\n",
		user.FullName, login.LoggedInAt.Format("2006-01-02 15:04 MST"), login.IP, login.UserAgent,
	)
	return n.sender.Send(user.Email, "New login to your account", body)
}
