package notify

import (
	"context"
	"fmt"

	"github.com/shifahealth/platform/pkg/logging"
)

// Service sends membership lifecycle notices. Delivery failures are logged
// and swallowed: a notice must never fail the operation that triggered it.
type Service struct {
	email  EmailSender
	logger *logging.Logger
}

// NewService creates a notification service.
func NewService(email EmailSender, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{email: email, logger: logger}
}

// MembershipGranted notifies a user that they were added to a clinic.
func (s *Service) MembershipGranted(ctx context.Context, toEmail, toName, clinicName, role string) {
	s.send(ctx, EmailMessage{
		To:      toEmail,
		ToName:  toName,
		Subject: fmt.Sprintf("You have been added to %s", clinicName),
		Body: fmt.Sprintf(
			"Hello %s,\n\nYou now have access to %s as %s. Pick the clinic from the clinic switcher after your next sign-in.\n\n— Shifa Clinics",
			toName, clinicName, role,
		),
	})
}

// MembershipRevoked notifies a user that their clinic access was removed.
func (s *Service) MembershipRevoked(ctx context.Context, toEmail, toName, clinicName string) {
	s.send(ctx, EmailMessage{
		To:      toEmail,
		ToName:  toName,
		Subject: fmt.Sprintf("Your access to %s was removed", clinicName),
		Body: fmt.Sprintf(
			"Hello %s,\n\nYour access to %s has been revoked. If you believe this is a mistake, contact the clinic administrator.\n\n— Shifa Clinics",
			toName, clinicName,
		),
	})
}

// RoleChanged notifies a user that their role within a clinic changed.
func (s *Service) RoleChanged(ctx context.Context, toEmail, toName, clinicName, role string) {
	s.send(ctx, EmailMessage{
		To:      toEmail,
		ToName:  toName,
		Subject: fmt.Sprintf("Your role at %s changed", clinicName),
		Body: fmt.Sprintf(
			"Hello %s,\n\nYour role at %s is now %s.\n\n— Shifa Clinics",
			toName, clinicName, role,
		),
	})
}

func (s *Service) send(ctx context.Context, msg EmailMessage) {
	if s == nil || s.email == nil || msg.To == "" {
		return
	}
	if err := s.email.Send(ctx, msg); err != nil {
		s.logger.Error("membership notice delivery failed", "to", msg.To, "subject", msg.Subject, "error", err)
	}
}
