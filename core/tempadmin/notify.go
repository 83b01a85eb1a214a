package tempadmin

import (
	"net/mail"
	"strings"
	"time"

	"github.com/trezcool/shule/core"
)

const (
	createdTemplate = "tempadmin_created"
	revokedTemplate = "tempadmin_revoked"
)

type (
	createdMailData struct {
		Permissions string
		Reason      string
		CreatedBy   string
		ExpiresAt   string
	}

	revokedMailData struct {
		RevokedBy string
		Reason    string
	}
)

// notifyCreated tells the holder about the new grant. The password is never part of the message.
func (m *Manager) notifyCreated(g Grant) {
	if m.mailer == nil {
		return
	}
	m.mailer.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Address: g.Email}},
		Subject:      "Temporary administrator access granted",
		TemplateName: createdTemplate,
		TemplateData: createdMailData{
			Permissions: strings.Join(g.Permissions, ", "),
			Reason:      g.Reason,
			CreatedBy:   g.CreatedBy,
			ExpiresAt:   g.ExpiresAt.Format(time.RFC1123),
		},
	})
}

func (m *Manager) notifyRevoked(g Grant) {
	if m.mailer == nil {
		return
	}
	m.mailer.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Address: g.Email}},
		Subject:      "Temporary administrator access revoked",
		TemplateName: revokedTemplate,
		TemplateData: revokedMailData{
			RevokedBy: g.RevokedBy,
			Reason:    g.RevokeReason,
		},
	})
}
